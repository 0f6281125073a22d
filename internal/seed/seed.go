// Package seed holds the demo fixtures a fresh session starts with.
package seed

import (
	"context"

	"leadline/internal/domain"
	"leadline/internal/store"
)

// Demo returns the fixture collections. Slice order is collection order:
// leads[0] is the newest lead.
func Demo() domain.Snapshot {
	return domain.Snapshot{
		Leads: []domain.Lead{
			{ID: "l1", Name: "John Doe", Email: "john@techcorp.com", Company: "TechCorp", Status: domain.StatusHot, Value: 5000, LastContacted: "2023-10-25", Notes: "Very interested in our premium plan."},
			{ID: "l2", Name: "Jane Smith", Email: "jane@designhub.io", Company: "DesignHub", Status: domain.StatusWarm, Value: 2500, LastContacted: "2023-10-20", Notes: "Asking about bulk discounts."},
			{ID: "l3", Name: "Bob Wilson", Email: "bob@builders.net", Company: "Wilson Builders", Status: domain.StatusCold, Value: 12000, LastContacted: "2023-09-15", Notes: "Call back in 3 months."},
			{ID: "l4", Name: "Alice Brown", Email: "alice@crypto.com", Company: "CryptoPay", Status: domain.StatusHot, Value: 8500, LastContacted: "2023-10-26", Notes: "Need immediate implementation."},
		},
		Deals: []domain.Deal{
			{ID: "d1", Title: "TechCorp Enterprise", LeadID: "l1", Value: 5000, Stage: domain.StageNegotiation, ExpectedCloseDate: "2023-11-15"},
			{ID: "d2", Title: "DesignHub Expansion", LeadID: "l2", Value: 2500, Stage: domain.StageProposal, ExpectedCloseDate: "2023-11-30"},
			{ID: "d3", Title: "CryptoPay Integration", LeadID: "l4", Value: 8500, Stage: domain.StageQualification, ExpectedCloseDate: "2023-12-05"},
		},
		Tasks: []domain.Task{
			{ID: "t1", Title: "Follow up with John Doe", DueDate: "2023-10-28", Priority: domain.PriorityHigh, Completed: false, RelatedTo: "l1"},
			{ID: "t2", Title: "Draft proposal for Jane", DueDate: "2023-10-29", Priority: domain.PriorityMedium, Completed: false, RelatedTo: "l2"},
			{ID: "t3", Title: "Check invoice status", DueDate: "2023-10-25", Priority: domain.PriorityLow, Completed: true},
		},
		Contacts: []domain.Contact{
			{
				ID: "c1", Name: "John Doe", Email: "john@techcorp.com", Phone: "+1 555-123-4567",
				Role: "Executive", JobTitle: "Chief Technology Officer", Company: "TechCorp",
				CompanyDescription: "Global leader in cloud infrastructure and cybersecurity solutions for mid-market firms.",
				RecentInteraction:  "Discussed the Q4 scaling roadmap. John is concerned about latency in the APAC region.",
			},
			{
				ID: "c2", Name: "Jane Smith", Email: "jane@designhub.io", Phone: "+1 555-987-6543",
				Role: "Creative", JobTitle: "Creative Director", Company: "DesignHub",
				CompanyDescription: "Award-winning boutique agency specializing in sustainable brand identity and UI/UX design.",
				RecentInteraction:  "Jane requested a demo of our asset management feature for their freelance network.",
			},
			{
				ID: "c3", Name: "Sarah Connor", Email: "sarah@resistance.net", Phone: "+1 555-000-1984",
				Role: "Operations", JobTitle: "Operations Manager", Company: "Skynet Solutions",
				CompanyDescription: "Edge computing startup focusing on automated threat detection and logistics.",
				RecentInteraction:  "Sent follow-up regarding the service level agreement. Waiting for legal review.",
			},
			{
				ID: "c4", Name: "Michael Scott", Email: "michael@dundermifflin.com", Phone: "+1 555-111-2222",
				Role: "Management", JobTitle: "Regional Manager", Company: "Dunder Mifflin",
				CompanyDescription: "Premier regional paper supplier with a focus on personalized customer service.",
				RecentInteraction:  `Michael called to discuss "unlimited" paper supplies. Seems to be shopping for a new CRM.`,
			},
		},
	}
}

// Apply loads the demo fixtures into a fresh store.
func Apply(ctx context.Context, s store.Store) error {
	return s.Seed(ctx, Demo())
}
