package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"leadline/internal/db"
	"leadline/internal/domain"
	"leadline/internal/migrate"
	"leadline/internal/seed"
	"leadline/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	conn, err := db.Open()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(conn)
}

func newSeededStore(t *testing.T) store.Store {
	t.Helper()
	s := newTestStore(t)
	if err := seed.Apply(context.Background(), s); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestSeedRoundTrip(t *testing.T) {
	s := newSeededStore(t)
	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if diff := cmp.Diff(seed.Demo(), snap); diff != "" {
		t.Fatalf("snapshot differs from fixtures (-want +got):\n%s", diff)
	}
}

func TestAddLeadPrepends(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()
	lead := domain.Lead{
		ID:            "l9",
		Name:          "New Person",
		Email:         "new@example.com",
		Company:       "Example Co",
		Status:        domain.StatusWarm,
		Value:         1000,
		LastContacted: "2024-01-01",
	}
	if err := s.AddLead(ctx, lead); err != nil {
		t.Fatalf("add lead: %v", err)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Leads) != 5 {
		t.Fatalf("expected 5 leads, got %d", len(snap.Leads))
	}
	if snap.Leads[0].ID != "l9" {
		t.Fatalf("newest lead should be first, got %s", snap.Leads[0].ID)
	}
	// The pre-existing order is untouched behind the new head.
	for i, want := range []string{"l1", "l2", "l3", "l4"} {
		if snap.Leads[i+1].ID != want {
			t.Fatalf("lead at %d: want %s, got %s", i+1, want, snap.Leads[i+1].ID)
		}
	}
}

func TestAddLeadRejectsBadInput(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()
	cases := []struct {
		name string
		lead domain.Lead
		want string
	}{
		{"missing id", domain.Lead{Status: domain.StatusHot}, "id is required"},
		{"negative value", domain.Lead{ID: "x1", Status: domain.StatusHot, Value: -5}, "non-negative"},
		{"unknown status", domain.Lead{ID: "x2", Status: "TEPID"}, "invalid lead status"},
		{"duplicate id", domain.Lead{ID: "l1", Status: domain.StatusHot}, "already exists"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.AddLead(ctx, tc.lead)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Leads) != 4 {
		t.Fatalf("rejected adds must not change the collection, got %d leads", len(snap.Leads))
	}
}

func TestAddContactPrepends(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()
	c := domain.Contact{ID: "c9", Name: "Pam Beesly", Email: "pam@dundermifflin.com", Company: "Dunder Mifflin"}
	if err := s.AddContact(ctx, c); err != nil {
		t.Fatalf("add contact: %v", err)
	}
	if err := s.AddContact(ctx, c); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("duplicate contact id should be rejected, got %v", err)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Contacts) != 5 || snap.Contacts[0].ID != "c9" {
		t.Fatalf("newest contact should be first, got %+v", snap.Contacts[0])
	}
}

func TestDeleteContactIdempotent(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()
	if err := s.DeleteContact(ctx, "c2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Contacts) != 3 {
		t.Fatalf("expected 3 contacts after delete, got %d", len(snap.Contacts))
	}

	// Deleting the same id again, or one that never existed, succeeds and
	// leaves the collection untouched.
	if err := s.DeleteContact(ctx, "c2"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if err := s.DeleteContact(ctx, "never-existed"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	after, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if diff := cmp.Diff(snap.Contacts, after.Contacts); diff != "" {
		t.Fatalf("no-op deletes changed the collection (-before +after):\n%s", diff)
	}
}

func TestUpdateDealStage(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()
	if err := s.UpdateDealStage(ctx, "d1", domain.StageClosedWon); err != nil {
		t.Fatalf("update stage: %v", err)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	var d1 domain.Deal
	for _, d := range snap.Deals {
		if d.ID == "d1" {
			d1 = d
		}
	}
	if d1.Stage != domain.StageClosedWon {
		t.Fatalf("want CLOSED_WON, got %s", d1.Stage)
	}
	if d1.Title != "TechCorp Enterprise" || d1.Value != 5000 {
		t.Fatalf("other fields must be untouched, got %+v", d1)
	}

	// Backward moves are allowed; transitions are unconstrained.
	if err := s.UpdateDealStage(ctx, "d1", domain.StageProspecting); err != nil {
		t.Fatalf("backward move: %v", err)
	}

	if err := s.UpdateDealStage(ctx, "d1", "SHIPPED"); err == nil {
		t.Fatal("unknown stage should be rejected")
	}
}

func TestUpdateDealStageAbsentIsNoOp(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()
	before, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := s.UpdateDealStage(ctx, "no-such-deal", domain.StageClosedWon); err != nil {
		t.Fatalf("absent id should be a no-op, got %v", err)
	}
	after, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if diff := cmp.Diff(before.Deals, after.Deals); diff != "" {
		t.Fatalf("no-op update changed the collection (-before +after):\n%s", diff)
	}
}

func TestMutationsAreLogged(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()
	if err := s.AddLead(ctx, domain.Lead{ID: "l9", Name: "New Person", Status: domain.StatusCold}); err != nil {
		t.Fatalf("add lead: %v", err)
	}
	if err := s.DeleteContact(ctx, "c1"); err != nil {
		t.Fatalf("delete contact: %v", err)
	}
	if err := s.DeleteContact(ctx, "absent"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	events, err := s.Repo.LatestEvents(ctx, 10, "", "", "")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	// Seeding is not logged and neither are no-ops, so exactly two entries.
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != "contact.deleted" || events[1].Type != "lead.added" {
		t.Fatalf("unexpected event order: %s, %s", events[0].Type, events[1].Type)
	}
}
