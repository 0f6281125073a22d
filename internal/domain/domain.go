package domain

// LeadStatus is the qualification bucket of a lead.
type LeadStatus string

const (
	StatusHot  LeadStatus = "HOT"
	StatusWarm LeadStatus = "WARM"
	StatusCold LeadStatus = "COLD"
)

// LeadStatuses lists the valid statuses.
var LeadStatuses = []LeadStatus{StatusHot, StatusWarm, StatusCold}

// DealStage is one phase of the sales pipeline.
type DealStage string

const (
	StageProspecting   DealStage = "PROSPECTING"
	StageQualification DealStage = "QUALIFICATION"
	StageProposal      DealStage = "PROPOSAL"
	StageNegotiation   DealStage = "NEGOTIATION"
	StageClosedWon     DealStage = "CLOSED_WON"
	StageClosedLost    DealStage = "CLOSED_LOST"
)

// DealStages lists every valid stage, including CLOSED_LOST.
var DealStages = []DealStage{
	StageProspecting,
	StageQualification,
	StageProposal,
	StageNegotiation,
	StageClosedWon,
	StageClosedLost,
}

// PipelineStages is the fixed board ordering. CLOSED_LOST is deliberately
// absent: lost deals stay in the store (and in totals) but are archived off
// the board. Click-to-advance cycles over this ordering only.
var PipelineStages = []DealStage{
	StageProspecting,
	StageQualification,
	StageProposal,
	StageNegotiation,
	StageClosedWon,
}

type Lead struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Company       string     `json:"company"`
	Status        LeadStatus `json:"status" enum:"HOT,WARM,COLD"`
	Value         float64    `json:"value" minimum:"0"`
	LastContacted string     `json:"last_contacted" format:"date"`
	Notes         string     `json:"notes,omitempty"`
}

// Deal references its lead by id only. The lead may never have existed or may
// be gone; readers resolve the reference lazily and tolerate absence.
type Deal struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	LeadID            string    `json:"lead_id"`
	Value             float64   `json:"value" minimum:"0"`
	Stage             DealStage `json:"stage" enum:"PROSPECTING,QUALIFICATION,PROPOSAL,NEGOTIATION,CLOSED_WON,CLOSED_LOST"`
	ExpectedCloseDate string    `json:"expected_close_date" format:"date"`
}

type Contact struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Role               string `json:"role"`
	JobTitle           string `json:"job_title"`
	Company            string `json:"company"`
	CompanyDescription string `json:"company_description,omitempty"`
	RecentInteraction  string `json:"recent_interaction,omitempty"`
	AvatarURL          string `json:"avatar_url,omitempty"`
}

type TaskPriority string

const (
	PriorityHigh   TaskPriority = "High"
	PriorityMedium TaskPriority = "Medium"
	PriorityLow    TaskPriority = "Low"
)

type Task struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	DueDate   string       `json:"due_date" format:"date"`
	Priority  TaskPriority `json:"priority" enum:"High,Medium,Low"`
	Completed bool         `json:"completed"`
	RelatedTo string       `json:"related_to,omitempty"`
}

// MessageRole is the author of a conversation turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn in an assistant conversation. Conversations are
// append-only for the session.
type Message struct {
	Role      MessageRole `json:"role" enum:"user,assistant"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp" format:"date-time"`
}

// Snapshot is a read-only copy of the store collections, in collection order
// (newest first for leads and contacts).
type Snapshot struct {
	Leads    []Lead    `json:"leads"`
	Deals    []Deal    `json:"deals"`
	Contacts []Contact `json:"contacts"`
	Tasks    []Task    `json:"tasks"`
}

// Event is one row of the session mutation log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

// ValidStatus reports whether s is a known lead status.
func ValidStatus(s LeadStatus) bool {
	for _, v := range LeadStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ValidStage reports whether s is a known deal stage.
func ValidStage(s DealStage) bool {
	for _, v := range DealStages {
		if v == s {
			return true
		}
	}
	return false
}
