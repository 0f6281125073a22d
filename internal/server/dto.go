package server

import (
	"encoding/json"

	"leadline/internal/domain"
	"leadline/internal/query"
)

// Request payloads

type CreateLeadRequest struct {
	ID            *string `json:"id,omitempty"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Company       string  `json:"company"`
	Status        string  `json:"status" enum:"HOT,WARM,COLD"`
	Value         float64 `json:"value" minimum:"0"`
	LastContacted string  `json:"last_contacted,omitempty" format:"date"`
	Notes         string  `json:"notes,omitempty"`
}

type CreateContactRequest struct {
	ID                 *string `json:"id,omitempty"`
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	Phone              string  `json:"phone,omitempty"`
	Role               string  `json:"role,omitempty"`
	JobTitle           string  `json:"job_title,omitempty"`
	Company            string  `json:"company,omitempty"`
	CompanyDescription string  `json:"company_description,omitempty"`
	RecentInteraction  string  `json:"recent_interaction,omitempty"`
	AvatarURL          string  `json:"avatar_url,omitempty"`
}

type SetStageRequest struct {
	Stage string `json:"stage" enum:"PROSPECTING,QUALIFICATION,PROPOSAL,NEGOTIATION,CLOSED_WON,CLOSED_LOST"`
}

type ChatRequest struct {
	Message string `json:"message" minLength:"1"`
}

type DraftEmailRequest struct {
	Notes string `json:"notes,omitempty"`
}

// Response payloads

type ContactResponse struct {
	domain.Contact
	AvatarURL string `json:"avatar_url"`
}

type StageGroupResponse struct {
	Stage domain.DealStage `json:"stage"`
	Deals []domain.Deal    `json:"deals"`
	Total float64          `json:"total"`
}

type SummaryResponse struct {
	LeadCount     int                  `json:"lead_count"`
	ContactCount  int                  `json:"contact_count"`
	DealCount     int                  `json:"deal_count"`
	PipelineTotal float64              `json:"pipeline_total"`
	PendingTasks  int                  `json:"pending_tasks"`
	Board         []StageGroupResponse `json:"board"`
}

type DealWithLeadResponse struct {
	domain.Deal
	LeadName string `json:"lead_name,omitempty"`
}

type AssistTextResponse struct {
	Text string `json:"text"`
}

type ConversationResponse struct {
	State    string           `json:"state" enum:"idle,awaiting,errored"`
	Messages []domain.Message `json:"messages"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Conversion helpers

func toContactResponse(c domain.Contact) ContactResponse {
	return ContactResponse{Contact: c, AvatarURL: query.AvatarURL(c)}
}

func toContactResponses(contacts []domain.Contact) []ContactResponse {
	out := make([]ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, toContactResponse(c))
	}
	return out
}

func toStageGroupResponses(groups []query.StageGroup) []StageGroupResponse {
	out := make([]StageGroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, StageGroupResponse{Stage: g.Stage, Deals: nonNilSlice(g.Deals), Total: g.Total})
	}
	return out
}

func toDealWithLeadResponses(deals []domain.Deal, leads []domain.Lead) []DealWithLeadResponse {
	out := make([]DealWithLeadResponse, 0, len(deals))
	for _, d := range deals {
		resp := DealWithLeadResponse{Deal: d}
		if lead, ok := query.ResolveLead(leads, d.LeadID); ok {
			resp.LeadName = lead.Name
		}
		out = append(out, resp)
	}
	return out
}

func toEventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func toEventResponses(events []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	return out
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
