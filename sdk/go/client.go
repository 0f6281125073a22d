package leadlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Leadline HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "api/v1",
		Timeout:  10 * time.Second,
	}
}

// Lead represents the API lead model.
type Lead struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Company       string  `json:"company"`
	Status        string  `json:"status"`
	Value         float64 `json:"value"`
	LastContacted string  `json:"last_contacted"`
	Notes         string  `json:"notes,omitempty"`
}

// Deal represents the API deal model, with the lead name resolved where the
// referenced lead exists.
type Deal struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	LeadID            string  `json:"lead_id"`
	LeadName          string  `json:"lead_name,omitempty"`
	Value             float64 `json:"value"`
	Stage             string  `json:"stage"`
	ExpectedCloseDate string  `json:"expected_close_date"`
}

// Contact represents the API contact model.
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
	AvatarURL          string `json:"avatar_url"`
}

// Task represents the API task model.
type Task struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	DueDate   string `json:"due_date"`
	Priority  string `json:"priority"`
	Completed bool   `json:"completed"`
	RelatedTo string `json:"related_to,omitempty"`
}

// Message is one assistant conversation turn.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Conversation is the assistant transcript and its send state.
type Conversation struct {
	State    string    `json:"state"`
	Messages []Message `json:"messages"`
}

// StageGroup is one column of the pipeline board.
type StageGroup struct {
	Stage string  `json:"stage"`
	Deals []Deal  `json:"deals"`
	Total float64 `json:"total"`
}

// Summary is the dashboard summary.
type Summary struct {
	LeadCount     int          `json:"lead_count"`
	ContactCount  int          `json:"contact_count"`
	DealCount     int          `json:"deal_count"`
	PipelineTotal float64      `json:"pipeline_total"`
	PendingTasks  int          `json:"pending_tasks"`
	Board         []StageGroup `json:"board"`
}

// Event represents a mutation log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Summary fetches the dashboard summary.
func (c *Client) Summary(ctx context.Context) (Summary, error) {
	var resp Summary
	err := c.do(ctx, http.MethodGet, c.apiPath("dashboard/summary"), nil, &resp)
	return resp, err
}

// Leads lists leads newest-first, optionally filtered by a search term.
func (c *Client) Leads(ctx context.Context, search string) ([]Lead, error) {
	endpoint := c.apiPath("leads")
	if search != "" {
		endpoint += "?search=" + url.QueryEscape(search)
	}
	var resp []Lead
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateLead adds a lead. The server assigns an id when l.ID is empty.
func (c *Client) CreateLead(ctx context.Context, l Lead) (Lead, error) {
	body := map[string]any{
		"name":           l.Name,
		"email":          l.Email,
		"company":        l.Company,
		"status":         l.Status,
		"value":          l.Value,
		"last_contacted": l.LastContacted,
		"notes":          l.Notes,
	}
	if l.ID != "" {
		body["id"] = l.ID
	}
	var resp Lead
	err := c.do(ctx, http.MethodPost, c.apiPath("leads"), body, &resp)
	return resp, err
}

// ExportLeads downloads the CSV export. The second return value is the
// server's informational message when there is nothing to export.
func (c *Client) ExportLeads(ctx context.Context) ([]byte, string, error) {
	data, contentType, err := c.raw(ctx, c.apiPath("leads/export"))
	if err != nil {
		return nil, "", err
	}
	if strings.HasPrefix(contentType, "application/json") {
		var msg struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, "", err
		}
		return nil, msg.Message, nil
	}
	return data, "", nil
}

// ExplainLeadScore asks the assistant why a lead has its status.
func (c *Client) ExplainLeadScore(ctx context.Context, leadID string) (string, error) {
	return c.assistText(ctx, http.MethodPost, c.apiPath("leads/"+url.PathEscape(leadID)+"/score-explanation"), struct{}{})
}

// DraftEmail asks the assistant for a follow-up email draft.
func (c *Client) DraftEmail(ctx context.Context, leadID, notes string) (string, error) {
	return c.assistText(ctx, http.MethodPost, c.apiPath("leads/"+url.PathEscape(leadID)+"/email-draft"), map[string]string{"notes": notes})
}

// Deals lists deals with resolved lead names.
func (c *Client) Deals(ctx context.Context) ([]Deal, error) {
	var resp []Deal
	err := c.do(ctx, http.MethodGet, c.apiPath("deals"), nil, &resp)
	return resp, err
}

// Board fetches the pipeline board.
func (c *Client) Board(ctx context.Context) ([]StageGroup, error) {
	var resp []StageGroup
	err := c.do(ctx, http.MethodGet, c.apiPath("deals/board"), nil, &resp)
	return resp, err
}

// AdvanceDeal moves a deal to the next board stage.
func (c *Client) AdvanceDeal(ctx context.Context, dealID string) (Deal, error) {
	var resp Deal
	err := c.do(ctx, http.MethodPost, c.apiPath("deals/"+url.PathEscape(dealID)+"/advance"), nil, &resp)
	return resp, err
}

// SetDealStage sets a deal's stage directly.
func (c *Client) SetDealStage(ctx context.Context, dealID, stage string) (Deal, error) {
	var resp Deal
	err := c.do(ctx, http.MethodPut, c.apiPath("deals/"+url.PathEscape(dealID)+"/stage"), map[string]string{"stage": stage}, &resp)
	return resp, err
}

// Contacts lists contacts newest-first, optionally filtered by a search term.
func (c *Client) Contacts(ctx context.Context, search string) ([]Contact, error) {
	endpoint := c.apiPath("contacts")
	if search != "" {
		endpoint += "?search=" + url.QueryEscape(search)
	}
	var resp []Contact
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateContact adds a contact. The server assigns an id when ct.ID is empty.
func (c *Client) CreateContact(ctx context.Context, ct Contact) (Contact, error) {
	body := map[string]any{
		"name":                ct.Name,
		"email":               ct.Email,
		"phone":               ct.Phone,
		"role":                ct.Role,
		"job_title":           ct.JobTitle,
		"company":             ct.Company,
		"company_description": ct.CompanyDescription,
		"recent_interaction":  ct.RecentInteraction,
		"avatar_url":          ct.AvatarURL,
	}
	if ct.ID != "" {
		body["id"] = ct.ID
	}
	var resp Contact
	err := c.do(ctx, http.MethodPost, c.apiPath("contacts"), body, &resp)
	return resp, err
}

// DeleteContact removes a contact. Deleting an absent contact succeeds.
func (c *Client) DeleteContact(ctx context.Context, contactID string) error {
	return c.do(ctx, http.MethodDelete, c.apiPath("contacts/"+url.PathEscape(contactID)), nil, nil)
}

// Tasks lists tasks.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, c.apiPath("tasks"), nil, &resp)
	return resp, err
}

// Chat sends a message to the assistant and returns its reply turn.
func (c *Client) Chat(ctx context.Context, message string) (Message, error) {
	var resp Message
	err := c.do(ctx, http.MethodPost, c.apiPath("assist/chat"), map[string]string{"message": message}, &resp)
	return resp, err
}

// Transcript fetches the assistant conversation.
func (c *Client) Transcript(ctx context.Context) (Conversation, error) {
	var resp Conversation
	err := c.do(ctx, http.MethodGet, c.apiPath("assist/chat"), nil, &resp)
	return resp, err
}

// ResetConversation starts the assistant conversation over.
func (c *Client) ResetConversation(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.apiPath("assist/chat/reset"), nil, nil)
}

// QuickInsights fetches assistant insights over the current pipeline.
func (c *Client) QuickInsights(ctx context.Context) (string, error) {
	return c.assistText(ctx, http.MethodGet, c.apiPath("assist/insights"), nil)
}

// Events fetches the latest mutation log entries.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	var resp []Event
	err := c.do(ctx, http.MethodGet, c.apiPath(fmt.Sprintf("events?limit=%d", limit)), nil, &resp)
	return resp, err
}

func (c *Client) assistText(ctx context.Context, method, endpoint string, body any) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	err := c.do(ctx, method, endpoint, body, &resp)
	return resp.Text, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, endpoint string) ([]byte, string, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, "", &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	data, err := io.ReadAll(resp.Body)
	return data, resp.Header.Get("Content-Type"), err
}

func (c *Client) apiPath(p string) string {
	return strings.Trim(c.BasePath, "/") + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
