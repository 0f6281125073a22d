// Package assist is the gateway to the language model behind the dashboard
// assistant. Every operation degrades to ErrUnavailable on failure so the
// rest of the app never sees provider detail.
package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"leadline/internal/domain"
)

// ErrUnavailable is the only error the gateway surfaces to callers. The
// underlying cause (network, quota, bad key, malformed response) is logged,
// never returned: user-facing surfaces render one generic message.
var ErrUnavailable = errors.New("AI service unavailable")

const (
	// DefaultModel is the generation model used when config names none.
	DefaultModel = "gemini-3-flash-preview"

	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 30 * time.Second
)

const chatSystemPrompt = `You are Leadline Assistant, a helpful AI for a CRM dashboard used by freelancers and small business teams.
You have access to the user's current leads, deals, and tasks via the context provided.
Help the user prioritize leads, draft outreach, and analyze their pipeline.
Keep answers professional, concise, and actionable. Use bullet points when summarizing.`

// Gateway is the assistant surface the rest of the app programs against.
// The production implementation is Client; tests substitute their own.
type Gateway interface {
	// Chat answers a free-form user message, grounded on a serialized view
	// of the current collections.
	Chat(ctx context.Context, message string, snapshot domain.Snapshot) (string, error)

	// DraftEmail produces a short follow-up email for a lead.
	DraftEmail(ctx context.Context, leadName, notes string) (string, error)

	// ExplainLeadScore produces a one-sentence rationale for the lead's
	// current status.
	ExplainLeadScore(ctx context.Context, lead domain.Lead) (string, error)

	// QuickInsights produces three bullet-point priorities from the current
	// leads and deals.
	QuickInsights(ctx context.Context, leads []domain.Lead, deals []domain.Deal) (string, error)
}

// Client is the genai-backed Gateway.
type Client struct {
	genai   *genai.Client
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// Options tune a Client. Zero values fall back to package defaults.
type Options struct {
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewClient builds the production gateway. The API key is required; an empty
// key fails here rather than on the first call.
func NewClient(ctx context.Context, apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("assist: API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("assist: create client: %w", err)
	}
	c := &Client{genai: gc, model: opts.Model, timeout: opts.Timeout, log: opts.Logger}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c, nil
}

func (c *Client) Chat(ctx context.Context, message string, snapshot domain.Snapshot) (string, error) {
	snapJSON, err := json.Marshal(snapshot)
	if err != nil {
		c.log.Error("assist chat: marshal snapshot", zap.Error(err))
		return "", ErrUnavailable
	}
	prompt := fmt.Sprintf("Current CRM context: %s\n\nUser message: %s", snapJSON, message)
	return c.generate(ctx, "chat", prompt, chatSystemPrompt)
}

func (c *Client) DraftEmail(ctx context.Context, leadName, notes string) (string, error) {
	prompt := fmt.Sprintf("Generate a short, professional follow-up email for a lead named %s based on these notes: %s", leadName, notes)
	return c.generate(ctx, "draft_email", prompt, "")
}

func (c *Client) ExplainLeadScore(ctx context.Context, lead domain.Lead) (string, error) {
	leadJSON, err := json.Marshal(lead)
	if err != nil {
		c.log.Error("assist explain: marshal lead", zap.Error(err))
		return "", ErrUnavailable
	}
	prompt := fmt.Sprintf("Analyze this lead and give a 1-sentence explanation of why they are scored as %s: %s", lead.Status, leadJSON)
	return c.generate(ctx, "explain_score", prompt, "")
}

func (c *Client) QuickInsights(ctx context.Context, leads []domain.Lead, deals []domain.Deal) (string, error) {
	leadsJSON, err := json.Marshal(leads)
	if err != nil {
		c.log.Error("assist insights: marshal leads", zap.Error(err))
		return "", ErrUnavailable
	}
	dealsJSON, err := json.Marshal(deals)
	if err != nil {
		c.log.Error("assist insights: marshal deals", zap.Error(err))
		return "", ErrUnavailable
	}
	prompt := fmt.Sprintf("Based on these leads: %s and deals: %s, provide 3 quick bullet-point insights for the business owner to focus on today.", leadsJSON, dealsJSON)
	return c.generate(ctx, "quick_insights", prompt, "")
}

// generate runs one bounded model call. op is a label for the log line only.
func (c *Client) generate(ctx context.Context, op, prompt, system string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		c.log.Warn("assist call failed",
			zap.String("op", op),
			zap.String("model", c.model),
			zap.Error(err))
		return "", ErrUnavailable
	}
	text := resp.Text()
	if text == "" {
		c.log.Warn("assist call returned empty response",
			zap.String("op", op),
			zap.String("model", c.model))
		return "", ErrUnavailable
	}
	return text, nil
}
