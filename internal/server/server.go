// Package server exposes the dashboard over HTTP with an OpenAPI surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"leadline/internal/assist"
	"leadline/internal/domain"
	"leadline/internal/export"
	"leadline/internal/query"
	"leadline/internal/repo"
	"leadline/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Store        store.Store
	Gateway      assist.Gateway
	Conversation *assist.Conversation
	BasePath     string
	Logger       *zap.Logger
	Now          func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"lead not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Leadline API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("server: gateway is required")
	}
	if cfg.Conversation == nil {
		cfg.Conversation = assist.NewConversation(cfg.Gateway)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(cfg.Logger))
	hcfg := huma.DefaultConfig("Leadline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDashboard(group, cfg)
	registerLeads(group, cfg)
	registerLeadExport(router, basePath, cfg)
	registerDeals(group, cfg)
	registerContacts(group, cfg)
	registerTasks(group, cfg)
	registerAssist(group, cfg)
	registerEvents(group, cfg)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

// requestLogger emits one structured line per request after it completes.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, assist.ErrBusy) {
		return newAPIError(http.StatusConflict, "conversation_busy", err.Error(), nil)
	}
	if errors.Is(err, assist.ErrUnavailable) {
		return newAPIError(http.StatusServiceUnavailable, "ai_unavailable", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already exists"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must be"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusServiceUnavailable:
		return "ai_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Leadline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDashboard(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-summary",
		Method:      http.MethodGet,
		Path:        "/dashboard/summary",
		Summary:     "Dashboard summary",
		Description: "Counts, pipeline total across all stages, pending task count, and the pipeline board.",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SummaryResponse `json:"body"`
	}, error) {
		snap, err := cfg.Store.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		board := query.GroupDealsByStage(snap.Deals, domain.PipelineStages)
		return &struct {
			Body SummaryResponse `json:"body"`
		}{Body: SummaryResponse{
			LeadCount:     len(snap.Leads),
			ContactCount:  len(snap.Contacts),
			DealCount:     len(snap.Deals),
			PipelineTotal: query.PipelineTotal(snap.Deals),
			PendingTasks:  query.PendingTaskCount(snap.Tasks),
			Board:         toStageGroupResponses(board),
		}}, nil
	})
}

func registerLeads(api huma.API, cfg Config) {
	type listLeadsInput struct {
		Search string `query:"search" doc:"Case-insensitive match over name, company, and email."`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-leads",
		Method:      http.MethodGet,
		Path:        "/leads",
		Summary:     "List leads newest-first",
	}, func(ctx context.Context, input *listLeadsInput) (*struct {
		Body []domain.Lead `json:"body"`
	}, error) {
		snap, err := cfg.Store.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		leads := query.FilterLeads(snap.Leads, input.Search)
		return &struct {
			Body []domain.Lead `json:"body"`
		}{Body: nonNilSlice(leads)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-lead",
		Method:        http.MethodPost,
		Path:          "/leads",
		Summary:       "Add a lead",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateLeadRequest
	}) (*struct {
		Body domain.Lead `json:"body"`
	}, error) {
		l := domain.Lead{
			Name:          input.Body.Name,
			Email:         input.Body.Email,
			Company:       input.Body.Company,
			Status:        domain.LeadStatus(input.Body.Status),
			Value:         input.Body.Value,
			LastContacted: input.Body.LastContacted,
			Notes:         input.Body.Notes,
		}
		if input.Body.ID != nil {
			l.ID = *input.Body.ID
		} else {
			l.ID = uuid.NewString()
		}
		if l.LastContacted == "" {
			l.LastContacted = cfg.Now().UTC().Format("2006-01-02")
		}
		if err := cfg.Store.AddLead(ctx, l); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Lead `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "explain-lead-score",
		Method:      http.MethodPost,
		Path:        "/leads/{lead_id}/score-explanation",
		Summary:     "Explain a lead's status",
	}, func(ctx context.Context, input *struct {
		LeadID string `path:"lead_id"`
	}) (*struct {
		Body AssistTextResponse `json:"body"`
	}, error) {
		lead, err := cfg.Store.Repo.GetLead(ctx, input.LeadID)
		if err != nil {
			return nil, handleError(err)
		}
		text, err := cfg.Gateway.ExplainLeadScore(ctx, lead)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssistTextResponse `json:"body"`
		}{Body: AssistTextResponse{Text: text}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "draft-lead-email",
		Method:      http.MethodPost,
		Path:        "/leads/{lead_id}/email-draft",
		Summary:     "Draft a follow-up email for a lead",
	}, func(ctx context.Context, input *struct {
		LeadID string `path:"lead_id"`
		Body   DraftEmailRequest
	}) (*struct {
		Body AssistTextResponse `json:"body"`
	}, error) {
		lead, err := cfg.Store.Repo.GetLead(ctx, input.LeadID)
		if err != nil {
			return nil, handleError(err)
		}
		notes := input.Body.Notes
		if notes == "" {
			notes = lead.Notes
		}
		text, err := cfg.Gateway.DraftEmail(ctx, lead.Name, notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssistTextResponse `json:"body"`
		}{Body: AssistTextResponse{Text: text}}, nil
	})
}

// registerLeadExport serves the CSV download outside Huma: the response is a
// file attachment, not a JSON document.
func registerLeadExport(r chi.Router, basePath string, cfg Config) {
	r.Get(path.Join(basePath, "/leads/export"), func(w http.ResponseWriter, req *http.Request) {
		snap, err := cfg.Store.Snapshot(req.Context())
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{"error": apiErrorBody{Code: "internal_error", Message: "internal error"}})
			return
		}
		data, err := export.Leads(snap.Leads)
		if errors.Is(err, export.ErrNoLeads) {
			// Nothing to export is informational, not a failure.
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "No leads available to export."})
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(cfg.Now())))
		w.Write(data)
	})
}

func registerDeals(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-deals",
		Method:      http.MethodGet,
		Path:        "/deals",
		Summary:     "List deals with resolved lead names",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []DealWithLeadResponse `json:"body"`
	}, error) {
		snap, err := cfg.Store.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DealWithLeadResponse `json:"body"`
		}{Body: toDealWithLeadResponses(snap.Deals, snap.Leads)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deal-board",
		Method:      http.MethodGet,
		Path:        "/deals/board",
		Summary:     "Pipeline board",
		Description: "Deals grouped into the fixed stage ordering. Lost deals are archived off the board.",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []StageGroupResponse `json:"body"`
	}, error) {
		snap, err := cfg.Store.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		board := query.GroupDealsByStage(snap.Deals, domain.PipelineStages)
		return &struct {
			Body []StageGroupResponse `json:"body"`
		}{Body: toStageGroupResponses(board)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-deal",
		Method:      http.MethodPost,
		Path:        "/deals/{deal_id}/advance",
		Summary:     "Advance a deal to the next stage",
		Description: "Cycles through the board ordering, wrapping from CLOSED_WON back to PROSPECTING.",
	}, func(ctx context.Context, input *struct {
		DealID string `path:"deal_id"`
	}) (*struct {
		Body domain.Deal `json:"body"`
	}, error) {
		deal, err := cfg.Store.Repo.GetDeal(ctx, input.DealID)
		if err != nil {
			return nil, handleError(err)
		}
		next := query.AdvanceStage(deal.Stage, domain.PipelineStages)
		if err := cfg.Store.UpdateDealStage(ctx, deal.ID, next); err != nil {
			return nil, handleError(err)
		}
		deal.Stage = next
		return &struct {
			Body domain.Deal `json:"body"`
		}{Body: deal}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-deal-stage",
		Method:      http.MethodPut,
		Path:        "/deals/{deal_id}/stage",
		Summary:     "Set a deal's stage",
		Description: "Transitions are unconstrained; any stage can move to any stage.",
	}, func(ctx context.Context, input *struct {
		DealID string `path:"deal_id"`
		Body   SetStageRequest
	}) (*struct {
		Body domain.Deal `json:"body"`
	}, error) {
		if err := cfg.Store.UpdateDealStage(ctx, input.DealID, domain.DealStage(input.Body.Stage)); err != nil {
			return nil, handleError(err)
		}
		deal, err := cfg.Store.Repo.GetDeal(ctx, input.DealID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deal `json:"body"`
		}{Body: deal}, nil
	})
}

func registerContacts(api huma.API, cfg Config) {
	type listContactsInput struct {
		Search string `query:"search" doc:"Case-insensitive match over name, company, and job title."`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-contacts",
		Method:      http.MethodGet,
		Path:        "/contacts",
		Summary:     "List contacts newest-first",
	}, func(ctx context.Context, input *listContactsInput) (*struct {
		Body []ContactResponse `json:"body"`
	}, error) {
		snap, err := cfg.Store.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		contacts := query.FilterContacts(snap.Contacts, input.Search)
		return &struct {
			Body []ContactResponse `json:"body"`
		}{Body: toContactResponses(contacts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-contact",
		Method:        http.MethodPost,
		Path:          "/contacts",
		Summary:       "Add a contact",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateContactRequest
	}) (*struct {
		Body ContactResponse `json:"body"`
	}, error) {
		c := domain.Contact{
			Name:               input.Body.Name,
			Email:              input.Body.Email,
			Phone:              input.Body.Phone,
			Role:               input.Body.Role,
			JobTitle:           input.Body.JobTitle,
			Company:            input.Body.Company,
			CompanyDescription: input.Body.CompanyDescription,
			RecentInteraction:  input.Body.RecentInteraction,
			AvatarURL:          input.Body.AvatarURL,
		}
		if input.Body.ID != nil {
			c.ID = *input.Body.ID
		} else {
			c.ID = uuid.NewString()
		}
		if err := cfg.Store.AddContact(ctx, c); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContactResponse `json:"body"`
		}{Body: toContactResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-contact",
		Method:        http.MethodDelete,
		Path:          "/contacts/{contact_id}",
		Summary:       "Delete a contact",
		Description:   "Deleting an absent contact succeeds; the operation is idempotent.",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ContactID string `path:"contact_id"`
	}) (*struct{}, error) {
		if err := cfg.Store.DeleteContact(ctx, input.ContactID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		snap, err := cfg.Store.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilSlice(snap.Tasks)}, nil
	})
}

func registerAssist(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-conversation",
		Method:      http.MethodGet,
		Path:        "/assist/chat",
		Summary:     "Read the assistant transcript",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ConversationResponse `json:"body"`
	}, error) {
		return &struct {
			Body ConversationResponse `json:"body"`
		}{Body: ConversationResponse{
			State:    string(cfg.Conversation.State()),
			Messages: cfg.Conversation.Messages(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-chat-message",
		Method:      http.MethodPost,
		Path:        "/assist/chat",
		Summary:     "Send a message to the assistant",
		Description: "Rejected with 409 while a previous message is still awaiting its response.",
	}, func(ctx context.Context, input *struct {
		Body ChatRequest
	}) (*struct {
		Body domain.Message `json:"body"`
	}, error) {
		snap, err := cfg.Store.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		reply, err := cfg.Conversation.Send(ctx, input.Body.Message, snap)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Message `json:"body"`
		}{Body: reply}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "reset-conversation",
		Method:        http.MethodPost,
		Path:          "/assist/chat/reset",
		Summary:       "Reset the assistant conversation",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		cfg.Conversation.Reset()
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "quick-insights",
		Method:      http.MethodGet,
		Path:        "/assist/insights",
		Summary:     "Quick insights over the current pipeline",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AssistTextResponse `json:"body"`
	}, error) {
		snap, err := cfg.Store.Snapshot(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		text, err := cfg.Gateway.QuickInsights(ctx, snap.Leads, snap.Deals)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssistTextResponse `json:"body"`
		}{Body: AssistTextResponse{Text: text}}, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	type listEventsInput struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" doc:"Maximum entries to return (default 50)."`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Session mutation log, newest first",
	}, func(ctx context.Context, input *listEventsInput) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		events, err := cfg.Store.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: toEventResponses(events)}, nil
	})
}
