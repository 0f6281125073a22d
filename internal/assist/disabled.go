package assist

import (
	"context"

	"go.uber.org/zap"

	"leadline/internal/domain"
)

// Disabled is the Gateway used when no API key is configured. Every call
// reports the service as unavailable; the rest of the app keeps working.
type Disabled struct {
	Log *zap.Logger
}

func (d Disabled) Chat(context.Context, string, domain.Snapshot) (string, error) {
	return "", d.unavailable("chat")
}

func (d Disabled) DraftEmail(context.Context, string, string) (string, error) {
	return "", d.unavailable("draft_email")
}

func (d Disabled) ExplainLeadScore(context.Context, domain.Lead) (string, error) {
	return "", d.unavailable("explain_score")
}

func (d Disabled) QuickInsights(context.Context, []domain.Lead, []domain.Deal) (string, error) {
	return "", d.unavailable("quick_insights")
}

func (d Disabled) unavailable(op string) error {
	if d.Log != nil {
		d.Log.Warn("assist disabled: no API key configured", zap.String("op", op))
	}
	return ErrUnavailable
}
