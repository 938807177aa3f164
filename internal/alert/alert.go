package alert

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Alert describes a single entity transition into the error state.
type Alert struct {
	EntityID     string    `json:"entity_id"`
	EntityName   string    `json:"entity_name"`
	DashboardURL string    `json:"dashboard_url,omitempty"`
	StatusLabel  string    `json:"status"`
	Summary      string    `json:"summary,omitempty"`
	FiredAt      time.Time `json:"fired_at"`
}

// Sink delivers alerts to one notification channel.
type Sink interface {
	Deliver(ctx context.Context, a Alert) error
}

// Router fans an alert out to every configured sink. A failing sink does not
// stop delivery to the others.
type Router struct {
	sinks []Sink
}

func NewRouter(sinks ...Sink) *Router {
	return &Router{sinks: sinks}
}

// Deliver sends a to all sinks and returns the joined errors, if any.
func (r *Router) Deliver(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Deliver(ctx, a); err != nil {
			slog.Error("alert: delivery failed",
				"entity", a.EntityID,
				"err", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop is a Sink that discards alerts. Used when no channels are configured.
type Nop struct{}

func (Nop) Deliver(context.Context, Alert) error { return nil }
