package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mapwatch/mapwatch/internal/alert"
	"github.com/mapwatch/mapwatch/internal/classify"
	"github.com/mapwatch/mapwatch/internal/probe"
	"github.com/mapwatch/mapwatch/internal/snapshot"
	"github.com/mapwatch/mapwatch/internal/state"
)

// Target is one monitored entity together with its observer.
type Target struct {
	ID       string
	Name     string
	URL      string
	Observer probe.Observer
}

// Recorder persists the audit trail of fired alerts. history.Store satisfies
// it; a nil Recorder disables recording.
type Recorder interface {
	Append(ctx context.Context, a alert.Alert, delivered bool, deliveryErr string) error
}

// Loop polls all targets on a fixed interval. Alerts fire only on a
// transition into the error state; an entity already known to be in error
// stays silent until it recovers first. Unknown observations never change
// the stored state, so a flapping scrape cannot re-arm an alert.
type Loop struct {
	targets  []Target
	states   *state.Store
	snaps    *snapshot.Store
	sink     alert.Sink
	recorder Recorder
	interval time.Duration

	now func() time.Time // injectable for deterministic tests
}

func New(targets []Target, states *state.Store, snaps *snapshot.Store, sink alert.Sink, recorder Recorder, interval time.Duration) *Loop {
	return &Loop{
		targets:  targets,
		states:   states,
		snaps:    snaps,
		sink:     sink,
		recorder: recorder,
		interval: interval,
		now:      time.Now,
	}
}

// Run polls immediately, then on every interval tick until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.RunOnce(ctx)

	t := time.NewTicker(l.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single polling cycle over all targets. Cancellation is
// checked between entities so shutdown does not wait for a full cycle.
func (l *Loop) RunOnce(ctx context.Context) {
	for _, tgt := range l.targets {
		if ctx.Err() != nil {
			return
		}
		l.check(ctx, tgt)
	}
}

func (l *Loop) check(ctx context.Context, tgt Target) {
	v, err := tgt.Observer.Observe(ctx)
	if err != nil {
		slog.Warn("monitor: observation failed",
			"entity", tgt.ID,
			"err", err,
		)
		v = classify.Failed(l.now())
	}

	l.snaps.Put(snapshot.Entry{
		EntityID:     tgt.ID,
		DisplayName:  tgt.Name,
		DashboardURL: tgt.URL,
		Verdict:      v,
	})

	// Unknown is not evidence of recovery or of failure. Leave the stored
	// state untouched so the next definitive observation decides.
	if v.Severity == classify.SeverityUnknown {
		return
	}

	prev, seen := l.states.Get(tgt.ID)

	if v.Severity == classify.SeverityError {
		if seen && prev == classify.SeverityError {
			slog.Debug("monitor: still in error, alert suppressed", "entity", tgt.ID)
			return
		}
		l.fire(ctx, tgt, v)
		l.states.Set(tgt.ID, classify.SeverityError)
		return
	}

	l.states.Set(tgt.ID, v.Severity)
	slog.Debug("monitor: entity checked",
		"entity", tgt.ID,
		"severity", string(v.Severity),
		"summary", v.Summary,
	)
}

// fire delivers the alert and records the outcome. Delivery failure does not
// roll back the state transition: the alert had its one chance.
func (l *Loop) fire(ctx context.Context, tgt Target, v classify.Verdict) {
	a := alert.Alert{
		EntityID:     tgt.ID,
		EntityName:   tgt.Name,
		DashboardURL: tgt.URL,
		StatusLabel:  string(v.Severity),
		Summary:      v.Summary,
		FiredAt:      l.now(),
	}

	err := l.sink.Deliver(ctx, a)
	if err != nil {
		slog.Error("monitor: alert delivery failed", "entity", tgt.ID, "err", err)
	} else {
		slog.Info("monitor: alert fired",
			"entity", tgt.ID,
			"summary", v.Summary,
		)
	}

	if l.recorder != nil {
		errText := ""
		if err != nil {
			errText = err.Error()
		}
		if recErr := l.recorder.Append(ctx, a, err == nil, errText); recErr != nil {
			slog.Error("monitor: history append failed", "entity", tgt.ID, "err", recErr)
		}
	}
}
