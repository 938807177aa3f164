package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mapwatch/mapwatch/internal/alert"
	"github.com/mapwatch/mapwatch/internal/classify"
	"github.com/mapwatch/mapwatch/internal/snapshot"
	"github.com/mapwatch/mapwatch/internal/state"
)

// scriptedObserver returns one pre-planned verdict (or error) per call.
type scriptedObserver struct {
	verdicts []classify.Verdict
	errs     []error
	call     int
}

func (o *scriptedObserver) Observe(context.Context) (classify.Verdict, error) {
	i := o.call
	o.call++
	if i >= len(o.verdicts) {
		i = len(o.verdicts) - 1 // repeat the last verdict
	}
	if i < len(o.errs) && o.errs[i] != nil {
		return classify.Verdict{}, o.errs[i]
	}
	return o.verdicts[i], nil
}

type capturingSink struct {
	alerts []alert.Alert
	err    error
}

func (s *capturingSink) Deliver(_ context.Context, a alert.Alert) error {
	s.alerts = append(s.alerts, a)
	return s.err
}

type memRecorder struct {
	delivered []bool
}

func (r *memRecorder) Append(_ context.Context, _ alert.Alert, delivered bool, _ string) error {
	r.delivered = append(r.delivered, delivered)
	return nil
}

func verdict(sev classify.Severity) classify.Verdict {
	return classify.Verdict{Severity: sev, Summary: "test"}
}

func newTestLoop(obs *scriptedObserver, sink alert.Sink, rec Recorder) *Loop {
	targets := []Target{{ID: "core-fw", Name: "Core Firewall", URL: "https://dash.example.com/mapshow.htm?id=1", Observer: obs}}
	l := New(targets, state.New(), snapshot.New(5*time.Minute), sink, rec, time.Minute)
	l.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	return l
}

// Six cycles covering the whole debounce contract: a fresh error alerts,
// a repeated error stays silent, an unknown observation changes nothing,
// recovery re-arms, and the next error alerts again.
func TestDebounceSequence(t *testing.T) {
	obs := &scriptedObserver{
		verdicts: []classify.Verdict{
			verdict(classify.SeverityNormal),
			verdict(classify.SeverityError),
			verdict(classify.SeverityError),
			verdict(classify.SeverityUnknown),
			verdict(classify.SeverityNormal),
			verdict(classify.SeverityError),
		},
	}
	sink := &capturingSink{}
	l := newTestLoop(obs, sink, nil)

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		l.RunOnce(ctx)
	}

	if len(sink.alerts) != 2 {
		t.Fatalf("fired %d alerts, want 2", len(sink.alerts))
	}
	if sink.alerts[0].EntityID != "core-fw" {
		t.Errorf("alert entity = %q, want core-fw", sink.alerts[0].EntityID)
	}
}

func TestFirstObservationErrorAlerts(t *testing.T) {
	obs := &scriptedObserver{verdicts: []classify.Verdict{verdict(classify.SeverityError)}}
	sink := &capturingSink{}
	l := newTestLoop(obs, sink, nil)

	l.RunOnce(context.Background())

	if len(sink.alerts) != 1 {
		t.Fatalf("fired %d alerts, want 1", len(sink.alerts))
	}
}

func TestUnknownDoesNotRearm(t *testing.T) {
	obs := &scriptedObserver{
		verdicts: []classify.Verdict{
			verdict(classify.SeverityError),
			verdict(classify.SeverityUnknown),
			verdict(classify.SeverityError),
		},
	}
	sink := &capturingSink{}
	l := newTestLoop(obs, sink, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		l.RunOnce(ctx)
	}

	// The unknown cycle must not clear the error state, so the third
	// cycle's error is suppressed.
	if len(sink.alerts) != 1 {
		t.Fatalf("fired %d alerts, want 1", len(sink.alerts))
	}
}

func TestObservationFailureBecomesUnknown(t *testing.T) {
	obs := &scriptedObserver{
		verdicts: []classify.Verdict{{}, verdict(classify.SeverityNormal)},
		errs:     []error{errors.New("fetch: connection refused"), nil},
	}
	sink := &capturingSink{}
	l := newTestLoop(obs, sink, nil)

	ctx := context.Background()
	l.RunOnce(ctx)

	e, ok := l.snaps.Get("core-fw")
	if !ok {
		t.Fatal("snapshot missing after failed observation")
	}
	if e.Verdict.Severity != classify.SeverityUnknown {
		t.Errorf("snapshot severity = %q, want unknown", e.Verdict.Severity)
	}
	if e.Verdict.Summary != classify.SummaryCheckFailed {
		t.Errorf("snapshot summary = %q, want %q", e.Verdict.Summary, classify.SummaryCheckFailed)
	}
	if len(sink.alerts) != 0 {
		t.Errorf("fired %d alerts on failed observation, want 0", len(sink.alerts))
	}
}

func TestDeliveryFailureStillCommitsState(t *testing.T) {
	obs := &scriptedObserver{
		verdicts: []classify.Verdict{
			verdict(classify.SeverityError),
			verdict(classify.SeverityError),
		},
	}
	sink := &capturingSink{err: errors.New("webhook returned HTTP 502")}
	rec := &memRecorder{}
	l := newTestLoop(obs, sink, rec)

	ctx := context.Background()
	l.RunOnce(ctx)
	l.RunOnce(ctx)

	// One delivery attempt only: the failed delivery still marked the
	// entity as alerted.
	if len(sink.alerts) != 1 {
		t.Fatalf("attempted %d deliveries, want 1", len(sink.alerts))
	}
	if len(rec.delivered) != 1 || rec.delivered[0] {
		t.Errorf("recorder entries = %v, want one undelivered record", rec.delivered)
	}
}

func TestEntitiesIndependent(t *testing.T) {
	obsA := &scriptedObserver{verdicts: []classify.Verdict{verdict(classify.SeverityError), verdict(classify.SeverityError)}}
	obsB := &scriptedObserver{verdicts: []classify.Verdict{verdict(classify.SeverityNormal), verdict(classify.SeverityError)}}
	sink := &capturingSink{}

	targets := []Target{
		{ID: "a", Name: "A", Observer: obsA},
		{ID: "b", Name: "B", Observer: obsB},
	}
	l := New(targets, state.New(), snapshot.New(5*time.Minute), sink, nil, time.Minute)

	ctx := context.Background()
	l.RunOnce(ctx)
	l.RunOnce(ctx)

	// a alerts once (second cycle suppressed); b alerts on its own
	// transition in the second cycle.
	if len(sink.alerts) != 2 {
		t.Fatalf("fired %d alerts, want 2", len(sink.alerts))
	}
	if sink.alerts[0].EntityID != "a" || sink.alerts[1].EntityID != "b" {
		t.Errorf("alert order = %q, %q, want a then b", sink.alerts[0].EntityID, sink.alerts[1].EntityID)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	obs := &scriptedObserver{verdicts: []classify.Verdict{verdict(classify.SeverityNormal)}}
	l := newTestLoop(obs, &capturingSink{}, nil)
	l.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	// Let the immediate first cycle happen, then cancel before the ticker
	// fires a second one.
	time.Sleep(2 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
