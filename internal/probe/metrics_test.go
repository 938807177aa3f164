package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mapwatch/mapwatch/internal/classify"
	"github.com/mapwatch/mapwatch/internal/config"
)

const expositionFixture = `# HELP sensors_up Sensors currently in the up state.
# TYPE sensors_up gauge
sensors_up 42
# HELP sensors_warning Sensors currently in the warning state.
# TYPE sensors_warning gauge
sensors_warning 0
# HELP sensors_down Sensors currently in the down state.
# TYPE sensors_down gauge
sensors_down 0
`

func metricsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMetricsObserverAllClear(t *testing.T) {
	srv := metricsServer(t, expositionFixture)

	obs := newMetricsObserver(config.MetricsProbeConfig{Endpoint: srv.URL})
	v, err := obs.Observe(context.Background())
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if v.Severity != classify.SeverityNormal {
		t.Fatalf("severity = %q, want %q", v.Severity, classify.SeverityNormal)
	}
	if v.OKCount != 42 {
		t.Errorf("OKCount = %d, want 42", v.OKCount)
	}
}

func TestMetricsObserverErrorsDominate(t *testing.T) {
	body := strings.NewReplacer(
		"sensors_down 0", "sensors_down 3",
		"sensors_warning 0", "sensors_warning 2",
	).Replace(expositionFixture)
	srv := metricsServer(t, body)

	obs := newMetricsObserver(config.MetricsProbeConfig{Endpoint: srv.URL})
	v, err := obs.Observe(context.Background())
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if v.Severity != classify.SeverityError {
		t.Fatalf("severity = %q, want %q", v.Severity, classify.SeverityError)
	}
	if v.ErrorCount != 3 || v.WarningCount != 2 {
		t.Errorf("counts = %d errors, %d warnings, want 3 and 2", v.ErrorCount, v.WarningCount)
	}
}

func TestMetricsObserverCustomFamilies(t *testing.T) {
	srv := metricsServer(t, `dash_red 0
dash_yellow 1
dash_green 9
`)

	obs := newMetricsObserver(config.MetricsProbeConfig{
		Endpoint:      srv.URL,
		ErrorMetric:   "dash_red",
		WarningMetric: "dash_yellow",
		OKMetric:      "dash_green",
	})
	v, err := obs.Observe(context.Background())
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if v.Severity != classify.SeverityWarning {
		t.Fatalf("severity = %q, want %q", v.Severity, classify.SeverityWarning)
	}
}

func TestMetricsObserverUnreachable(t *testing.T) {
	obs := newMetricsObserver(config.MetricsProbeConfig{Endpoint: "http://127.0.0.1:1/metrics"})
	if _, err := obs.Observe(context.Background()); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}

func TestMetricsObserverBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	obs := newMetricsObserver(config.MetricsProbeConfig{Endpoint: srv.URL})
	if _, err := obs.Observe(context.Background()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
