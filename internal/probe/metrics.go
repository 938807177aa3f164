package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/mapwatch/mapwatch/internal/classify"
	"github.com/mapwatch/mapwatch/internal/config"
)

// Default metric family names for dashboards that export their sensor totals
// in Prometheus text format.
const (
	defaultErrorMetric   = "sensors_down"
	defaultWarningMetric = "sensors_warning"
	defaultOKMetric      = "sensors_up"
)

const metricsTimeout = 10 * time.Second

// metricsObserver reads current sensor counts from a text exposition
// endpoint. The families are gauges of the current count per status, so no
// delta tracking is needed — each scrape is a complete observation.
type metricsObserver struct {
	endpoint string
	errName  string
	warnName string
	okName   string
	client   *http.Client
}

func newMetricsObserver(cfg config.MetricsProbeConfig) *metricsObserver {
	o := &metricsObserver{
		endpoint: cfg.Endpoint,
		errName:  cfg.ErrorMetric,
		warnName: cfg.WarningMetric,
		okName:   cfg.OKMetric,
		client:   &http.Client{Timeout: metricsTimeout},
	}
	if o.errName == "" {
		o.errName = defaultErrorMetric
	}
	if o.warnName == "" {
		o.warnName = defaultWarningMetric
	}
	if o.okName == "" {
		o.okName = defaultOKMetric
	}
	return o
}

func (o *metricsObserver) Observe(ctx context.Context) (classify.Verdict, error) {
	mfs, err := o.fetch(ctx)
	if err != nil {
		return classify.Verdict{}, err
	}

	return classify.FromCounts(
		int(sumFamily(mfs[o.errName])),
		int(sumFamily(mfs[o.warnName])),
		int(sumFamily(mfs[o.okName])),
		time.Now(),
	), nil
}

// fetch performs an HTTP GET and parses the exposition into metric families.
func (o *metricsObserver) fetch(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe: metrics get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probe: metrics get: unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition. A partial result with a
// non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("probe: parse metrics: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (family absent from the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
