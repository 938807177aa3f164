package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/mapwatch/mapwatch/internal/classify"
	"github.com/mapwatch/mapwatch/internal/config"
	"github.com/mapwatch/mapwatch/internal/session"
)

// Observer produces a fresh verdict for one entity. An error means the
// observation itself failed (network, auth, malformed payload); the monitor
// loop degrades it to an Unknown verdict rather than trusting partial data.
type Observer interface {
	Observe(ctx context.Context) (classify.Verdict, error)
}

// New returns the Observer for one configured entity. Entities observed
// through the dashboard share the one authenticated Gateway; metrics
// entities each get their own plain HTTP client.
func New(e config.Entity, gw *session.Gateway, cls *classify.Classifier) (Observer, error) {
	switch e.Probe {
	case "", "map":
		if gw == nil {
			return nil, fmt.Errorf("probe %q: map probe requires a session gateway", e.ID)
		}
		return &dashboardObserver{gateway: gw, classifier: cls, mapID: e.MapID}, nil
	case "metrics":
		return newMetricsObserver(e.Metrics), nil
	default:
		return nil, fmt.Errorf("probe %q: unsupported type %q", e.ID, e.Probe)
	}
}

// dashboardObserver observes an entity by fetching its map page fragment and
// classifying the markup.
type dashboardObserver struct {
	gateway    *session.Gateway
	classifier *classify.Classifier
	mapID      int
}

func (o *dashboardObserver) Observe(ctx context.Context) (classify.Verdict, error) {
	frag, err := o.gateway.FetchFragment(ctx, o.mapID)
	if err != nil {
		return classify.Verdict{}, err
	}
	return o.classifier.Classify(frag, time.Now())
}
