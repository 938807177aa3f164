// Package probe abstracts how one entity's status is observed. The dashboard
// probe fetches a map fragment through the shared session and classifies its
// markup; the metrics probe reads current sensor counts from a Prometheus
// text exposition endpoint.
package probe
