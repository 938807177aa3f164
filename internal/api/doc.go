// Package api serves the read-only JSON endpoints under /api/v1: overall
// health, per-entity status, and the recent alert log.
package api
