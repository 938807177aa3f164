package api

// HealthResponse summarizes all live entities for GET /api/v1/health.
type HealthResponse struct {
	State        string `json:"state"`
	EntityCount  int    `json:"entity_count"`
	NormalCount  int    `json:"normal_count"`
	WarningCount int    `json:"warning_count"`
	ErrorCount   int    `json:"error_count"`
	UnknownCount int    `json:"unknown_count"`
}

// EntityResponse is the JSON shape of one monitored entity.
type EntityResponse struct {
	EntityID     string `json:"entity_id"`
	DisplayName  string `json:"display_name"`
	DashboardURL string `json:"dashboard_url,omitempty"`
	Severity     string `json:"severity"`
	Summary      string `json:"summary,omitempty"`
	ErrorCount   int    `json:"error_count"`
	WarningCount int    `json:"warning_count"`
	OKCount      int    `json:"ok_count"`
	ObservedAt   string `json:"observed_at"`
	LastSeen     string `json:"last_seen"`
}

type errorResponse struct {
	Error string `json:"error"`
}
