package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultInterval    = 60 * time.Second
	DefaultHTTPPort    = 8080
	DefaultSnapshotTTL = 5 * time.Minute
	DefaultSMTPPort    = 587

	// Default swatch colors of the dashboard product: red for a failing
	// sensor tile, green for a healthy one.
	DefaultErrorColor  = "#e30613"
	DefaultNormalColor = "#00c000"
)

// Config is the top-level mapwatch configuration.
type Config struct {
	Dashboard DashboardConfig `yaml:"dashboard"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Entities  []Entity        `yaml:"entities"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	History   HistoryConfig   `yaml:"history"`
	Web       WebConfig       `yaml:"web"`
}

// DashboardConfig describes the monitored dashboard installation and the
// credentials for its login form.
type DashboardConfig struct {
	// BaseURL is the root of the dashboard, e.g. "https://prtg.example.com".
	BaseURL string `yaml:"base_url"`

	// Username is the login account (safe to store in config).
	Username string `yaml:"username"`

	// PasswordEnv is the name of the environment variable holding the
	// login password.
	PasswordEnv string `yaml:"password_env"`

	// TLS holds optional TLS dial options for self-signed installations.
	TLS TLSConfig `yaml:"tls"`
}

// Password returns the login password resolved from the environment.
func (d DashboardConfig) Password() string {
	if d.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(d.PasswordEnv)
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs or self-signed dashboard installs.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// MonitorConfig controls the check loop.
type MonitorConfig struct {
	// Interval is the pause between full passes over all entities.
	Interval time.Duration `yaml:"interval"`

	// ErrorColor and NormalColor are only consulted for dashboards that
	// render raw color swatches instead of status classes.
	ErrorColor  string `yaml:"error_color"`
	NormalColor string `yaml:"normal_color"`
}

// Entity describes one monitored target.
type Entity struct {
	// ID is a unique, stable identifier used to key per-entity state.
	ID string `yaml:"id"`

	// Name is the human-readable name used in notifications.
	Name string `yaml:"name"`

	// Probe selects how the entity is observed: "map" (dashboard map page,
	// the default) or "metrics" (Prometheus text exposition endpoint).
	Probe string `yaml:"probe"`

	// MapID is the dashboard map page identifier — used by the map probe.
	MapID int `yaml:"map_id"`

	// Metrics configures the metrics probe.
	Metrics MetricsProbeConfig `yaml:"metrics"`
}

// MetricsProbeConfig describes a Prometheus-format status endpoint.
type MetricsProbeConfig struct {
	// Endpoint is the full URL of the text exposition endpoint.
	Endpoint string `yaml:"endpoint"`

	// Metric family names holding the current sensor counts per status.
	ErrorMetric   string `yaml:"error_metric"`
	WarningMetric string `yaml:"warning_metric"`
	OKMetric      string `yaml:"ok_metric"`
}

// AlertsConfig holds notification delivery settings.
type AlertsConfig struct {
	Email    EmailConfig     `yaml:"email"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// EmailConfig configures the SMTP alert sink. Leaving Host empty disables
// email delivery entirely.
type EmailConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// StartTLS upgrades the connection before authenticating. Defaults to
	// true; set to false only for trusted internal relays.
	StartTLS bool `yaml:"starttls"`

	// Username and the password resolved from PasswordEnv are optional —
	// unauthenticated relays are common on internal networks.
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`

	Sender     string   `yaml:"sender"`
	Recipients []string `yaml:"recipients"`
}

// Enabled reports whether email delivery is configured at all.
func (e EmailConfig) Enabled() bool { return e.Host != "" }

// Password returns the SMTP password resolved from the environment.
func (e EmailConfig) Password() string {
	if e.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(e.PasswordEnv)
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// HistoryConfig configures the optional alert audit log.
type HistoryConfig struct {
	// Backend selects the storage driver: "" (disabled) | sqlite | mysql.
	Backend string `yaml:"backend"`

	// DSN is the driver-specific data source name. Prefer DSNEnv when the
	// DSN embeds credentials.
	DSN    string `yaml:"dsn"`
	DSNEnv string `yaml:"dsn_env"`
}

// Enabled reports whether the audit log is configured.
func (h HistoryConfig) Enabled() bool { return h.Backend != "" }

// ResolveDSN returns the data source name, preferring the environment.
func (h HistoryConfig) ResolveDSN() string {
	if h.DSNEnv != "" {
		return os.Getenv(h.DSNEnv)
	}
	return h.DSN
}

// WebConfig configures the read-only status API and WebSocket hub.
type WebConfig struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// SnapshotTTL is how long a stale entity snapshot stays visible after
	// its last update.
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values. Unmarshal only
// overwrites fields actually present in the file.
func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Interval:    DefaultInterval,
			ErrorColor:  DefaultErrorColor,
			NormalColor: DefaultNormalColor,
		},
		Alerts: AlertsConfig{
			Email: EmailConfig{
				Port:     DefaultSMTPPort,
				StartTLS: true,
			},
		},
		Web: WebConfig{
			Port:        DefaultHTTPPort,
			SnapshotTTL: DefaultSnapshotTTL,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if len(cfg.Entities) == 0 {
		return fmt.Errorf("no entities configured")
	}

	needsSession := false
	seen := make(map[string]struct{}, len(cfg.Entities))
	for i, e := range cfg.Entities {
		if e.ID == "" {
			return fmt.Errorf("entities[%d]: id is required", i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("entities[%d]: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = struct{}{}

		switch e.Probe {
		case "", "map":
			if e.MapID <= 0 {
				return fmt.Errorf("entities[%d] %q: map_id is required", i, e.ID)
			}
			needsSession = true
		case "metrics":
			if e.Metrics.Endpoint == "" {
				return fmt.Errorf("entities[%d] %q: metrics.endpoint is required", i, e.ID)
			}
		default:
			return fmt.Errorf("entities[%d] %q: unknown probe %q", i, e.ID, e.Probe)
		}
	}

	if needsSession {
		if cfg.Dashboard.BaseURL == "" {
			return fmt.Errorf("dashboard.base_url is required for map probes")
		}
		if cfg.Dashboard.Username == "" {
			return fmt.Errorf("dashboard.username is required for map probes")
		}
		if cfg.Dashboard.PasswordEnv == "" {
			return fmt.Errorf("dashboard.password_env is required for map probes")
		}
	}

	if cfg.Alerts.Email.Enabled() {
		if cfg.Alerts.Email.Sender == "" {
			return fmt.Errorf("alerts.email.sender is required")
		}
		if len(cfg.Alerts.Email.Recipients) == 0 {
			return fmt.Errorf("alerts.email.recipients is required")
		}
	}

	for i, wh := range cfg.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("alerts.webhooks[%d]: url_env is required", i)
		}
	}

	switch cfg.History.Backend {
	case "", "sqlite", "mysql":
	default:
		return fmt.Errorf("history.backend must be sqlite or mysql, got %q", cfg.History.Backend)
	}
	if cfg.History.Enabled() && cfg.History.DSN == "" && cfg.History.DSNEnv == "" {
		return fmt.Errorf("history: dsn or dsn_env is required when a backend is set")
	}

	return nil
}
