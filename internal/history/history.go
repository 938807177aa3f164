// Package history persists an audit log of fired alerts to SQLite or MySQL.
// Entity debounce state is not stored here; only the record of what was
// delivered and whether delivery succeeded.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mapwatch/mapwatch/internal/alert"
	"github.com/mapwatch/mapwatch/internal/config"
)

const queryTimeout = 5 * time.Second

// Record is one row of the alert audit log.
type Record struct {
	ID          int64     `json:"id"`
	EntityID    string    `json:"entity_id"`
	EntityName  string    `json:"entity_name"`
	Summary     string    `json:"summary"`
	FiredAt     time.Time `json:"fired_at"`
	Delivered   bool      `json:"delivered"`
	DeliveryErr string    `json:"delivery_error,omitempty"`
}

type Store struct {
	db      *sql.DB
	dialect string
}

// Open connects to the backend named in cfg ("sqlite" or "mysql") and
// ensures the alert_history table exists.
func Open(cfg config.HistoryConfig) (*Store, error) {
	dsn := cfg.ResolveDSN()
	var driver string
	switch cfg.Backend {
	case "sqlite":
		driver = "sqlite3"
		if dsn != ":memory:" {
			dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", dsn)
		}
	case "mysql":
		driver = "mysql"
		dsn = mysqlDSN(dsn)
	default:
		return nil, fmt.Errorf("history: unknown backend %q", cfg.Backend)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", cfg.Backend, err)
	}
	if cfg.Backend == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(2 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping %s: %w", cfg.Backend, err)
	}

	s := &Store{db: db, dialect: cfg.Backend}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// mysqlDSN appends parseTime=true if not already set. Without it the driver
// hands DATETIME columns back as []uint8 and scanning fired_at into a
// time.Time fails.
func mysqlDSN(dsn string) string {
	if strings.Contains(dsn, "parseTime") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS alert_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id TEXT NOT NULL,
		entity_name TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		fired_at TIMESTAMP NOT NULL,
		delivered INTEGER NOT NULL,
		delivery_error TEXT NOT NULL DEFAULT ''
	)`
	if s.dialect == "mysql" {
		ddl = `CREATE TABLE IF NOT EXISTS alert_history (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			entity_id VARCHAR(128) NOT NULL,
			entity_name VARCHAR(255) NOT NULL,
			summary VARCHAR(255) NOT NULL DEFAULT '',
			fired_at DATETIME NOT NULL,
			delivered TINYINT(1) NOT NULL,
			delivery_error TEXT
		)`
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("history: create table: %w", err)
	}
	return nil
}

// Append records a fired alert and the outcome of its delivery.
func (s *Store) Append(ctx context.Context, a alert.Alert, delivered bool, deliveryErr string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_history (entity_id, entity_name, summary, fired_at, delivered, delivery_error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.EntityID, a.EntityName, a.Summary, a.FiredAt.UTC(), delivered, deliveryErr)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_id, entity_name, summary, fired_at, delivered, delivery_error
		FROM alert_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.EntityID, &r.EntityName, &r.Summary, &r.FiredAt, &r.Delivered, &r.DeliveryErr); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
