package history

import (
	"context"
	"testing"
	"time"

	"github.com/mapwatch/mapwatch/internal/alert"
	"github.com/mapwatch/mapwatch/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.HistoryConfig{Backend: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fired := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	for i, a := range []alert.Alert{
		{EntityID: "core-fw", EntityName: "Core Firewall", Summary: "errors: 2", FiredAt: fired},
		{EntityID: "edge-sw", EntityName: "Edge Switch", Summary: "errors: 1", FiredAt: fired.Add(time.Minute)},
	} {
		delivered := i == 0
		errText := ""
		if !delivered {
			errText = "webhook returned HTTP 502"
		}
		if err := s.Append(ctx, a, delivered, errText); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	// Most recent first.
	if recs[0].EntityID != "edge-sw" {
		t.Errorf("first record = %q, want edge-sw", recs[0].EntityID)
	}
	if recs[0].Delivered {
		t.Error("edge-sw record should be marked undelivered")
	}
	if recs[0].DeliveryErr == "" {
		t.Error("undelivered record should carry the delivery error")
	}
	if !recs[1].Delivered {
		t.Error("core-fw record should be marked delivered")
	}
	if !recs[1].FiredAt.Equal(fired) {
		t.Errorf("fired_at = %v, want %v", recs[1].FiredAt, fired)
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a := alert.Alert{EntityID: "e", EntityName: "E", FiredAt: time.Now().UTC()}
		if err := s.Append(ctx, a, true, ""); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	recs, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("got %d records, want 3", len(recs))
	}
}

func TestRecentEmpty(t *testing.T) {
	s := openTestStore(t)
	recs, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d records from empty store, want 0", len(recs))
	}
}

func TestMySQLDSNParseTime(t *testing.T) {
	tests := []struct {
		dsn, want string
	}{
		{"user:pass@tcp(db:3306)/mapwatch", "user:pass@tcp(db:3306)/mapwatch?parseTime=true"},
		{"user:pass@tcp(db:3306)/mapwatch?charset=utf8mb4", "user:pass@tcp(db:3306)/mapwatch?charset=utf8mb4&parseTime=true"},
		{"user:pass@tcp(db:3306)/mapwatch?parseTime=true", "user:pass@tcp(db:3306)/mapwatch?parseTime=true"},
		{"user:pass@tcp(db:3306)/mapwatch?parseTime=false", "user:pass@tcp(db:3306)/mapwatch?parseTime=false"},
	}
	for _, tt := range tests {
		if got := mysqlDSN(tt.dsn); got != tt.want {
			t.Errorf("mysqlDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(config.HistoryConfig{Backend: "postgres", DSN: "x"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
