package postgres

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
)

func TestBuildDueQuery(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	q, args := buildDueQuery(now)

	if !strings.Contains(q, "WHERE active AND deleted_at IS NULL") {
		t.Fatalf("query does not filter inactive alerts:\n%s", q)
	}
	if !strings.Contains(q, "last_triggered_at IS NULL") {
		t.Fatalf("query does not select never-triggered alerts:\n%s", q)
	}
	if strings.Contains(q, "'once'") {
		t.Fatalf("once must never be re-selected:\n%s", q)
	}
	if len(args) != 10 {
		t.Fatalf("expected 10 args, got %d", len(args))
	}
	if !strings.Contains(q, "(cooldown = $9 AND last_triggered_at <= $10)") {
		t.Fatalf("placeholders out of order:\n%s", q)
	}

	for i := 0; i < len(args); i += 2 {
		c := domain.Cooldown(args[i].(string))
		window, ok := c.Window()
		if !ok {
			t.Fatalf("arg %d: %q is not a repeating cooldown", i, c)
		}
		cutoff := args[i+1].(time.Time)
		if !cutoff.Equal(now.Add(-window)) {
			t.Fatalf("%s cutoff = %v, want %v", c, cutoff, now.Add(-window))
		}
	}
	if args[6] != string(domain.CooldownOncePerHour) {
		t.Fatalf("args[6] = %v, want once_per_hour", args[6])
	}
	if got := args[7].(time.Time); !got.Equal(now.Add(-time.Hour)) {
		t.Fatalf("hourly cutoff = %v", got)
	}
}

func TestAlertRow_ToDomain(t *testing.T) {
	last := time.Date(2026, 10, 18, 11, 0, 0, 0, time.FixedZone("EST", -5*3600))
	r := alertRow{
		ID:              "a1",
		UserID:          "u1",
		Symbol:          " aapl",
		Kind:            "price",
		Comparison:      "greater",
		Threshold:       "100.00",
		Cooldown:        "once_per_hour",
		Active:          true,
		LastTriggeredAt: &last,
	}
	a, err := r.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if a.Symbol != "AAPL" || a.OwnerID != "u1" || a.Threshold.String() != "100" {
		t.Fatalf("unexpected alert %+v", a)
	}
	if a.LastTriggeredAt.Location() != time.UTC || !a.LastTriggeredAt.Equal(last) {
		t.Fatalf("LastTriggeredAt = %v", a.LastTriggeredAt)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	r.Threshold = "NaN"
	if _, err := r.toDomain(); err == nil {
		t.Fatal("expected error for NaN threshold")
	}
}

func TestConvertRows_RejectsUnreadableThresholds(t *testing.T) {
	good := alertRow{ID: "good", UserID: "u1", Symbol: "AAPL", Kind: "price",
		Comparison: "greater", Threshold: "10", Cooldown: "once", Active: true}
	rows := []alertRow{good}
	for _, th := range []string{"Infinity", "-Infinity", "NaN", ""} {
		r := good
		r.ID = "bad-" + th
		r.Threshold = th
		rows = append(rows, r)
	}

	alerts, rejected := convertRows(rows)
	if len(alerts) != 1 || alerts[0].ID != "good" {
		t.Fatalf("alerts = %+v", alerts)
	}
	if len(rejected) != 4 {
		t.Fatalf("rejected %d rows, want 4: %+v", len(rejected), rejected)
	}
	for _, ie := range rejected {
		if ie.Stage != domain.StageSelect || !strings.HasPrefix(ie.Key, "bad-") {
			t.Fatalf("unexpected rejection %+v", ie)
		}
		if !errors.Is(ie.Err, domain.ErrInvalidAlert) {
			t.Fatalf("rejection %s does not wrap ErrInvalidAlert: %v", ie.Key, ie.Err)
		}
	}
}

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames(migrationsFS)
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Fatalf("names = %v", names)
	}
}

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", User: "signalist", Password: "pw", Database: "signalist"})
	want := "postgres://signalist:pw@db:5432/signalist?sslmode=disable"
	if got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Fatalf("explicit DSN not preferred: %q", got)
	}
}
