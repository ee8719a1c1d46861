package notify

import (
	"errors"
	"html"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalist/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func outcome(kind domain.NotificationKind, cmp domain.Comparison, threshold string) domain.Outcome {
	alertKind := domain.AlertKindPrice
	if kind == domain.NotificationVolume {
		alertKind = domain.AlertKindVolume
	}
	return domain.Outcome{
		Alert: domain.Alert{
			ID: "a1", OwnerID: "u1", Symbol: "AAPL", Company: "Apple Inc.", Name: "Apple breakout",
			Kind: alertKind, Comparison: cmp, Threshold: dec(threshold),
		},
		Triggered: true,
		Kind:      kind,
		Quote: &domain.QuoteSnapshot{
			Symbol:        "AAPL",
			Price:         dec("1234.5"),
			Volume:        dec("12345678"),
			ChangePercent: dec("-0.456"),
			FetchedAt:     time.Date(2026, 10, 18, 14, 5, 0, 0, time.UTC),
		},
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		name string
		o    domain.Outcome
		want string
	}{
		{"upper", outcome(domain.NotificationUpper, domain.ComparisonGreater, "200"), "📈 Alert: AAPL reached upper target $200.00"},
		{"lower", outcome(domain.NotificationLower, domain.ComparisonLess, "150.5"), "📉 Alert: AAPL dropped below $150.50"},
		{"volume", outcome(domain.NotificationVolume, domain.ComparisonGreater, "1000000"), "📊 Volume Alert: High activity detected for AAPL"},
		{"moves up", outcome(domain.NotificationUpper, domain.ComparisonMovesUpBy, "2.5"), "📈 Alert: AAPL rose 2.5% or more"},
		{"moves down", outcome(domain.NotificationLower, domain.ComparisonMovesDownBy, "3"), "📉 Alert: AAPL fell 3% or more"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Subject(tt.o); got != tt.want {
				t.Fatalf("Subject = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatters(t *testing.T) {
	prices := map[string]string{
		"0":          "$0.00",
		"5":          "$5.00",
		"999.999":    "$1,000.00",
		"1234.5":     "$1,234.50",
		"1234567.89": "$1,234,567.89",
		"-3.1":       "-$3.10",
		"-0.001":     "$0.00",
	}
	for in, want := range prices {
		if got := FormatPrice(dec(in)); got != want {
			t.Errorf("FormatPrice(%s) = %q, want %q", in, got, want)
		}
	}

	if got := FormatVolume(dec("12345678")); got != "12.35M" {
		t.Errorf("FormatVolume = %q", got)
	}
	if got := FormatPercent(dec("1.254")); got != "+1.25%" {
		t.Errorf("FormatPercent(+) = %q", got)
	}
	if got := FormatPercent(dec("-0.456")); got != "-0.46%" {
		t.Errorf("FormatPercent(-) = %q", got)
	}
	ts := time.Date(2026, 10, 18, 14, 5, 0, 0, time.FixedZone("X", 2*3600))
	if got := FormatTimestamp(ts); got != "Oct 18, 2026, 12:05 PM UTC" {
		t.Errorf("FormatTimestamp = %q", got)
	}
}

func TestRenderer_PriceAlert(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	o := outcome(domain.NotificationUpper, domain.ComparisonGreater, "1200")
	o.Alert.Company = "Apple <Inc>"

	msg, err := r.Render(o, domain.Contact{UserID: "u1", Email: "ann@example.com", Name: "Ann"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if msg.To != "ann@example.com" || msg.Subject != "📈 Alert: AAPL reached upper target $1,200.00" {
		t.Fatalf("unexpected header fields %+v", msg)
	}
	for _, want := range []string{"$1,234.50", "$1,200.00", "-0.46%", colorDown, "Oct 18, 2026, 2:05 PM UTC", "Apple &lt;Inc&gt;"} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(msg.HTML, "Apple <Inc>") {
		t.Errorf("company name not escaped in html")
	}
	if !strings.Contains(msg.Text, "Current price: $1,234.50") || !strings.Contains(msg.Text, "Apple <Inc>") {
		t.Errorf("unexpected text body:\n%s", msg.Text)
	}
}

func TestRenderer_VolumeAlert(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	o := outcome(domain.NotificationVolume, domain.ComparisonGreater, "5000000")
	o.Quote.ChangePercent = dec("2")

	msg, err := r.Render(o, domain.Contact{UserID: "u1", Email: "ann@example.com"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// html/template escapes "+" as &#43; in text nodes.
	body := html.UnescapeString(msg.HTML)
	for _, want := range []string{"12.35M", "Volume exceeded 5.00M", "N/A", "High Activity", "+2.00%", colorUp} {
		if !strings.Contains(body, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestRenderer_Errors(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	to := domain.Contact{UserID: "u1", Email: "ann@example.com"}

	noQuote := outcome(domain.NotificationUpper, domain.ComparisonGreater, "1")
	noQuote.Quote = nil
	if _, err := r.Render(noQuote, to); err == nil {
		t.Fatal("expected error for missing quote")
	}

	if _, err := r.Render(outcome(domain.NotificationUpper, domain.ComparisonGreater, "1"), domain.Contact{UserID: "u1"}); !errors.Is(err, domain.ErrNoContact) {
		t.Fatalf("err = %v, want ErrNoContact", err)
	}

	if _, err := r.Render(outcome("sideways", domain.ComparisonGreater, "1"), to); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
