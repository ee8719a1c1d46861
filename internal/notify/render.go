package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalist/internal/domain"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

const (
	colorUp   = "#10b981"
	colorDown = "#ef4444"
)

var million = decimal.NewFromInt(1_000_000)

// alertView is the data every alert template receives.
type alertView struct {
	RecipientName string
	AlertName     string
	Symbol        string
	Company       string
	CurrentPrice  string
	TargetPrice   string
	Condition     string
	ChangePercent string
	PriceColor    string
	CurrentVolume string
	AlertMessage  string
	AverageVolume string
	VolumeSpike   string
	Timestamp     string
}

// Renderer builds alert e-mails from the embedded templates. The zero value
// is not usable; call NewRenderer.
type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
	now  func() time.Time
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	h, err := htmltemplate.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("notify: parse html templates: %w", err)
	}
	t, err := texttemplate.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("notify: parse text templates: %w", err)
	}
	return &Renderer{html: h, text: t, now: time.Now}, nil
}

// Render builds the message for one triggered outcome addressed to to.
func (r *Renderer) Render(outcome domain.Outcome, to domain.Contact) (domain.Message, error) {
	if outcome.Quote == nil {
		return domain.Message{}, fmt.Errorf("notify: render alert %s: no quote", outcome.Alert.ID)
	}
	if to.Email == "" {
		return domain.Message{}, fmt.Errorf("notify: render alert %s: %w", outcome.Alert.ID, domain.ErrNoContact)
	}

	view := r.view(outcome, to)
	var name string
	switch outcome.Kind {
	case domain.NotificationUpper, domain.NotificationLower:
		name = "price"
	case domain.NotificationVolume:
		name = "volume"
	default:
		return domain.Message{}, fmt.Errorf("notify: render alert %s: unknown notification kind %q",
			outcome.Alert.ID, outcome.Kind)
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := r.html.ExecuteTemplate(&htmlBuf, name+".html", view); err != nil {
		return domain.Message{}, fmt.Errorf("notify: render %s html: %w", name, err)
	}
	if err := r.text.ExecuteTemplate(&textBuf, name+".txt", view); err != nil {
		return domain.Message{}, fmt.Errorf("notify: render %s text: %w", name, err)
	}

	return domain.Message{
		To:      to.Email,
		Subject: Subject(outcome),
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

func (r *Renderer) view(o domain.Outcome, to domain.Contact) alertView {
	q := o.Quote
	at := q.FetchedAt
	if at.IsZero() {
		at = r.now()
	}
	company := o.Alert.Company
	if company == "" {
		company = o.Alert.Symbol
	}
	color := colorUp
	if q.ChangePercent.IsNegative() {
		color = colorDown
	}
	return alertView{
		RecipientName: to.Name,
		AlertName:     o.Alert.Name,
		Symbol:        o.Alert.Symbol,
		Company:       company,
		CurrentPrice:  FormatPrice(q.Price),
		TargetPrice:   target(o.Alert),
		Condition:     condition(o.Alert),
		ChangePercent: FormatPercent(q.ChangePercent),
		PriceColor:    color,
		CurrentVolume: FormatVolume(q.Volume),
		AlertMessage:  "Volume exceeded " + FormatVolume(o.Alert.Threshold),
		AverageVolume: "N/A",
		VolumeSpike:   "High Activity",
		Timestamp:     FormatTimestamp(at),
	}
}

// Subject returns the e-mail subject line for a triggered outcome.
func Subject(o domain.Outcome) string {
	sym := o.Alert.Symbol
	switch o.Kind {
	case domain.NotificationVolume:
		return "📊 Volume Alert: High activity detected for " + sym
	case domain.NotificationLower:
		if o.Alert.Comparison == domain.ComparisonMovesDownBy {
			return fmt.Sprintf("📉 Alert: %s fell %s%% or more", sym, o.Alert.Threshold.String())
		}
		return fmt.Sprintf("📉 Alert: %s dropped below %s", sym, FormatPrice(o.Alert.Threshold))
	default:
		if o.Alert.Comparison == domain.ComparisonMovesUpBy {
			return fmt.Sprintf("📈 Alert: %s rose %s%% or more", sym, o.Alert.Threshold.String())
		}
		return fmt.Sprintf("📈 Alert: %s reached upper target %s", sym, FormatPrice(o.Alert.Threshold))
	}
}

func target(a domain.Alert) string {
	switch a.Comparison {
	case domain.ComparisonMovesUpBy:
		return "+" + a.Threshold.String() + "%"
	case domain.ComparisonMovesDownBy:
		return "-" + a.Threshold.String() + "%"
	}
	if a.Kind == domain.AlertKindVolume {
		return FormatVolume(a.Threshold)
	}
	return FormatPrice(a.Threshold)
}

func condition(a domain.Alert) string {
	switch a.Comparison {
	case domain.ComparisonGreater:
		return "at or above"
	case domain.ComparisonLess:
		return "at or below"
	case domain.ComparisonMovesUpBy:
		return "up by at least"
	case domain.ComparisonMovesDownBy:
		return "down by at least"
	}
	return string(a.Comparison)
}

// FormatPrice renders a USD amount with two decimals and thousands
// separators, e.g. "$1,234.50" or "-$3.10".
func FormatPrice(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	out := "$" + groupThousands(intPart) + "." + frac
	if d.Round(2).IsNegative() {
		return "-" + out
	}
	return out
}

// FormatVolume renders a share count in millions, e.g. "12.35M".
func FormatVolume(d decimal.Decimal) string {
	return d.Div(million).StringFixed(2) + "M"
}

// FormatPercent renders a signed percent change, e.g. "+1.25%" or "-0.40%".
func FormatPercent(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if !strings.HasPrefix(s, "-") {
		s = "+" + s
	}
	return s + "%"
}

// FormatTimestamp renders t in UTC, e.g. "Oct 18, 2026, 2:05 PM UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006, 3:04 PM") + " UTC"
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
