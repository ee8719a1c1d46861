package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalist/internal/domain"
)

const alertColumns = `id, user_id, symbol, company, name, kind, comparison, threshold::text,
		cooldown, active, last_triggered_at, created_at, updated_at`

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *pgxpool.Pool, logger *slog.Logger) *AlertStore {
	return &AlertStore{
		pool:   pool,
		logger: logger.With(slog.String("component", "postgres_alert_store")),
	}
}

// buildDueQuery renders the single due-selection query for now. Every
// repeating cooldown contributes one (cooldown, cutoff) pair of arguments.
func buildDueQuery(now time.Time) (string, []any) {
	cutoffs := domain.DueCutoffs(now)
	args := make([]any, 0, 2*len(cutoffs))
	clauses := make([]string, 0, len(cutoffs)+1)
	clauses = append(clauses, "last_triggered_at IS NULL")
	for _, c := range cutoffs {
		args = append(args, string(c.Cooldown), c.Cutoff)
		clauses = append(clauses, fmt.Sprintf("(cooldown = $%d AND last_triggered_at <= $%d)", len(args)-1, len(args)))
	}

	q := `SELECT ` + alertColumns + `
		FROM alerts
		WHERE active AND deleted_at IS NULL
		  AND (` + strings.Join(clauses, "\n\t\t    OR ") + `)
		ORDER BY symbol, id`
	return q, args
}

// ListDue returns every active, non-deleted alert that is due at now. Rows
// whose columns do not form an alert are returned as rejected.
func (s *AlertStore) ListDue(ctx context.Context, now time.Time) ([]domain.Alert, []domain.ItemError, error) {
	q, args := buildDueQuery(now)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: list due alerts: %w", err)
	}
	defer rows.Close()

	var scanned []alertRow
	for rows.Next() {
		var r alertRow
		if err := rows.Scan(&r.ID, &r.UserID, &r.Symbol, &r.Company, &r.Name, &r.Kind,
			&r.Comparison, &r.Threshold, &r.Cooldown, &r.Active, &r.LastTriggeredAt,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		scanned = append(scanned, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("postgres: iterate alerts: %w", err)
	}

	alerts, rejected := convertRows(scanned)
	for _, ie := range rejected {
		s.logger.WarnContext(ctx, "rejecting unreadable alert row",
			slog.String("alert_id", ie.Key),
			slog.String("error", ie.Err.Error()),
		)
	}
	return alerts, rejected, nil
}

// convertRows splits scanned rows into alerts and select-stage rejections.
func convertRows(rows []alertRow) ([]domain.Alert, []domain.ItemError) {
	alerts := make([]domain.Alert, 0, len(rows))
	var rejected []domain.ItemError
	for _, r := range rows {
		a, err := r.toDomain()
		if err != nil {
			rejected = append(rejected, domain.ItemError{
				Stage: domain.StageSelect,
				Key:   r.ID,
				Err:   err,
			})
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, rejected
}

// MarkTriggered sets last_triggered_at for one alert, only moving it forward.
// No other column is written, so concurrent edits by the owner survive.
func (s *AlertStore) MarkTriggered(ctx context.Context, alertID string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET last_triggered_at = $2
		WHERE id = $1 AND (last_triggered_at IS NULL OR last_triggered_at < $2)`,
		alertID, at,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: mark alert %s triggered: %w", alertID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// alertRow is the scan target for one alerts row.
type alertRow struct {
	ID              string
	UserID          string
	Symbol          string
	Company         string
	Name            string
	Kind            string
	Comparison      string
	Threshold       string
	Cooldown        string
	Active          bool
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r alertRow) toDomain() (domain.Alert, error) {
	// numeric columns admit 'NaN' and, since PG 14, infinities.
	threshold, err := decimal.NewFromString(r.Threshold)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("%w: alert %s: threshold %q: %v", domain.ErrInvalidAlert, r.ID, r.Threshold, err)
	}
	a := domain.Alert{
		ID:         r.ID,
		OwnerID:    r.UserID,
		Symbol:     domain.NormalizeSymbol(r.Symbol),
		Company:    r.Company,
		Name:       r.Name,
		Kind:       domain.AlertKind(r.Kind),
		Comparison: domain.Comparison(r.Comparison),
		Threshold:  threshold,
		Cooldown:   domain.Cooldown(r.Cooldown),
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.LastTriggeredAt != nil {
		t := r.LastTriggeredAt.UTC()
		a.LastTriggeredAt = &t
	}
	return a, nil
}

// Compile-time interface check.
var _ domain.AlertStore = (*AlertStore)(nil)
