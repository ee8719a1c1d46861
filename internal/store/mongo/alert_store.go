package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// AlertStore implements domain.AlertStore over the alerts collection.
type AlertStore struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(db *mongo.Database, logger *slog.Logger) *AlertStore {
	return &AlertStore{
		coll:   db.Collection(AlertsCollection),
		logger: logger.With(slog.String("component", "mongo_alert_store")),
	}
}

// alertDoc mirrors the web app's alert schema.
type alertDoc struct {
	ID              primitive.ObjectID `bson:"_id"`
	UserID          string             `bson:"userId"`
	Symbol          string             `bson:"symbol"`
	Company         string             `bson:"company"`
	AlertName       string             `bson:"alertName"`
	AlertType       string             `bson:"alertType"`
	Condition       string             `bson:"condition"`
	Threshold       float64            `bson:"threshold"`
	Frequency       string             `bson:"frequency"`
	Active          bool               `bson:"active"`
	LastTriggeredAt *time.Time         `bson:"lastTriggeredAt,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func (d alertDoc) toDomain() (domain.Alert, error) {
	if math.IsNaN(d.Threshold) || math.IsInf(d.Threshold, 0) {
		return domain.Alert{}, fmt.Errorf("%w: alert %s: threshold %v is not finite", domain.ErrInvalidAlert, d.ID.Hex(), d.Threshold)
	}
	kind := d.AlertType
	if kind == "" {
		kind = string(domain.AlertKindPrice)
	}
	cooldown := d.Frequency
	if cooldown == "" {
		cooldown = string(domain.CooldownOnce)
	}

	a := domain.Alert{
		ID:         d.ID.Hex(),
		OwnerID:    d.UserID,
		Symbol:     domain.NormalizeSymbol(d.Symbol),
		Company:    d.Company,
		Name:       d.AlertName,
		Kind:       domain.AlertKind(kind),
		Comparison: domain.Comparison(d.Condition),
		Threshold:  decimal.NewFromFloat(d.Threshold),
		Cooldown:   domain.Cooldown(cooldown),
		Active:     d.Active,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	if d.LastTriggeredAt != nil {
		t := d.LastTriggeredAt.UTC()
		a.LastTriggeredAt = &t
	}
	return a, nil
}

// dueFilter renders the single due-selection filter for now.
func dueFilter(now time.Time) bson.M {
	or := bson.A{bson.M{"lastTriggeredAt": nil}}
	for _, c := range domain.DueCutoffs(now) {
		or = append(or, bson.M{
			"frequency":       string(c.Cooldown),
			"lastTriggeredAt": bson.M{"$lte": c.Cutoff},
		})
	}
	return bson.M{"active": true, "$or": or}
}

// ListDue returns every active alert that is due at now. Documents that do
// not decode into an alert are returned as rejected.
func (s *AlertStore) ListDue(ctx context.Context, now time.Time) ([]domain.Alert, []domain.ItemError, error) {
	cur, err := s.coll.Find(ctx, dueFilter(now))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo: list due alerts: %w", err)
	}
	defer cur.Close(ctx)

	var (
		alerts   []domain.Alert
		rejected []domain.ItemError
	)
	for cur.Next(ctx) {
		a, key, err := decodeAlert(cur.Current)
		if err != nil {
			s.logger.WarnContext(ctx, "rejecting unreadable alert document",
				slog.String("alert_id", key),
				slog.String("error", err.Error()),
			)
			rejected = append(rejected, domain.ItemError{
				Stage: domain.StageSelect,
				Key:   key,
				Err:   err,
			})
			continue
		}
		alerts = append(alerts, a)
	}
	if err := cur.Err(); err != nil {
		return nil, nil, fmt.Errorf("mongo: iterate alerts: %w", err)
	}
	return alerts, rejected, nil
}

// decodeAlert converts one raw alerts document. The returned key is the
// document's _id as far as it could be read, for error reporting.
func decodeAlert(raw bson.Raw) (domain.Alert, string, error) {
	key := rawID(raw)
	var d alertDoc
	if err := bson.Unmarshal(raw, &d); err != nil {
		return domain.Alert{}, key, fmt.Errorf("%w: alert %s: decode: %v", domain.ErrInvalidAlert, key, err)
	}
	a, err := d.toDomain()
	if err != nil {
		return domain.Alert{}, key, err
	}
	return a, a.ID, nil
}

func rawID(raw bson.Raw) string {
	v, err := raw.LookupErr("_id")
	if err != nil {
		return ""
	}
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if str, ok := v.StringValueOK(); ok {
		return str
	}
	return v.String()
}

// markFilter targets one alert and only matches while the stored timestamp
// is older than at.
func markFilter(id primitive.ObjectID, at time.Time) bson.M {
	return bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"lastTriggeredAt": nil},
			bson.M{"lastTriggeredAt": bson.M{"$lt": at}},
		},
	}
}

// MarkTriggered sets lastTriggeredAt for one alert, only moving it forward.
func (s *AlertStore) MarkTriggered(ctx context.Context, alertID string, at time.Time) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(alertID)
	if err != nil {
		return false, fmt.Errorf("mongo: mark alert %s triggered: %w", alertID, err)
	}
	res, err := s.coll.UpdateOne(ctx, markFilter(oid, at), bson.M{
		"$set": bson.M{"lastTriggeredAt": at},
	})
	if err != nil {
		return false, fmt.Errorf("mongo: mark alert %s triggered: %w", alertID, err)
	}
	return res.ModifiedCount == 1, nil
}

// Compile-time interface check.
var _ domain.AlertStore = (*AlertStore)(nil)
