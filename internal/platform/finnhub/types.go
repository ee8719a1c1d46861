package finnhub

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// APIQuote is the JSON body of GET /quote. Finnhub sends null for the change
// fields of symbols it does not know.
type APIQuote struct {
	Current       decimal.NullDecimal `json:"c"`
	Change        decimal.NullDecimal `json:"d"`
	ChangePercent decimal.NullDecimal `json:"dp"`
	High          decimal.NullDecimal `json:"h"`
	Low           decimal.NullDecimal `json:"l"`
	Open          decimal.NullDecimal `json:"o"`
	PreviousClose decimal.NullDecimal `json:"pc"`
	Timestamp     int64               `json:"t"`
	Volume        decimal.NullDecimal `json:"v"`
}

// ToDomainQuote validates the payload and converts it. A zero price with a
// zero timestamp is how Finnhub answers for an unknown symbol.
func (q APIQuote) ToDomainQuote(symbol string, fetchedAt time.Time) (domain.QuoteSnapshot, error) {
	if !q.Current.Valid {
		return domain.QuoteSnapshot{}, fmt.Errorf("%w: %s: missing current price", domain.ErrMalformedQuote, symbol)
	}
	if q.Current.Decimal.IsZero() && q.Timestamp == 0 {
		return domain.QuoteSnapshot{}, fmt.Errorf("%w: %s: unknown symbol", domain.ErrMalformedQuote, symbol)
	}
	if q.Current.Decimal.IsNegative() {
		return domain.QuoteSnapshot{}, fmt.Errorf("%w: %s: negative price %s", domain.ErrMalformedQuote, symbol, q.Current.Decimal)
	}
	if q.Volume.Valid && q.Volume.Decimal.IsNegative() {
		return domain.QuoteSnapshot{}, fmt.Errorf("%w: %s: negative volume %s", domain.ErrMalformedQuote, symbol, q.Volume.Decimal)
	}

	return domain.QuoteSnapshot{
		Symbol:        symbol,
		Price:         q.Current.Decimal,
		Volume:        q.Volume.Decimal,
		ChangePercent: q.ChangePercent.Decimal,
		PreviousClose: q.PreviousClose.Decimal,
		FetchedAt:     fetchedAt,
	}, nil
}
