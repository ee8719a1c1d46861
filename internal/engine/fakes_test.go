package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalist/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func priceAlert(id, owner, symbol string, cmp domain.Comparison, threshold string) domain.Alert {
	return domain.Alert{
		ID:         id,
		OwnerID:    owner,
		Symbol:     symbol,
		Kind:       domain.AlertKindPrice,
		Comparison: cmp,
		Threshold:  dec(threshold),
		Cooldown:   domain.CooldownOncePerHour,
		Active:     true,
	}
}

// fakeAlertStore is an in-memory AlertStore.
type fakeAlertStore struct {
	mu        sync.Mutex
	alerts    []domain.Alert
	rejected  []domain.ItemError
	listErr   error
	markErr   map[string]error
	marked    map[string]time.Time
	markCalls int
}

func newFakeAlertStore(alerts ...domain.Alert) *fakeAlertStore {
	return &fakeAlertStore{
		alerts:  alerts,
		markErr: map[string]error{},
		marked:  map[string]time.Time{},
	}
}

func (f *fakeAlertStore) ListDue(_ context.Context, now time.Time) ([]domain.Alert, []domain.ItemError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, nil, f.listErr
	}
	var out []domain.Alert
	for _, a := range f.alerts {
		if a.IsDue(now) {
			out = append(out, a)
		}
	}
	return out, f.rejected, nil
}

func (f *fakeAlertStore) MarkTriggered(_ context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if err := f.markErr[id]; err != nil {
		return false, err
	}
	for i := range f.alerts {
		if f.alerts[i].ID != id {
			continue
		}
		last := f.alerts[i].LastTriggeredAt
		if last != nil && !last.Before(at) {
			return false, nil
		}
		ts := at
		f.alerts[i].LastTriggeredAt = &ts
		f.marked[id] = at
		return true, nil
	}
	return false, nil
}

func (f *fakeAlertStore) markedAt(id string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.marked[id]
	return t, ok
}

// fakeQuoteSource serves fixed quotes and counts calls per symbol.
type fakeQuoteSource struct {
	mu       sync.Mutex
	quotes   map[string]domain.QuoteSnapshot
	fail     map[string]error
	calls    map[string]int
	inFlight int
	peak     int
	delay    time.Duration
	block    chan struct{}
	started  chan struct{}
}

func newFakeQuoteSource() *fakeQuoteSource {
	return &fakeQuoteSource{
		quotes: map[string]domain.QuoteSnapshot{},
		fail:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakeQuoteSource) set(symbol, price, volume, change string) {
	f.quotes[symbol] = domain.QuoteSnapshot{
		Symbol:        symbol,
		Price:         dec(price),
		Volume:        dec(volume),
		ChangePercent: dec(change),
		FetchedAt:     time.Now().UTC(),
	}
}

func (f *fakeQuoteSource) Quote(ctx context.Context, symbol string) (domain.QuoteSnapshot, error) {
	f.mu.Lock()
	f.calls[symbol]++
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	started, block, delay := f.started, f.block, f.delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.QuoteSnapshot{}, ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[symbol]; err != nil {
		return domain.QuoteSnapshot{}, err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return domain.QuoteSnapshot{}, domain.ErrMalformedQuote
	}
	return q, nil
}

func (f *fakeQuoteSource) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func (f *fakeQuoteSource) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// fakeDirectory maps user IDs to e-mail addresses.
type fakeDirectory struct {
	mu       sync.Mutex
	contacts map[string]domain.Contact
	err      error
	calls    int
}

func newFakeDirectory(ids ...string) *fakeDirectory {
	d := &fakeDirectory{contacts: map[string]domain.Contact{}}
	for _, id := range ids {
		d.contacts[id] = domain.Contact{UserID: id, Email: id + "@example.com", Name: id}
	}
	return d
}

func (d *fakeDirectory) ResolveContacts(_ context.Context, ids []string) (map[string]domain.Contact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	out := map[string]domain.Contact{}
	for _, id := range ids {
		if c, ok := d.contacts[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

type fakeRenderer struct {
	err error
}

func (r fakeRenderer) Render(o domain.Outcome, to domain.Contact) (domain.Message, error) {
	if r.err != nil {
		return domain.Message{}, r.err
	}
	return domain.Message{
		To:      to.Email,
		Subject: string(o.Kind) + " " + o.Alert.Symbol,
		Text:    o.Alert.ID,
	}, nil
}

// fakeMessageSink records sent messages and fails for chosen recipients.
type fakeMessageSink struct {
	mu     sync.Mutex
	sent   []domain.Message
	failTo map[string]bool
}

func newFakeMessageSink() *fakeMessageSink {
	return &fakeMessageSink{failTo: map[string]bool{}}
}

var errSinkDown = errors.New("smtp: 554 transaction failed")

func (s *fakeMessageSink) Send(_ context.Context, m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTo[m.To] {
		return errSinkDown
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeMessageSink) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
