// Package alerttest provides in-memory fakes of the alert service
// dependencies.
package alerttest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"pricealerts/internal/alert"
	"pricealerts/internal/apperr"
	"pricealerts/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an alert.Store kept in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	alerts map[string]models.PriceAlert
	events []models.AlertEvent
	nextID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]models.PriceAlert)}
}

// Put stores a as-is, bypassing duplicate checks and events.
func (m *MemoryStore) Put(a models.PriceAlert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.alerts[a.ID] = a
}

// AddEvent appends ev directly, for seeding history.
func (m *MemoryStore) AddEvent(ev models.AlertEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendEvent(ev)
}

// Events returns a copy of the recorded events.
func (m *MemoryStore) Events() []models.AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.AlertEvent, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOf returns the recorded events of one kind.
func (m *MemoryStore) EventsOf(kind models.EventKind) []models.AlertEvent {
	var out []models.AlertEvent
	for _, ev := range m.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (m *MemoryStore) ActiveAlerts(_ context.Context, f alert.Filter) ([]models.PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	symbols := make(map[string]bool, len(f.Symbols))
	for _, s := range f.Symbols {
		symbols[s] = true
	}

	var out []models.PriceAlert
	for _, a := range m.alerts {
		if !a.IsActive {
			continue
		}
		if f.Market != "" && a.Market != f.Market {
			continue
		}
		if len(symbols) > 0 && !symbols[a.Symbol] {
			continue
		}
		out = append(out, a)
	}
	sortAlerts(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) GetAlert(_ context.Context, id string) (*models.PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, userID string) ([]models.PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.PriceAlert
	for _, a := range m.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sortAlerts(out)
	return out, nil
}

func (m *MemoryStore) CreateAlert(_ context.Context, a *models.PriceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.alerts {
		if other.UserID == a.UserID && other.Symbol == a.Symbol &&
			other.Market == a.Market && other.Type == a.Type {
			return apperr.ErrDuplicateAlert
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.alerts[a.ID] = *a
	m.appendEvent(models.NewAlertEvent(models.EventCreated, a, a.CreatedAt))
	return nil
}

func (m *MemoryStore) UpdateAlert(_ context.Context, a *models.PriceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[a.ID]; !ok {
		return apperr.ErrNotFound
	}
	m.alerts[a.ID] = *a
	m.appendEvent(models.NewAlertEvent(models.EventUpdated, a, a.UpdatedAt))
	return nil
}

func (m *MemoryStore) DeleteAlert(_ context.Context, a *models.PriceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[a.ID]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.alerts, a.ID)
	m.appendEvent(models.NewAlertEvent(models.EventDeleted, a, time.Now().UTC()))
	return nil
}

func (m *MemoryStore) MarkTriggered(_ context.Context, triggers []alert.Trigger) ([]alert.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var applied []alert.Trigger
	for _, t := range triggers {
		a, ok := m.alerts[t.Alert.ID]
		if !ok || !a.IsActive {
			continue
		}
		at := t.At
		a.IsActive = false
		a.TriggeredAt = &at
		a.UpdatedAt = at
		m.alerts[a.ID] = a

		ev := models.NewAlertEvent(models.EventTriggered, &a, at)
		price := t.Price
		ev.TriggeredPrice = &price
		m.appendEvent(ev)

		t.Alert = a
		applied = append(applied, t)
	}
	return applied, nil
}

func (m *MemoryStore) CountEventsSince(_ context.Context, userID string, kind models.EventKind, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, ev := range m.events {
		if ev.UserID == userID && ev.Kind == kind && !ev.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) appendEvent(ev models.AlertEvent) {
	m.nextID++
	ev.ID = m.nextID
	m.events = append(m.events, ev)
}

func sortAlerts(list []models.PriceAlert) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// Prices is a scripted alert.PriceSource.
type Prices struct {
	mu sync.Mutex

	Limit  map[models.Market]int
	Quotes map[models.Market]map[string]decimal.Decimal
	// FailBatch makes every multi-symbol request fail.
	FailBatch bool

	BatchCalls  int
	SingleCalls int
}

var ErrNoQuote = errors.New("no quote")

func NewPrices() *Prices {
	return &Prices{
		Limit:  map[models.Market]int{models.MarketSpot: 100, models.MarketFutures: 0},
		Quotes: make(map[models.Market]map[string]decimal.Decimal),
	}
}

// Set quotes price for symbol on market.
func (p *Prices) Set(market models.Market, symbol, price string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Quotes[market] == nil {
		p.Quotes[market] = make(map[string]decimal.Decimal)
	}
	p.Quotes[market][symbol] = decimal.RequireFromString(price)
}

func (p *Prices) BatchLimit(market models.Market) int {
	return p.Limit[market]
}

func (p *Prices) TickerPrice(_ context.Context, market models.Market, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SingleCalls++

	q, ok := p.Quotes[market][symbol]
	if !ok {
		return decimal.Zero, ErrNoQuote
	}
	return q, nil
}

func (p *Prices) TickerPrices(_ context.Context, market models.Market, symbols []string) (map[string]decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BatchCalls++

	if p.FailBatch && len(symbols) > 1 {
		return nil, errors.New("batch rejected")
	}
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		if q, ok := p.Quotes[market][s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

// Notifier records the triggers it was asked to deliver.
type Notifier struct {
	mu    sync.Mutex
	Calls [][]alert.Trigger
	Err   error
}

func (n *Notifier) Notify(_ context.Context, triggers []alert.Trigger) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = append(n.Calls, triggers)
	if n.Err != nil {
		return 0, n.Err
	}
	users := make(map[string]struct{})
	for _, t := range triggers {
		users[t.Alert.UserID] = struct{}{}
	}
	return len(users), nil
}
