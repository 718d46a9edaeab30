package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pricealerts/internal/metrics"
	"pricealerts/internal/models"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type CheckRequest struct {
	Market  models.Market
	Symbols []string
}

type CheckResult struct {
	Checked       int `json:"checked"`
	Triggered     int `json:"triggered"`
	NotifiedUsers int `json:"notifiedUsers"`
}

type TriggerResult struct {
	Success     bool       `json:"success"`
	AlertID     string     `json:"alertId"`
	TriggeredAt *time.Time `json:"triggeredAt"`
}

// priceBook holds the last price per market and symbol.
type priceBook map[models.Market]map[string]decimal.Decimal

// Check evaluates every active alert matching req against current exchange
// prices. Crossed alerts are deactivated and audited in one transaction;
// notifications follow and their failures never undo the trigger.
func (s *Service) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	ctx, span := tracer.Start(ctx, "alert.Check", trace.WithAttributes(
		attribute.String("alert.market", string(req.Market)),
		attribute.Int("alert.symbols", len(req.Symbols)),
	))
	defer span.End()

	alerts, err := s.store.ActiveAlerts(ctx, Filter{Market: req.Market, Symbols: normalizeSymbols(req.Symbols)})
	if err != nil {
		return nil, fmt.Errorf("load active alerts: %w", err)
	}
	span.SetAttributes(attribute.Int("alerts.active", len(alerts)))

	result := &CheckResult{Checked: len(alerts)}
	if len(alerts) == 0 {
		return result, nil
	}

	book := s.fetchPrices(ctx, symbolsByMarket(alerts))

	now := s.now().UTC()
	var triggers []Trigger
	for _, a := range alerts {
		metrics.AlertsChecked.WithLabelValues(string(a.Market)).Inc()

		price, ok := book[a.Market][a.Symbol]
		if !ok {
			continue
		}
		if a.Crossed(price) {
			triggers = append(triggers, Trigger{Alert: a, Price: price, At: now})
		}
	}

	if len(triggers) == 0 {
		s.logger.Info("alert check finished", zap.Int("checked", result.Checked), zap.Int("triggered", 0))
		return result, nil
	}

	applied, err := s.store.MarkTriggered(ctx, triggers)
	if err != nil {
		return nil, fmt.Errorf("mark alerts triggered: %w", err)
	}
	result.Triggered = len(applied)
	result.NotifiedUsers = s.afterTrigger(ctx, applied, "batch")

	s.logger.Info("alert check finished",
		zap.Int("checked", result.Checked),
		zap.Int("triggered", result.Triggered),
		zap.Int("notified_users", result.NotifiedUsers))
	return result, nil
}

// TriggerSingle triggers one alert at a price supplied by the caller.
// An alert that is already inactive is reported as success and left alone.
func (s *Service) TriggerSingle(ctx context.Context, id string, price decimal.Decimal, at *time.Time) (*TriggerResult, error) {
	ctx, span := tracer.Start(ctx, "alert.TriggerSingle", trace.WithAttributes(attribute.String("alert.id", id)))
	defer span.End()

	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return &TriggerResult{Success: true, AlertID: a.ID, TriggeredAt: a.TriggeredAt}, nil
	}

	when := s.now().UTC()
	if at != nil && !at.IsZero() {
		when = at.UTC()
	}

	applied, err := s.store.MarkTriggered(ctx, []Trigger{{Alert: *a, Price: price, At: when}})
	if err != nil {
		return nil, fmt.Errorf("mark alert triggered: %w", err)
	}
	if len(applied) == 0 {
		// lost a race with another trigger; report what that trigger stored
		stored, err := s.store.GetAlert(ctx, id)
		if err != nil {
			return nil, err
		}
		return &TriggerResult{Success: true, AlertID: stored.ID, TriggeredAt: stored.TriggeredAt}, nil
	}

	s.afterTrigger(ctx, applied, "single")
	return &TriggerResult{Success: true, AlertID: a.ID, TriggeredAt: &when}, nil
}

// WorkerFeed lists active alerts for external schedulers.
func (s *Service) WorkerFeed(ctx context.Context, market models.Market, symbols []string, limit int) ([]models.PriceAlert, error) {
	if limit <= 0 {
		limit = s.opts.WorkerDefaultLimit
	}
	if limit > s.opts.WorkerMaxLimit {
		limit = s.opts.WorkerMaxLimit
	}
	return s.store.ActiveAlerts(ctx, Filter{Market: market, Symbols: normalizeSymbols(symbols), Limit: limit})
}

func (s *Service) afterTrigger(ctx context.Context, applied []Trigger, path string) int {
	events := make([]models.AlertEvent, 0, len(applied))
	for _, t := range applied {
		metrics.AlertsTriggered.WithLabelValues(string(t.Alert.Market), path).Inc()

		ev := models.NewAlertEvent(models.EventTriggered, &t.Alert, t.At)
		price := t.Price
		ev.TriggeredPrice = &price
		events = append(events, ev)

		s.logger.Info("alert triggered",
			zap.String("alert_id", t.Alert.ID),
			zap.String("user_id", t.Alert.UserID),
			zap.String("symbol", t.Alert.Symbol),
			zap.String("market", string(t.Alert.Market)),
			zap.String("type", string(t.Alert.Type)),
			zap.String("target", t.Alert.TargetPrice.String()),
			zap.String("price", t.Price.String()))
	}
	s.publish(ctx, events...)

	if s.notifier == nil {
		return 0
	}
	notified, err := s.notifier.Notify(ctx, applied)
	if err != nil {
		s.logger.Error("alert notification dispatch failed", zap.Error(err))
	}
	return notified
}

// fetchPrices loads prices for every market in parallel batches. A failed
// batch only leaves its own symbols without a price.
func (s *Service) fetchPrices(ctx context.Context, symbols map[models.Market][]string) priceBook {
	ctx, span := tracer.Start(ctx, "alert.fetchPrices")
	defer span.End()

	var (
		mu   sync.Mutex
		book = make(priceBook, len(symbols))
	)

	// every market's map exists before the first batch goroutine starts
	for market, list := range symbols {
		book[market] = make(map[string]decimal.Decimal, len(list))
	}

	var g errgroup.Group
	g.SetLimit(s.opts.FetchConcurrency)

	for market, list := range symbols {
		for _, batch := range chunk(list, s.batchSize(market)) {
			g.Go(func() error {
				prices := s.fetchBatch(ctx, market, batch)

				mu.Lock()
				for sym, p := range prices {
					book[market][sym] = p
				}
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	return book
}

// batchSize is the configured batch size capped by the source's own limit.
// A source limit of zero means one call returns every symbol.
func (s *Service) batchSize(market models.Market) int {
	limit := s.prices.BatchLimit(market)
	if limit == 0 {
		return 0
	}
	if limit < s.opts.BatchSize {
		return limit
	}
	return s.opts.BatchSize
}

// fetchBatch requests prices for one batch. When a multi-symbol request
// fails, each symbol is retried on its own so one bad symbol cannot blind
// the whole batch.
func (s *Service) fetchBatch(ctx context.Context, market models.Market, batch []string) map[string]decimal.Decimal {
	prices, err := s.prices.TickerPrices(ctx, market, batch)
	if err == nil {
		return prices
	}

	metrics.PriceFetchFailures.WithLabelValues(string(market), "batch").Inc()
	s.logger.Warn("price batch request failed",
		zap.String("market", string(market)),
		zap.Int("symbols", len(batch)),
		zap.Error(err))

	if len(batch) == 1 {
		return nil
	}

	out := make(map[string]decimal.Decimal, len(batch))
	for _, sym := range batch {
		if ctx.Err() != nil {
			break
		}
		p, err := s.prices.TickerPrice(ctx, market, sym)
		if err != nil {
			metrics.PriceFetchFailures.WithLabelValues(string(market), "single").Inc()
			s.logger.Warn("single price request failed",
				zap.String("market", string(market)),
				zap.String("symbol", sym),
				zap.Error(err))
			continue
		}
		out[sym] = p
	}
	return out
}

// symbolsByMarket returns the sorted distinct symbols of alerts per market.
func symbolsByMarket(alerts []models.PriceAlert) map[models.Market][]string {
	seen := make(map[models.Market]map[string]struct{})
	for _, a := range alerts {
		if seen[a.Market] == nil {
			seen[a.Market] = make(map[string]struct{})
		}
		seen[a.Market][a.Symbol] = struct{}{}
	}

	out := make(map[models.Market][]string, len(seen))
	for market, set := range seen {
		list := make([]string, 0, len(set))
		for sym := range set {
			list = append(list, sym)
		}
		sort.Strings(list)
		out[market] = list
	}
	return out
}

// chunk splits list into slices of at most size elements; size <= 0 keeps
// the list whole.
func chunk(list []string, size int) [][]string {
	if size <= 0 || len(list) <= size {
		return [][]string{list}
	}
	var res [][]string
	for i := 0; i < len(list); i += size {
		end := i + size
		if end > len(list) {
			end = len(list)
		}
		res = append(res, list[i:end])
	}
	return res
}

func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = NormalizeSymbol(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
