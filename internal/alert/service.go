package alert

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pricealerts/internal/apperr"
	"pricealerts/internal/metrics"
	"pricealerts/internal/models"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("pricealerts/alert")

type Options struct {
	BatchSize          int
	FetchConcurrency   int
	DailyCreateLimit   int
	WorkerDefaultLimit int
	WorkerMaxLimit     int
}

// Principal is the authenticated caller of the user-facing operations.
type Principal struct {
	UserID  string
	Premium bool
}

type NewAlert struct {
	Symbol      string
	Market      models.Market
	Type        models.AlertType
	TargetPrice decimal.Decimal
}

type Service struct {
	store     Store
	prices    PriceSource
	catalog   SymbolCatalog
	notifier  Notifier
	publisher EventPublisher
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithCatalog(c SymbolCatalog) Option    { return func(s *Service) { s.catalog = c } }
func WithNotifier(n Notifier) Option        { return func(s *Service) { s.notifier = n } }
func WithPublisher(p EventPublisher) Option { return func(s *Service) { s.publisher = p } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, prices PriceSource, opts Options, logger *zap.Logger, options ...Option) *Service {
	s := &Service{
		store:  store,
		prices: prices,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Create stores a new alert for p. Only premium users may create alerts,
// and at most DailyCreateLimit creations are allowed per UTC calendar day.
func (s *Service) Create(ctx context.Context, p Principal, in NewAlert) (*models.PriceAlert, error) {
	ctx, span := tracer.Start(ctx, "alert.Create")
	defer span.End()

	if !p.Premium {
		return nil, apperr.ErrPremiumRequired
	}

	in.Symbol = NormalizeSymbol(in.Symbol)
	if in.Symbol == "" {
		return nil, apperr.New(http.StatusBadRequest, "symbol is required")
	}
	if !in.TargetPrice.IsPositive() {
		return nil, apperr.New(http.StatusBadRequest, "targetPrice must be positive")
	}

	if s.catalog != nil {
		ok, err := s.catalog.IsTradable(ctx, in.Market, in.Symbol)
		switch {
		case err != nil:
			// exchange metadata unavailable; accept and let the evaluator skip it
			s.logger.Warn("symbol catalog lookup failed",
				zap.String("symbol", in.Symbol),
				zap.String("market", string(in.Market)),
				zap.Error(err))
		case !ok:
			return nil, apperr.ErrUnknownSymbol
		}
	}

	now := s.now().UTC()
	created, err := s.store.CountEventsSince(ctx, p.UserID, models.EventCreated, StartOfDayUTC(now))
	if err != nil {
		return nil, fmt.Errorf("count alert creations: %w", err)
	}
	if created >= int64(s.opts.DailyCreateLimit) {
		return nil, apperr.ErrDailyLimit
	}

	a := &models.PriceAlert{
		UserID:      p.UserID,
		Symbol:      in.Symbol,
		Market:      in.Market,
		Type:        in.Type,
		TargetPrice: in.TargetPrice,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateAlert(ctx, a); err != nil {
		return nil, err
	}

	metrics.AlertsCreated.Inc()
	s.publish(ctx, models.NewAlertEvent(models.EventCreated, a, now))
	s.logger.Info("alert created",
		zap.String("alert_id", a.ID),
		zap.String("user_id", a.UserID),
		zap.String("symbol", a.Symbol),
		zap.String("market", string(a.Market)),
		zap.String("type", string(a.Type)),
		zap.String("target", a.TargetPrice.String()))
	return a, nil
}

// UpdateTarget changes the target price of one of p's alerts. Any update of
// an inactive alert, or a changed target, re-arms it: the alert becomes
// active again and loses its trigger time.
func (s *Service) UpdateTarget(ctx context.Context, p Principal, id string, target decimal.Decimal) (*models.PriceAlert, error) {
	ctx, span := tracer.Start(ctx, "alert.UpdateTarget")
	defer span.End()

	if !target.IsPositive() {
		return nil, apperr.New(http.StatusBadRequest, "targetPrice must be positive")
	}

	a, err := s.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if a.TargetPrice.Equal(target) && a.IsActive {
		return a, nil
	}

	now := s.now().UTC()
	a.TargetPrice = target
	a.IsActive = true
	a.TriggeredAt = nil
	a.UpdatedAt = now
	if err := s.store.UpdateAlert(ctx, a); err != nil {
		return nil, err
	}

	s.publish(ctx, models.NewAlertEvent(models.EventUpdated, a, now))
	return a, nil
}

func (s *Service) Delete(ctx context.Context, p Principal, id string) error {
	ctx, span := tracer.Start(ctx, "alert.Delete")
	defer span.End()

	a, err := s.owned(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAlert(ctx, a); err != nil {
		return err
	}

	s.publish(ctx, models.NewAlertEvent(models.EventDeleted, a, s.now().UTC()))
	return nil
}

func (s *Service) List(ctx context.Context, p Principal) ([]models.PriceAlert, error) {
	return s.store.ListAlerts(ctx, p.UserID)
}

// owned loads id and hides alerts that belong to somebody else.
func (s *Service) owned(ctx context.Context, p Principal, id string) (*models.PriceAlert, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != p.UserID {
		return nil, apperr.ErrNotFound
	}
	return a, nil
}

func (s *Service) publish(ctx context.Context, events ...models.AlertEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish alert events", zap.Int("count", len(events)), zap.Error(err))
	}
}

// NormalizeSymbol upper-cases and trims an exchange symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// StartOfDayUTC returns midnight UTC of t's UTC calendar day.
func StartOfDayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsNotFound reports whether err is the not-found application error.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
