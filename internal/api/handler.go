package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pricealerts/internal/alert"
	"pricealerts/internal/apperr"
	"pricealerts/internal/models"
	"pricealerts/internal/notify"
	"pricealerts/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

type Handler struct {
	alerts   *alert.Service
	subs     notify.SubscriptionStore
	relay    *stream.Relay
	vapidKey string
	health   HealthChecker
	logger   *zap.Logger
}

func NewHandler(alerts *alert.Service, subs notify.SubscriptionStore, relay *stream.Relay, vapidKey string, health HealthChecker, logger *zap.Logger) *Handler {
	return &Handler{
		alerts:   alerts,
		subs:     subs,
		relay:    relay,
		vapidKey: vapidKey,
		health:   health,
		logger:   logger,
	}
}

// Stream relays an exchange stream as text/event-stream.
func (h *Handler) Stream(c *gin.Context) {
	req, err := stream.ParseRequest(c.Request.URL.Query())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.relay.Serve(c.Request.Context(), c.Writer, req); err != nil {
		_ = c.Error(err)
	}
}

// CheckAlerts evaluates active alerts against current prices.
func (h *Handler) CheckAlerts(c *gin.Context) {
	var req CheckReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(bindError(err))
		return
	}

	res, err := h.alerts.Check(c.Request.Context(), alert.CheckRequest{
		Market:  models.Market(req.Market),
		Symbols: req.Symbols,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// TriggerSingle triggers one alert at a caller-supplied price.
func (h *Handler) TriggerSingle(c *gin.Context) {
	var req TriggerSingleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if !req.Price.IsPositive() {
		_ = c.Error(apperr.New(http.StatusBadRequest, "price must be positive"))
		return
	}

	res, err := h.alerts.TriggerSingle(c.Request.Context(), req.AlertID, req.Price, req.TriggeredAt)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// WorkerFeed lists active alerts for external schedulers.
func (h *Handler) WorkerFeed(c *gin.Context) {
	var q WorkerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	var symbols []string
	if q.Symbols != "" {
		symbols = strings.Split(q.Symbols, ",")
	}

	list, err := h.alerts.WorkerFeed(c.Request.Context(), models.Market(q.Market), symbols, q.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if list == nil {
		list = []models.PriceAlert{}
	}
	c.JSON(http.StatusOK, WorkerRes{Alerts: list, Count: len(list)})
}

func (h *Handler) ListAlerts(c *gin.Context) {
	list, err := h.alerts.List(c.Request.Context(), principal(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if list == nil {
		list = []models.PriceAlert{}
	}
	c.JSON(http.StatusOK, Res{Success: true, Data: list})
}

func (h *Handler) CreateAlert(c *gin.Context) {
	var req CreateAlertReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	a, err := h.alerts.Create(c.Request.Context(), principal(c), alert.NewAlert{
		Symbol:      req.Symbol,
		Market:      models.Market(req.Market),
		Type:        models.AlertType(req.Type),
		TargetPrice: req.TargetPrice,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, Res{Success: true, Data: a})
}

func (h *Handler) UpdateAlert(c *gin.Context) {
	var req UpdateAlertReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	id, err := alertID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	a, err := h.alerts.UpdateTarget(c.Request.Context(), principal(c), id, req.TargetPrice)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, Res{Success: true, Data: a})
}

func (h *Handler) DeleteAlert(c *gin.Context) {
	id, err := alertID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.alerts.Delete(c.Request.Context(), principal(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, Res{Success: true})
}

// Subscribe stores the browser's push subscription for the caller.
func (h *Handler) Subscribe(c *gin.Context) {
	var req SubscribeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if req.Keys.P256dh == "" || req.Keys.Auth == "" {
		_ = c.Error(apperr.New(http.StatusBadRequest, "keys.p256dh and keys.auth are required"))
		return
	}

	userID := principal(c).UserID
	sub := &models.PushSubscription{
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
		UserID:   &userID,
	}
	if err := h.subs.UpsertSubscription(c.Request.Context(), sub); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, Res{Success: true})
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	var req UnsubscribeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if err := h.subs.DeleteSubscription(c.Request.Context(), req.Endpoint, principal(c).UserID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, Res{Success: true})
}

func (h *Handler) VAPIDKey(c *gin.Context) {
	if h.vapidKey == "" {
		_ = c.Error(apperr.New(http.StatusServiceUnavailable, "push notifications are not configured"))
		return
	}
	c.JSON(http.StatusOK, Res{Success: true, Data: VAPIDKeyRes{PublicKey: h.vapidKey}})
}

func (h *Handler) Health(c *gin.Context) {
	if h.health != nil && !h.health.IsHealthy(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// alertID reads the :id path parameter. Malformed IDs cannot exist, so they
// are reported as not found.
func alertID(c *gin.Context) (string, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", apperr.ErrNotFound
	}
	return id.String(), nil
}

// bindError keeps validation errors for field reporting and turns anything
// else (malformed JSON, bad numbers) into a 400.
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return ve
	}
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return apperr.New(http.StatusBadRequest, "invalid number: "+ne.Num)
	}
	return apperr.New(http.StatusBadRequest, "invalid request: "+err.Error())
}
