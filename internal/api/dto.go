package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// Res is the envelope of the user-facing API.
type Res struct {
	Success bool `json:"success"`
	Error   any  `json:"error"`
	Data    any  `json:"data"`
}

type ErrorType struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CreateAlertReq

type CreateAlertReq struct {
	Symbol      string          `json:"symbol" binding:"required,max=32"`
	Market      string          `json:"market" binding:"required,oneof=spot futures"`
	Type        string          `json:"type" binding:"required,oneof=above below"`
	TargetPrice decimal.Decimal `json:"targetPrice"`
}

type UpdateAlertReq struct {
	TargetPrice decimal.Decimal `json:"targetPrice"`
}

// CheckReq is the optional body of POST /alerts/check.
type CheckReq struct {
	Market  string   `json:"market" binding:"omitempty,oneof=spot futures"`
	Symbols []string `json:"symbols" binding:"omitempty,max=1000,dive,max=32"`
}

type TriggerSingleReq struct {
	AlertID     string          `json:"alertId" binding:"required,uuid"`
	Price       decimal.Decimal `json:"price"`
	TriggeredAt *time.Time      `json:"triggeredAt"`
}

type WorkerQuery struct {
	Market  string `form:"market" binding:"omitempty,oneof=spot futures"`
	Symbols string `form:"symbols"`
	Limit   int    `form:"limit" binding:"omitempty,min=1"`
}

type WorkerRes struct {
	Alerts any `json:"alerts"`
	Count  int `json:"count"`
}

// SubscribeReq mirrors the browser's PushSubscription.toJSON().
type SubscribeReq struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
}

type UnsubscribeReq struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

type VAPIDKeyRes struct {
	PublicKey string `json:"publicKey"`
}
