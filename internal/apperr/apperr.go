package apperr

import "net/http"

// Error is an error that carries the HTTP status it should be reported with.
type Error struct {
	StatusCode int
	Message    string
}

func New(statusCode int, message string) Error {
	return Error{StatusCode: statusCode, Message: message}
}

func (err Error) Error() string {
	return err.Message
}

var (
	ErrNotFound            = New(http.StatusNotFound, "alert not found")
	ErrDailyLimit          = New(http.StatusTooManyRequests, "daily alert creation limit reached")
	ErrPremiumRequired     = New(http.StatusForbidden, "price alerts require a premium subscription")
	ErrDuplicateAlert      = New(http.StatusConflict, "an alert with this symbol, market and type already exists")
	ErrUnknownSymbol       = New(http.StatusBadRequest, "symbol is not traded on this market")
	ErrUnauthorized        = New(http.StatusUnauthorized, "unauthorized")
	ErrSecretNotConfigured = New(http.StatusInternalServerError, "endpoint secret is not configured")
	ErrNoStreams           = New(http.StatusBadRequest, "streams parameter is required")
	ErrRateLimited         = New(http.StatusTooManyRequests, "too many stream connections, slow down")
)
