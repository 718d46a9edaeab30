package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"pricealerts/internal/alert"
	"pricealerts/internal/apperr"
	"pricealerts/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	maxAuthLen   = 4096
	principalKey = "principal"
)

// Error renders the first error attached to the context.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors[0].Err

		if errors.Is(c.Request.Context().Err(), context.DeadlineExceeded) {
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, Res{Error: "request timed out"})
			return
		}

		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make([]ErrorType, 0, len(ve))
			for _, fe := range ve {
				fields = append(fields, ErrorType{Field: fe.Field(), Message: fe.Error()})
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, Res{Error: fields})
			return
		}

		var ae apperr.Error
		if errors.As(err, &ae) {
			c.AbortWithStatusJSON(ae.StatusCode, Res{Error: ae.Message})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, Res{Error: "internal server error"})
	}
}

// Logger logs one line per request.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors[0].Error()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// SharedSecret guards an endpoint family with a bearer token. An empty
// configured token fails closed with 500.
func SharedSecret(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			_ = c.Error(apperr.ErrSecretNotConfigured)
			c.Abort()
			return
		}

		got, ok := bearer(c.GetHeader("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			_ = c.Error(apperr.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

// JWTAuth verifies an HS256 bearer token and stores the caller's Principal.
// Tokens carry user_id and premium claims.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			_ = c.Error(apperr.ErrSecretNotConfigured)
			c.Abort()
			return
		}

		tokenStr, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			_ = c.Error(apperr.ErrUnauthorized)
			c.Abort()
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			_ = c.Error(apperr.New(http.StatusUnauthorized, "invalid or expired token"))
			c.Abort()
			return
		}

		userID, _ := claims["user_id"].(string)
		if userID == "" {
			_ = c.Error(apperr.New(http.StatusUnauthorized, "invalid user ID in token"))
			c.Abort()
			return
		}
		premium, _ := claims["premium"].(bool)

		c.Set(principalKey, alert.Principal{UserID: userID, Premium: premium})
		c.Next()
	}
}

// RateLimit throttles by client IP. Limiter failures let the request through.
func RateLimit(l ratelimit.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			_ = c.Error(apperr.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) alert.Principal {
	p, _ := c.Get(principalKey)
	pr, _ := p.(alert.Principal)
	return pr
}

func bearer(header string) (string, bool) {
	if header == "" || len(header) > maxAuthLen {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
