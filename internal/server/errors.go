package server

import (
	"errors"
	"strconv"
	"time"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const internalMessage = "Internal Server Error"

type errorBody struct {
	Message    string        `json:"message"`
	StatusCode int           `json:"statusCode"`
	Timestamp  time.Time     `json:"timestamp"`
	Path       string        `json:"path"`
	Method     string        `json:"method"`
	Details    *errorDetails `json:"details,omitempty"`
	Cause      []string      `json:"cause,omitempty"`
}

type errorDetails struct {
	Type       apperrors.Kind `json:"type"`
	Field      string         `json:"field,omitempty"`
	RetryAfter int            `json:"retryAfter,omitempty"`
}

// ErrorHandler is the single place mapping errors to HTTP responses.
// Details are shown for shareable kinds; the cause chain only in development.
func ErrorHandler(development bool, log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := apperrors.StatusOf(err)
		body := errorBody{
			Message:    publicMessage(err, status),
			StatusCode: status,
			Timestamp:  time.Now().UTC(),
			Path:       c.Path(),
			Method:     c.Method(),
		}

		if appErr, ok := apperrors.As(err); ok {
			if development || apperrors.Shareable(appErr.Kind) {
				body.Details = &errorDetails{Type: appErr.Kind, Field: appErr.Field}
			}
			if appErr.RetryAfter > 0 {
				secs := int(appErr.RetryAfter / time.Second)
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
				if body.Details != nil {
					body.Details.RetryAfter = secs
				}
			}
		}
		if development {
			body.Cause = causeChain(err)
		}

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
			zap.String("user_agent", c.Get(fiber.HeaderUserAgent)),
			zap.Error(err),
		}
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed", fields...)
		} else {
			log.Warn("request rejected", fields...)
		}

		return c.Status(status).JSON(fiber.Map{"success": false, "error": body})
	}
}

func publicMessage(err error, status int) string {
	if appErr, ok := apperrors.As(err); ok {
		if appErr.Kind == apperrors.KindInternal {
			return internalMessage
		}
		return appErr.Error()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	if status >= fiber.StatusInternalServerError {
		return internalMessage
	}
	return err.Error()
}

func causeChain(err error) []string {
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	return chain
}
