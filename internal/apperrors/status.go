package apperrors

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

var statusByKind = map[Kind]int{
	KindValidation:     http.StatusBadRequest,
	KindCast:           http.StatusBadRequest,
	KindDuplicateKey:   http.StatusConflict,
	KindAuthentication: http.StatusUnauthorized,
	KindUnauthorized:   http.StatusUnauthorized,
	KindForbidden:      http.StatusForbidden,
	KindNotFound:       http.StatusNotFound,
	KindConflict:       http.StatusConflict,
	KindRateLimit:      http.StatusTooManyRequests,
	KindFileUpload:     http.StatusBadRequest,
	KindInternal:       http.StatusInternalServerError,
}

// StatusOf maps err to an HTTP status. Framework errors keep their code.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok {
		if status, ok := statusByKind[appErr.Kind]; ok {
			return status
		}
		return http.StatusInternalServerError
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return http.StatusInternalServerError
}

// Shareable reports whether details of this kind may be shown to clients
// outside development mode.
func Shareable(kind Kind) bool {
	switch kind {
	case KindValidation, KindCast, KindDuplicateKey, KindConflict,
		KindAuthentication, KindRateLimit, KindFileUpload:
		return true
	}
	return false
}
