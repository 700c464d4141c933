// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/pagodirecto/crm/internal/shared"
)

// Sentinel errors for the HTTP layer.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
)

// RespondError maps domain errors to HTTP responses using RFC7807. Credential
// failures collapse into a single 401 so callers cannot distinguish an
// unknown login from a wrong password.
func RespondError(w http.ResponseWriter, err error) {
	var locked *shared.AccountLockedError
	var invalidToken *shared.InvalidTokenError
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
	case errors.As(err, &locked):
		detail := "account locked"
		if !locked.Until.IsZero() {
			detail = "account locked until " + locked.Until.UTC().Format(time.RFC3339)
		}
		Problem(w, http.StatusLocked, "Account Locked", detail)
	case errors.As(err, &invalidToken):
		Problem(w, http.StatusUnauthorized, "Unauthorized", invalidToken.Error())
	case errors.Is(err, shared.ErrTokenRevoked):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "token revoked")
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, shared.ErrPermissionDenied):
		Problem(w, http.StatusForbidden, "Forbidden", "permission denied")
	case errors.Is(err, shared.ErrUserNotFound), errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", "duplicate entry")
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
