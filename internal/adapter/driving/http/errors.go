package httphandler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/notevault/internal/application"
	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// writeServiceError maps an application or port error to a status code and
// a JSON body. Unexpected errors are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var (
		validation *application.ValidationError
		authFail   *application.AuthFailure
		lockedOut  *application.LockedOutError
		transport  *driven.TransportError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Error(), Field: validation.Field})
	case errors.As(err, &authFail):
		remaining := authFail.Remaining
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "incorrect PIN", RemainingAttempts: &remaining})
	case errors.As(err, &lockedOut):
		seconds := retryAfter(lockedOut.Remaining)
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		writeJSON(w, http.StatusLocked, errorResponse{Error: "too many failed attempts", RetryAfterSeconds: seconds})
	case errors.Is(err, application.ErrSessionRequired):
		writeError(w, http.StatusUnauthorized, "vault is locked")
	case errors.Is(err, application.ErrCredentialExists):
		writeError(w, http.StatusConflict, "a PIN is already configured")
	case errors.Is(err, application.ErrNoCredential):
		writeError(w, http.StatusConflict, "no PIN has been configured")
	case errors.Is(err, driven.ErrVersionConflict):
		writeError(w, http.StatusConflict, "notes were changed elsewhere; reload and retry the pending write")
	case errors.Is(err, application.ErrNoteNotFound), errors.Is(err, driven.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "note not found")
	case errors.Is(err, application.ErrNoPendingWrite):
		writeError(w, http.StatusNotFound, "no pending write")
	case errors.Is(err, driven.ErrDecryptionFailed):
		writeError(w, http.StatusUnprocessableEntity, "unable to decrypt notes")
	case errors.Is(err, application.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "remote store is not configured")
	case errors.As(err, &transport):
		logger.Warn("remote store error", "op", op, "status", transport.StatusCode, "error", err)
		writeError(w, http.StatusBadGateway, "remote store unavailable")
	default:
		logger.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// retryAfter formats d as whole seconds, rounding up.
func retryAfter(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}
