package utils

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/silvercoin/advisor/backend/internal/model/profile"
	"github.com/silvercoin/advisor/backend/internal/service/auth"
)

// StatusFor maps a service error to an HTTP status and a client message.
func StatusFor(err error) (int, string) {
	var authErr *auth.Error
	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, "could not validate credentials"
	case errors.Is(err, profile.ErrNotFound):
		return http.StatusNotFound, "profile not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondServiceError writes the error response for err. Unauthorized
// responses carry a Bearer challenge.
func RespondServiceError(w http.ResponseWriter, err error) {
	status, message := StatusFor(err)
	switch status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", "Bearer")
	case http.StatusInternalServerError:
		zap.L().Error("request failed", zap.Error(err))
	}
	RespondError(w, status, message)
}
