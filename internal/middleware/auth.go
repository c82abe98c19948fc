package middleware

import (
	"context"
	"net/http"

	"github.com/silvercoin/advisor/backend/internal/service/auth"
	"github.com/silvercoin/advisor/backend/pkg/utils"
)

// Verifier validates a raw bearer credential.
type Verifier interface {
	Verify(ctx context.Context, raw string) (auth.Caller, error)
}

// RequireCaller rejects requests without a valid bearer credential and stores
// the verified caller on the request context.
func RequireCaller(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := verifier.Verify(r.Context(), utils.BearerToken(r))
			if err != nil {
				utils.RespondServiceError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
		})
	}
}
