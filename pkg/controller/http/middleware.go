package http

import (
	"net/http"
	"strings"

	"github.com/trickpatty/hearthsync/pkg/domain/model/auth"
	"github.com/trickpatty/hearthsync/pkg/usecase"
)

// authMiddleware validates the bearer credential of protected requests. The
// credential is "<token id>:<secret>" in the Authorization header.
func authMiddleware(authUC *usecase.AuthUseCase) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			credential, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			token, err := validateCredential(r, authUC, credential)
			if err != nil {
				http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
				return
			}

			ctx := auth.ContextWithToken(r.Context(), token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validateCredential(r *http.Request, authUC *usecase.AuthUseCase, credential string) (*auth.Token, error) {
	id, secret, _ := strings.Cut(credential, ":")
	return authUC.ValidateToken(r.Context(), auth.TokenID(id), auth.TokenSecret(secret))
}
