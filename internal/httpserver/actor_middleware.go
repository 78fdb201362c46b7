package httpserver

import (
	"context"
	"net/http"
	"strings"

	"breederhub/internal/auth"
	"breederhub/internal/domain"
)

type contextKey string

const actorContextKey contextKey = "currentActor"

// WithActor returns a new context carrying the resolved actor.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// CurrentActor extracts the actor from context. The boolean is false when the
// request never passed through ActorMiddleware.
func CurrentActor(r *http.Request) (domain.Actor, bool) {
	if v := r.Context().Value(actorContextKey); v != nil {
		if a, ok := v.(domain.Actor); ok {
			return a, true
		}
	}
	return domain.Actor{}, false
}

// ActorMiddleware validates the Bearer token and attaches the tenant-scoped
// actor to the context. Identity resolution happens entirely in the token
// layer; handlers downstream trust the pair.
func ActorMiddleware(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			actor, err := tokens.ParseActor(tokenStr)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
