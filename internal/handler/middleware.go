package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"taskkash/internal/model"
	"taskkash/internal/service"
)

type ctxKey int

const userKey ctxKey = iota

// Authenticator resolves a session token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFrom returns the authenticated user stored in ctx.
func UserFrom(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// currentUser returns the authenticated user or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	u, ok := UserFrom(r.Context())
	if !ok {
		Error(w, r, service.ErrUnauthenticated)
		return nil, false
	}
	return u, true
}

// bearerToken extracts the session token from the Authorization header or
// the session cookie.
func bearerToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
		return ""
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}

// RequireAuth rejects requests without a valid session and stores the user
// in the request context.
func RequireAuth(auth Authenticator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearerToken(r, cookieName)
			if tok == "" {
				Error(w, r, service.ErrUnauthenticated)
				return
			}
			user, err := auth.Authenticate(r.Context(), tok)
			if err != nil {
				Error(w, r, err)
				return
			}

			ctx := WithUser(r.Context(), user)
			l := zerolog.Ctx(ctx).With().Int64("user_id", user.ID).Logger()
			next.ServeHTTP(w, r.WithContext(l.WithContext(ctx)))
		})
	}
}

// RequireAdmin allows only admins through. It must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := currentUser(w, r)
		if !ok {
			return
		}
		if !u.IsAdmin() {
			Error(w, r, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
