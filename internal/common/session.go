package common

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const sessionIDKey ctxKey = "storefront/session-id"

const (
	// SessionHeader carries the storefront session identifier.
	SessionHeader = "X-Session-ID"
	// SessionCookie is the cookie fallback for SessionHeader.
	SessionCookie = "sid"
)

// WithSessionID stores the shopper session identifier on the provided context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the shopper session identifier from the context if present.
func SessionID(ctx context.Context) (string, bool) {
	v := ctx.Value(sessionIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// Sessions resolves the session id from the header or cookie, issuing a new
// one when the request carries neither.
type Sessions struct {
	CookieSecure bool
	CookieTTL    time.Duration
}

// Middleware attaches the session id to the request context.
func (s Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(SessionHeader))
		if id == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				id = strings.TrimSpace(c.Value)
			}
		}
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
			ttl := s.CookieTTL
			if ttl <= 0 {
				ttl = 7 * 24 * time.Hour
			}
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.CookieSecure,
				SameSite: http.SameSiteLaxMode,
				MaxAge:   int(ttl / time.Second),
			})
		}
		w.Header().Set(SessionHeader, id)
		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
	})
}
