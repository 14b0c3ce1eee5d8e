package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/storefront-bff/internal/common"
)

// CSRF protects the cookie-identified session with the double-submit
// technique. Requests that name their session in the X-Session-ID header
// are not cookie-driven and pass through.
type CSRF struct {
	Header       string
	Cookie       string
	CookieSecure bool
}

func (c CSRF) names() (string, string) {
	header := strings.TrimSpace(c.Header)
	if header == "" {
		header = "X-CSRF-Token"
	}
	cookie := strings.TrimSpace(c.Cookie)
	if cookie == "" {
		cookie = "csrf_token"
	}
	return header, cookie
}

// Middleware seeds the token cookie on safe requests and enforces a matching
// header on unsafe ones.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName, cookieName := c.names()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			if _, err := r.Cookie(cookieName); err != nil {
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    uuid.NewString(),
					Path:     "/",
					Secure:   c.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r)
			return
		}

		if strings.TrimSpace(r.Header.Get(common.SessionHeader)) != "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "missing csrf token", nil)
			return
		}

		cookie, err := r.Cookie(cookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "missing csrf cookie", nil)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "invalid csrf token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
