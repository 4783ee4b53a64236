package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// SessionCookie identifies a shopper's browser.
	SessionCookie = "cutiecart_session"

	// SessionHeader carries the session for clients without a cookie jar.
	// It takes precedence over the cookie.
	SessionHeader = "CutieCart-Session"

	sessionMaxAge = 30 * 24 * time.Hour
)

type sessionKey struct{}

// Session returns middleware that attaches a session id to every request.
// A valid id from the header or cookie is reused; otherwise a new one is issued
// as a cookie. The id is echoed in the response header either way.
func Session(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := requestSession(r)
			if !ok {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    id,
					Path:     "/",
					MaxAge:   int(sessionMaxAge / time.Second),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(SessionHeader, id)
			if rw, ok := w.(*responseWriter); ok {
				rw.sessionID = id
			}

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
		})
	}
}

func requestSession(r *http.Request) (string, bool) {
	if h := r.Header.Get(SessionHeader); h != "" {
		if u, err := uuid.Parse(h); err == nil {
			return u.String(), true
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		if u, err := uuid.Parse(c.Value); err == nil {
			return u.String(), true
		}
	}
	return "", false
}

// WithSessionID returns a context carrying the session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the request's session id, or "" outside the Session middleware.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
