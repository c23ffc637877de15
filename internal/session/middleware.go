package session

import (
	"context"
	"net/http"
	"time"

	"github.com/springcloudnative/edge-service/internal/logging"
	"github.com/springcloudnative/edge-service/internal/middleware"

	"go.uber.org/zap"
)

type sessionIDKey struct{}

const storeTimeout = 100 * time.Millisecond

// SessionID returns the session id attached to the request, if any.
func SessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Middleware binds each request to a server-side session. A valid cookie
// slides the session expiry forward; a missing or expired one issues a
// fresh session. Store failures never block the request.
func Middleware(store *Store, cookieName string) middleware.Middleware {
	if cookieName == "" {
		cookieName = "SESSION"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
			id := resolve(ctx, store, w, r, cookieName)
			cancel()
			if id != "" {
				r = r.WithContext(context.WithValue(r.Context(), sessionIDKey{}, id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolve(ctx context.Context, store *Store, w http.ResponseWriter, r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		ok, err := store.Touch(ctx, c.Value)
		if err != nil {
			logging.Warn("session store unavailable, continuing without session",
				zap.String("request_id", middleware.GetRequestID(r)),
				zap.Error(err))
			return c.Value
		}
		if ok {
			return c.Value
		}
		// Expired server side; fall through and issue a new one.
	}

	id, err := store.Create(ctx)
	if err != nil {
		logging.Warn("session store unavailable, continuing without session",
			zap.String("request_id", middleware.GetRequestID(r)),
			zap.Error(err))
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
