package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/springcloudnative/edge-service/internal/errors"
	"github.com/springcloudnative/edge-service/internal/logging"
)

// Recovery converts handler panics into 500 responses instead of tearing
// down the connection.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logging.Error("panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)

					edgeErr := errors.ErrInternalServer.WithDetails(fmt.Sprintf("panic: %v", err))
					if id := GetRequestID(r); id != "" {
						edgeErr = edgeErr.WithRequestID(id)
					}
					edgeErr.WriteJSON(w)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
