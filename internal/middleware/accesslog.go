package middleware

import (
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/springcloudnative/edge-service/internal/logging"
)

// AccessLog logs one structured entry per completed request.
func AccessLog() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := GetStatusRecorder(w)

			next.ServeHTTP(rec, r)

			logging.Info("request",
				zap.String("request_id", GetRequestID(r)),
				zap.String("remote_addr", ClientIP(r)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.Status),
				zap.Int64("bytes", rec.BytesWritten),
				zap.Duration("duration", time.Since(start)),
			)
			PutStatusRecorder(rec)
		})
	}
}

// ClientIP extracts the originating client address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop in the list is the client.
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
