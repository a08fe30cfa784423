package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type requestLogKey struct{}

// requestLog carries fields that inner middleware learn after the logger
// has already wrapped the request.
type requestLog struct {
	userID string
}

// annotateUserID records the authenticated operator for the request log line.
// It is a no-op when the request is not wrapped by Logger.
func annotateUserID(ctx context.Context, userID string) {
	if entry, ok := ctx.Value(requestLogKey{}).(*requestLog); ok {
		entry.userID = userID
	}
}

// Logger returns a middleware that writes one structured line per request.
// Only the path is logged: query strings carry confirmation tokens, and
// neither the Authorization header nor cookies are ever read here.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			entry := &requestLog{}
			ctx := context.WithValue(r.Context(), requestLogKey{}, entry)
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []slog.Attr{
				slog.String("request_id", GetRequestID(ctx)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("client_ip", getClientIP(r)),
				slog.String("user_agent", r.UserAgent()),
			}
			if traceID := GetTraceID(ctx); traceID != "" {
				attrs = append(attrs, slog.String("trace_id", traceID))
			}
			if entry.userID != "" {
				attrs = append(attrs, slog.String("user_id", entry.userID))
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			logger.LogAttrs(ctx, level, "http request", attrs...)
		})
	}
}
