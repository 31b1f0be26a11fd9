// Package middleware holds the HTTP middleware shared by every route.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/auscope/vgljobs/internal/errors"
)

// ErrorResponse is the body written for recovered panics.
type ErrorResponse = apperrors.HTTPErrorResponse

// RequestID reuses an incoming X-Request-Id header or generates one.
func RequestID(next http.Handler) http.Handler {
	return chimw.RequestID(next)
}

// Recovery turns a handler panic into a 500 envelope. It is the same as
// Recoverer with a no-op logger.
func Recovery(next http.Handler) http.Handler {
	return Recoverer(zap.NewNop())(next)
}

// ErrorHandler is an alias for Recovery.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

// Recoverer returns a Recovery middleware that logs the panic and stack.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("handler panic",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", chimw.GetReqID(r.Context())),
					zap.ByteString("stack", debug.Stack()),
				)
				apperrors.WriteError(w, r, http.StatusInternalServerError, apperrors.CodeInternal,
					fmt.Sprintf("panic: %v", rec), nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request at info level.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}
