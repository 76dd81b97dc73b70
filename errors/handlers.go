package errors

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// RequestIDHeader is the response header carrying the request id.
const RequestIDHeader = "X-Request-ID"

// ErrorHandler recovers panics from next, logs them with a stack trace and
// answers with an InternalError.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					requestID := w.Header().Get(RequestIDHeader)
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.ByteString("stacktrace", debug.Stack()),
						zap.String("request_id", requestID),
					)
					WriteError(w, NewInternalError(requestID, nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LogError logs an error with its context. APIErrors are logged with their
// type and status; 5xx at error level, everything else at warn.
func LogError(logger *zap.Logger, err error, requestID string) {
	var apiErr *APIError
	if !As(err, &apiErr) {
		logger.Error("unexpected error",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
		return
	}

	fields := []zap.Field{
		zap.String("error_type", string(apiErr.Type)),
		zap.String("message", apiErr.Message),
		zap.Int("code", apiErr.Code),
		zap.String("request_id", requestID),
		zap.Any("details", apiErr.Details),
	}
	if apiErr.err != nil {
		fields = append(fields, zap.NamedError("cause", apiErr.err))
	}

	if apiErr.Code >= http.StatusInternalServerError {
		logger.Error("request error", fields...)
		return
	}
	logger.Warn("request error", fields...)
}
