package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/stockroom/internal/platform/logger"
	"github.com/phrazzld/stockroom/internal/redact"
)

// ErrorResponse is the body of every error response. Rate limit rejections
// and admission conflicts fill the optional fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`

	Tier              string `json:"tier,omitempty"`
	Limit             int    `json:"limit,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`

	ExistingTaskID string `json:"existing_task_id,omitempty"`
}

// ResponseOption customizes an error response and its log record.
type ResponseOption func(*errorReply)

type errorReply struct {
	body     ErrorResponse
	elevated bool
	attrs    []slog.Attr
}

// WithElevatedLogLevel logs a 4xx response at WARN instead of DEBUG, for
// client errors an operator should see (forged API keys, for example).
func WithElevatedLogLevel() ResponseOption {
	return func(e *errorReply) { e.elevated = true }
}

// WithRateLimit names the breached tier in the body.
func WithRateLimit(tier string, limit, retryAfterSeconds int) ResponseOption {
	return func(e *errorReply) {
		e.body.Tier = tier
		e.body.Limit = limit
		e.body.RetryAfterSeconds = retryAfterSeconds
		e.attrs = append(e.attrs,
			slog.String("tier", tier),
			slog.Int("retry_after_seconds", retryAfterSeconds))
	}
}

// WithExistingTask points the caller at the task that blocked admission.
func WithExistingTask(id string) ResponseOption {
	return func(e *errorReply) {
		e.body.ExistingTaskID = id
		e.attrs = append(e.attrs, slog.String("existing_task_id", id))
	}
}

// WithLogAttrs adds attributes to the log record only.
func WithLogAttrs(attrs ...slog.Attr) ResponseOption {
	return func(e *errorReply) { e.attrs = append(e.attrs, attrs...) }
}

// RespondWithJSON writes data as JSON with the given status code.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContextOrDefault(r.Context()).
			Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithError writes an error response for a failure with no
// underlying error worth logging, such as a missing header.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string, opts ...ResponseOption) {
	RespondWithErrorAndLog(w, r, status, message, nil, opts...)
}

// RespondWithErrorAndLog writes message to the client and logs err, redacted,
// next to it. The raw error never reaches the response body.
//
// 5xx responses log at ERROR and 429 at WARN. Other 4xx responses log at
// DEBUG unless WithElevatedLogLevel is given.
func RespondWithErrorAndLog(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	message string,
	err error,
	opts ...ResponseOption,
) {
	traceID := GetTraceID(r.Context())
	reply := errorReply{body: ErrorResponse{Error: message, TraceID: traceID}}
	for _, opt := range opts {
		opt(&reply)
	}

	attrs := append([]slog.Attr{
		slog.String("trace_id", traceID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status_code", status),
		slog.String("user_message", message),
	}, reply.attrs...)
	if err != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}

	logger.FromContextOrDefault(r.Context()).
		LogAttrs(r.Context(), logLevel(status, reply.elevated), "API error response", attrs...)

	RespondWithJSON(w, r, status, reply.body)
}

func logLevel(status int, elevated bool) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusTooManyRequests:
		return slog.LevelWarn
	case elevated && status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}
