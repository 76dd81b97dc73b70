// Package handlers provides the HTTP handlers of the assure chat relay.
//
// The package follows these design principles:
// 1. Consistent error handling using the errors package
// 2. Structured logging with request IDs
// 3. Form validation happens in middleware; handlers read the parsed form
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/errors"
	"github.com/teilomillet/assure/server/metrics"
	"github.com/teilomillet/assure/server/middleware"
	"github.com/teilomillet/assure/server/processing"
	"github.com/teilomillet/assure/server/provider"
	"github.com/teilomillet/assure/server/validation"
	"go.uber.org/zap"
)

// defaultMaxMemory is used when the form was not parsed by
// validation.ChatFormValidator beforehand.
const defaultMaxMemory = 32 << 20

// ChatHandler serves POST /chat: it turns the parsed form into a
// processing.ChatRequest, runs it and writes the ChatResponse.
type ChatHandler struct {
	processor   *processing.Processor
	timeout     time.Duration
	logRequests atomic.Bool
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewChatHandler creates the handler. timeout is only reported in 504
// details; the deadline itself is enforced by the provider guard. m may be
// nil.
func NewChatHandler(processor *processing.Processor, cfg config.ChatConfig, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *ChatHandler {
	h := &ChatHandler{
		processor: processor,
		timeout:   timeout,
		logger:    logger,
		metrics:   m,
	}
	h.logRequests.Store(cfg.LogRequests)
	return h
}

// SetLogRequests toggles the per-request log record at runtime.
func (h *ChatHandler) SetLogRequests(enabled bool) {
	h.logRequests.Store(enabled)
}

// ServeHTTP implements http.Handler.
//
// Error Handling:
// - PromptTooLarge: 413 validation_error
// - Timeout: 504 timeout_error
// - Circuit open: 503 provider_unavailable
// - Any other backend failure: 502 provider_error
// - Client gone: logged, nothing written
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	logger := h.logger.With(zap.String("request_id", requestID))

	if r.PostForm == nil {
		if err := r.ParseMultipartForm(defaultMaxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			apiErr := errors.NewValidationError(requestID, "Invalid form body", map[string]interface{}{
				"error": err.Error(),
			})
			errors.LogError(logger, apiErr, requestID)
			errors.WriteError(w, apiErr)
			return
		}
	}

	req := h.buildRequest(r, logger)
	h.observe(req, logger)

	resp, err := h.processor.Process(r.Context(), req)
	if err != nil {
		h.writeFailure(w, r, err, requestID, logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
		return
	}

	logger.Debug("chat request served",
		zap.Int("response_length", len(resp.Response)),
		zap.Bool("profile_received", resp.ProfileReceived),
		zap.Int("files_received", resp.FilesReceived),
	)
}

// buildRequest reads the parsed form. A profile that is not a JSON object
// is logged and treated as empty.
func (h *ChatHandler) buildRequest(r *http.Request, logger *zap.Logger) *processing.ChatRequest {
	req := &processing.ChatRequest{
		Message: r.PostForm.Get(validation.FieldMessage),
	}

	profile, err := processing.ParseProfile(r.PostForm.Get(validation.FieldProfile))
	if err != nil {
		logger.Warn("invalid profile payload, continuing without profile", zap.Error(err))
	}
	req.Profile = profile

	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File[validation.FieldFiles] {
			req.Files = append(req.Files, processing.UploadedFile{
				Filename:    fh.Filename,
				Size:        fh.Size,
				ContentType: fh.Header.Get("Content-Type"),
			})
		}
	}
	return req
}

func (h *ChatHandler) observe(req *processing.ChatRequest, logger *zap.Logger) {
	if h.metrics != nil {
		h.metrics.FilesReceived.Observe(float64(len(req.Files)))
		h.metrics.ProfileReceived.WithLabelValues(fmt.Sprint(!req.Profile.Empty())).Inc()
	}
	if h.logRequests.Load() {
		logger.Info("Chat request received",
			zap.String("message", req.Message),
			zap.Object("profile", req.Profile),
			zap.Int("file_count", len(req.Files)),
			zap.Array("files", req.Files),
		)
	}
}

func (h *ChatHandler) writeFailure(w http.ResponseWriter, r *http.Request, err error, requestID string, logger *zap.Logger) {
	var apiErr *errors.APIError

	switch {
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		logger.Info("client disconnected before completion", zap.Error(err))
		return

	case errors.Is(err, processing.ErrPromptTooLarge):
		details := map[string]interface{}{}
		var tooLarge *processing.PromptTooLargeError
		if errors.As(err, &tooLarge) {
			details["prompt_tokens"] = tooLarge.Tokens
			details["max_context_tokens"] = tooLarge.Limit
		}
		apiErr = errors.NewPayloadTooLargeError(requestID, "Prompt exceeds the model context window", details)

	case errors.Is(err, processing.ErrPromptRender):
		apiErr = errors.NewInternalError(requestID, err)

	case errors.Is(err, provider.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		apiErr = errors.NewTimeoutError(requestID, h.timeout.String(), err)

	case errors.Is(err, provider.ErrUnavailable):
		apiErr = errors.NewProviderUnavailableError(requestID, err)

	default:
		apiErr = errors.NewProviderError(requestID, err)
	}

	errors.LogError(logger, apiErr, requestID)
	errors.WriteError(w, apiErr)
}
