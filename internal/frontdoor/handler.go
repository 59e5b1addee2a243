// Package frontdoor exposes POST /infer: the authenticated, PII-redacting
// pipeline between application clients and the inference service.
//
// Per-request flow: validate the decoded body, redact each message, build
// the external payload, call the inference service, redact the serialized
// response, respond. Every failure collapses to one of three fixed JSON
// error bodies; upstream detail is logged server-side only.
package frontdoor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sugarsense/inference-proxy/internal/audit"
	"github.com/sugarsense/inference-proxy/internal/auth"
	"github.com/sugarsense/inference-proxy/internal/inference"
	"github.com/sugarsense/inference-proxy/internal/redact"
	"github.com/sugarsense/inference-proxy/internal/server"
	"github.com/sugarsense/inference-proxy/internal/tokens"
)

// defaultTemperature applies when the caller omits the field. No range
// validation is performed; callers own the value they send.
const defaultTemperature = 0.2

const auditTimeout = 5 * time.Second

// Inferencer is the outbound call the handler depends on.
type Inferencer interface {
	Infer(ctx context.Context, payload inference.Payload) (*inference.Result, error)
}

// Handler serves POST /infer.
type Handler struct {
	client   Inferencer
	redactor *redact.Redactor
	counter  *tokens.Counter
	store    audit.Store
	logger   *slog.Logger
}

// NewHandler wires the pipeline dependencies. store may be audit.NopStore{}.
func NewHandler(client Inferencer, redactor *redact.Redactor, counter *tokens.Counter, store audit.Store, logger *slog.Logger) *Handler {
	return &Handler{
		client:   client,
		redactor: redactor,
		counter:  counter,
		store:    store,
		logger:   logger,
	}
}

type inferRequest struct {
	Messages    []inference.Message `json:"messages"`
	Model       string              `json:"model"`
	Temperature *float64            `json:"temperature"`
}

// HandleInfer runs the request pipeline. Authentication has already
// happened in middleware; the verified principal is in the context.
func (h *Handler) HandleInfer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req inferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.AddError(ctx, err)
		writeError(w, http.StatusBadRequest, "messages array required")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages array required")
		return
	}

	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	// No user-supplied content may leave the process unredacted.
	sanitized := make([]inference.Message, len(req.Messages))
	for i, m := range req.Messages {
		sanitized[i] = inference.Message{
			Role:    m.Role,
			Content: h.redactor.Text(m.Content),
		}
	}

	payload := inference.BuildPayload(sanitized, req.Model, temperature)

	result, err := h.client.Infer(ctx, payload)
	if err != nil {
		h.logger.Error("inference call failed",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
		server.AddError(ctx, err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		h.record(ctx, req, sanitized, temperature, http.StatusInternalServerError, start)
		return
	}

	server.AddLogField(ctx, "model", req.Model)
	server.AddLogField(ctx, "upstream_status", strconv.Itoa(result.Status))

	body := h.redactResponse(result.Body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write response", slog.String("error", err.Error()))
	}

	h.record(ctx, req, sanitized, temperature, result.Status, start)
}

// redactResponse runs the response-side pass over the serialized upstream
// body. If the redacted text no longer parses, it is wrapped as {raw: text}
// rather than failing the request.
func (h *Handler) redactResponse(body any) any {
	raw, err := json.Marshal(body)
	if err != nil {
		return map[string]any{"raw": ""}
	}

	redacted := h.redactor.Response(string(raw))

	var out any
	if err := json.Unmarshal([]byte(redacted), &out); err != nil {
		return map[string]any{"raw": redacted}
	}
	return out
}

// record writes the audit row best-effort on a detached context; the
// response has already been sent and must never be affected.
func (h *Handler) record(ctx context.Context, req inferRequest, sanitized []inference.Message, temperature float64, status int, start time.Time) {
	promptTokens, estimated := h.counter.CountPrompt(req.Model, sanitized)

	in := audit.Interaction{
		ID:           uuid.New().String(),
		RequestID:    server.GetRequestID(ctx),
		Model:        req.Model,
		Temperature:  temperature,
		MessageCount: len(req.Messages),
		PromptTokens: promptTokens,
		Estimated:    estimated,
		Status:       status,
		Duration:     time.Since(start),
		CreatedAt:    time.Now().UTC(),
	}
	if p := auth.FromContext(ctx); p != nil {
		in.Subject = p.Subject
	}

	recordCtx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := h.store.Record(recordCtx, in); err != nil {
		h.logger.Warn("failed to record interaction",
			slog.String("request_id", in.RequestID),
			slog.String("error", err.Error()),
		)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
