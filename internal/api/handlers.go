package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/mcpserver"
	"github.com/Aman-CERP/catalogmatch/internal/selection"
)

const (
	maxBodyBytes       = 1 << 20
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

type handler struct {
	engine  mcpserver.Retriever
	matcher mcpserver.Matcher
	logger  *slog.Logger
}

// MatchRequest is the body of POST /v1/match.
type MatchRequest struct {
	Text string `json:"text"`
}

// MatchResponse is the body returned by POST /v1/match.
type MatchResponse struct {
	RunID     string                `json:"run_id"`
	Decisions []selection.Decision  `json:"decisions"`
	Batch     []selection.BatchItem `json:"batch"`
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (h *handler) match(w http.ResponseWriter, r *http.Request) {
	if h.matcher == nil {
		writeError(w, http.StatusServiceUnavailable, "matching is not configured", "server runs in retrieval-only mode")
		return
	}

	var req MatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required", "")
		return
	}

	report, err := h.matcher.Run(r.Context(), req.Text)
	if err != nil {
		h.fail(w, r, "match_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, MatchResponse{
		RunID:     report.RunID,
		Decisions: report.Decisions,
		Batch:     report.Batch,
	})
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	limit := req.Limit
	switch {
	case limit <= 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}

	res, err := h.engine.Retrieve(r.Context(), query)
	if err != nil {
		h.fail(w, r, "search_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, mcpserver.ToSearchOutput(res, limit))
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := statusFor(err)
	h.logger.Error(event, append([]any{
		slog.String("request_id", chimiddleware.GetReqID(r.Context())),
		slog.Int("status", status),
	}, cmerrors.LogAttrs(err)...)...)

	var me *cmerrors.MatchError
	if errors.As(err, &me) {
		detail := ""
		if me.Cause != nil {
			detail = me.Cause.Error()
		}
		writeJSON(w, status, ErrorResponse{Error: me.Message, Code: me.Code, Detail: detail})
		return
	}
	writeError(w, status, http.StatusText(status), "")
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	}

	var me *cmerrors.MatchError
	if !errors.As(err, &me) {
		return http.StatusInternalServerError
	}

	switch me.Category {
	case cmerrors.CategoryValidation:
		return http.StatusBadRequest
	case cmerrors.CategoryNetwork:
		return http.StatusBadGateway
	case cmerrors.CategoryPipeline:
		if me.Code == cmerrors.ErrCodeNormalizationFailure {
			return http.StatusBadGateway
		}
		return http.StatusUnprocessableEntity
	case cmerrors.CategoryIO:
		if me.Code == cmerrors.ErrCodeFileNotFound {
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, ErrorResponse{Error: message, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
