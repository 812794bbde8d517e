package controlapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/phishguard/internal/logger"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// handleAnalyze processes POST /api/v1/analyze.
func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Sanitize()

	verdict, ok := a.analyze(w, r, ruleengine.Kind(req.Type), req.Input)
	if !ok {
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, NewAnalyzeResponse(verdict))
}

// handleLegacyAnalyze processes POST /api/analyze, which only ever accepted URLs.
func (a *API) handleLegacyAnalyze(w http.ResponseWriter, r *http.Request) {
	var req LegacyAnalyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	verdict, ok := a.analyze(w, r, ruleengine.KindURL, req.URL)
	if !ok {
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, NewLegacyAnalyzeResponse(verdict))
}

// analyze runs the analyzer and writes the error response on failure.
func (a *API) analyze(w http.ResponseWriter, r *http.Request, kind ruleengine.Kind, input string) (*ruleengine.Verdict, bool) {
	log := logger.FromContext(r.Context())

	verdict, err := a.analyzer.Analyze(r.Context(), kind, input)
	if err != nil {
		var vErr *ruleengine.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, r, http.StatusBadRequest, &ErrorResponse{
				Error:   vErr.Error(),
				Code:    CodeInvalidInput,
				Details: []ErrorDetail{{Field: vErr.Field, Issue: vErr.Reason}},
			})
			return nil, false
		}

		log.Error("analysis failed", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, &ErrorResponse{
			Error: "Failed to analyze input",
			Code:  CodeInternal,
		})
		return nil, false
	}

	log.Debug("candidate analyzed",
		slog.String("kind", string(verdict.Kind)),
		slog.Bool("is_phishing", verdict.IsPhishing),
		slog.Float64("score", verdict.Score),
	)
	return verdict, true
}

// handleGetRuleSet processes GET /api/v1/rulesets/{kind}.
func (a *API) handleGetRuleSet(w http.ResponseWriter, r *http.Request) {
	kind := ruleengine.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, r, http.StatusNotFound, &ErrorResponse{
			Error: fmt.Sprintf("Unknown rule set %q", kind),
			Code:  CodeNotFound,
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, NewRuleSetResponse(kind, a.analyzer.RuleSet(kind), a.analyzer.Scoring()))
}

// handleListHistory processes GET /api/v1/history?type=&limit=.
func (a *API) handleListHistory(w http.ResponseWriter, r *http.Request) {
	kind, ok := historyKind(w, r)
	if !ok {
		return
	}

	limit, err := parseOptionalInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{Error: err.Error(), Code: CodeInvalidQueryParam})
		return
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	history := a.analyzer.History()
	entries, err := history.List(r.Context(), kind, limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to list history", slog.String("error", err.Error()))
		writeError(w, r, http.StatusServiceUnavailable, &ErrorResponse{
			Error: "History is temporarily unavailable",
			Code:  CodeUnavailable,
		})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, HistoryResponse{Data: entries, Backend: history.Backend()})
}

// handleClearHistory processes DELETE /api/v1/history?type=.
func (a *API) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	kind, ok := historyKind(w, r)
	if !ok {
		return
	}

	if err := a.analyzer.History().Clear(r.Context(), kind); err != nil {
		logger.FromContext(r.Context()).Error("failed to clear history", slog.String("error", err.Error()))
		writeError(w, r, http.StatusServiceUnavailable, &ErrorResponse{
			Error: "History is temporarily unavailable",
			Code:  CodeUnavailable,
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// historyKind reads the optional ?type= filter. Empty means every kind.
func historyKind(w http.ResponseWriter, r *http.Request) (ruleengine.Kind, bool) {
	kind := ruleengine.Kind(r.URL.Query().Get("type"))
	if kind != "" && !kind.Valid() {
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{
			Error: `Parameter 'type' must be "url" or "email"`,
			Code:  CodeInvalidQueryParam,
		})
		return "", false
	}
	return kind, true
}

// --- Private Helpers ---

// decodeJSON decodes the body into dst and writes a 400 (or 413) on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, &ErrorResponse{
				Error: fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
				Code:  CodeInvalidInput,
			})
			return false
		}

		logger.FromContext(r.Context()).Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{
			Error: "Invalid JSON payload: " + err.Error(),
			Code:  CodeInvalidJSON,
		})
		return false
	}
	return true
}

// parseOptionalInt extracts an integer from the query string.
// If the parameter is missing, it returns the defaultValue.
// It only returns an error if the parameter is present but malformed.
func parseOptionalInt(r *http.Request, key string, defaultValue int) (int, error) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return val, nil
}
