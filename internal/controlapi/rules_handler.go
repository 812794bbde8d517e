package controlapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/phishguard/internal/logger"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
	"github.com/rafaeljc/phishguard/internal/store"
)

// handleCreateRule processes the POST /api/v1/rules request.
//
// Responsibilities:
// 1. Decodes the JSON payload into the CreateRuleRequest DTO.
// 2. Sanitizes and validates it, compiling the definition exactly as the syncer will.
// 3. Persists the rule using the Repository layer.
// 4. Announces the change so every instance reloads.
// 5. Returns the created resource with a 201 Created status.
func (a *API) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req CreateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		writeError(w, r, http.StatusBadRequest, errResp)
		return
	}

	rec := req.Record()
	if err := a.rules.CreateRule(r.Context(), rec); err != nil {
		if errors.Is(err, store.ErrRuleExists) {
			writeError(w, r, http.StatusConflict, &ErrorResponse{
				Error: fmt.Sprintf("A %s rule named %q already exists", rec.Kind, rec.Name),
				Code:  CodeConflict,
			})
			return
		}

		log.Error("failed to create rule in db", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, &ErrorResponse{
			Error: "Failed to create rule in database",
			Code:  CodeInternal,
		})
		return
	}

	a.notifyAsync(log, string(rec.Kind))

	log.Info("rule created successfully", slog.String("kind", string(rec.Kind)), slog.String("rule", rec.Name), slog.Int64("rule_id", rec.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mapRecordToResponse(rec))
}

// handleListRules processes GET /api/v1/rules?kind=&page=&page_size=.
func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	kind := ruleengine.Kind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{
			Error: `Parameter 'kind' must be "url" or "email"`,
			Code:  CodeInvalidQueryParam,
		})
		return
	}

	page, err := parseOptionalInt(r, "page", 1)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{Error: err.Error(), Code: CodeInvalidQueryParam})
		return
	}
	pageSize, err := parseOptionalInt(r, "page_size", 20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, &ErrorResponse{Error: err.Error(), Code: CodeInvalidQueryParam})
		return
	}

	// Silently clamp out-of-bounds values.
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	records, totalItems, err := a.rules.ListRules(r.Context(), kind, pageSize, offset)
	if err != nil {
		log.Error("failed to list rules from db", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, &ErrorResponse{
			Error: "Failed to list rules",
			Code:  CodeInternal,
		})
		return
	}

	dtos := make([]Rule, len(records))
	for i, rec := range records {
		dtos[i] = mapRecordToResponse(rec)
	}

	totalPages := 0
	if totalItems > 0 {
		totalPages = int(math.Ceil(float64(totalItems) / float64(pageSize)))
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, PaginatedResponse{
		Data: dtos,
		Pagination: Pagination{
			TotalItems:  totalItems,
			TotalPages:  totalPages,
			CurrentPage: page,
			PageSize:    pageSize,
		},
	})
}

// handleGetRule processes GET /api/v1/rules/{kind}/{name}.
func (a *API) handleGetRule(w http.ResponseWriter, r *http.Request) {
	kind, name, ok := ruleKey(w, r)
	if !ok {
		return
	}

	rec, err := a.rules.GetRule(r.Context(), kind, name)
	if err != nil {
		a.writeStoreError(w, r, err, "get")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, mapRecordToResponse(rec))
}

// handleUpdateRule processes PATCH /api/v1/rules/{kind}/{name}.
// The stored rule is merged with the request and recompiled before it is written.
func (a *API) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	kind, name, ok := ruleKey(w, r)
	if !ok {
		return
	}

	var req UpdateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsEmpty() {
		writeError(w, r, http.StatusBadRequest, invalidInput("body", "At least one field must be provided"))
		return
	}

	rec, err := a.rules.GetRule(r.Context(), kind, name)
	if err != nil {
		a.writeStoreError(w, r, err, "get")
		return
	}

	if errResp := req.Apply(rec); errResp != nil {
		writeError(w, r, http.StatusBadRequest, errResp)
		return
	}

	if err := a.rules.UpdateRule(r.Context(), rec); err != nil {
		a.writeStoreError(w, r, err, "update")
		return
	}

	a.notifyAsync(log, string(kind))

	log.Info("rule updated successfully", slog.String("kind", string(kind)), slog.String("rule", name), slog.Int64("version", rec.Version))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, mapRecordToResponse(rec))
}

// handleDeleteRule processes DELETE /api/v1/rules/{kind}/{name}.
func (a *API) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	kind, name, ok := ruleKey(w, r)
	if !ok {
		return
	}

	if err := a.rules.DeleteRule(r.Context(), kind, name); err != nil {
		a.writeStoreError(w, r, err, "delete")
		return
	}

	a.notifyAsync(log, string(kind))

	log.Info("rule deleted successfully", slog.String("kind", string(kind)), slog.String("rule", name))
	w.WriteHeader(http.StatusNoContent)
}

// handleValidateRule processes POST /api/v1/rules/validate: a dry-run compile, nothing is stored.
func (a *API) handleValidateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		writeError(w, r, http.StatusBadRequest, errResp)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ValidateRuleResponse{Valid: true, Type: req.Type})
}

// ruleKey extracts and validates the {kind}/{name} path parameters.
func ruleKey(w http.ResponseWriter, r *http.Request) (ruleengine.Kind, string, bool) {
	kind := chi.URLParam(r, "kind")
	if errResp := validateKind(kind); errResp != nil {
		writeError(w, r, http.StatusBadRequest, errResp)
		return "", "", false
	}
	name := chi.URLParam(r, "name")
	if errResp := validateRuleName(name); errResp != nil {
		writeError(w, r, http.StatusBadRequest, errResp)
		return "", "", false
	}
	return ruleengine.Kind(kind), name, true
}

// writeStoreError maps repository sentinels to HTTP statuses.
func (a *API) writeStoreError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, store.ErrRuleNotFound):
		writeError(w, r, http.StatusNotFound, &ErrorResponse{Error: "Rule not found", Code: CodeNotFound})
	case errors.Is(err, store.ErrVersionConflict):
		writeError(w, r, http.StatusConflict, &ErrorResponse{
			Error: "Rule was modified by another request; reload and retry",
			Code:  CodeConflict,
		})
	default:
		logger.FromContext(r.Context()).Error("rule repository failure", slog.String("op", op), slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, &ErrorResponse{
			Error: fmt.Sprintf("Failed to %s rule", op),
			Code:  CodeInternal,
		})
	}
}

// notifyAsync announces a rule change in the background with exponential backoff.
// The request has already succeeded; a lost event is healed by the syncer's polling.
func (a *API) notifyAsync(log *slog.Logger, kind string) {
	go func() {
		// Create a context disconnected from the HTTP request.
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		maxRetries := a.notifyRetries
		for i := 0; i <= maxRetries; i++ {
			err := a.notifier.PublishRulesChanged(ctx, kind)
			if err == nil {
				return
			}

			if i == maxRetries {
				log.Error("failed to publish rule change after retries",
					slog.String("kind", kind),
					slog.String("error", err.Error()))
				return
			}

			log.Warn("failed to publish rule change, retrying",
				slog.String("kind", kind),
				slog.Int("attempt", i+1),
				slog.String("error", err.Error()))

			select {
			case <-ctx.Done():
				return
			case <-time.After(a.notifyBackoff * time.Duration(1<<i)):
			}
		}
	}()
}
