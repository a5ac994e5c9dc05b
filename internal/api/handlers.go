// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/mosaicus/internal/config"
	"github.com/tomtom215/mosaicus/internal/engine"
	"github.com/tomtom215/mosaicus/internal/logging"
	"github.com/tomtom215/mosaicus/internal/models"
	"github.com/tomtom215/mosaicus/internal/websocket"
)

// Handler carries the collaborators the HTTP handlers need.
type Handler struct {
	svc       *engine.Service
	hub       *websocket.Hub
	cfg       *config.Config
	validate  *validator.Validate
	upgrader  gorillaws.Upgrader
	startTime time.Time
}

// NewHandler builds the handler set.
func NewHandler(svc *engine.Service, hub *websocket.Hub, cfg *config.Config) *Handler {
	h := &Handler{
		svc:       svc,
		hub:       hub,
		cfg:       cfg,
		validate:  validator.New(),
		startTime: time.Now(),
	}
	h.upgrader = gorillaws.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// evalResponse pairs the layout a mutation produced with its diff.
type evalResponse struct {
	Layout *models.Layout `json:"layout,omitempty"`
	Diff   *models.Diff   `json:"diff,omitempty"`
}

// respondEval handles the shared tail of every mutating endpoint. A
// context without a loaded DMApp is not an error for device operations;
// it just has no layout yet.
func respondEval(w http.ResponseWriter, lay *models.Layout, diff *models.Diff, err error, allowNoApp bool) {
	if err != nil {
		if allowNoApp && errors.Is(err, engine.ErrNoDMApp) {
			respondJSON(w, http.StatusOK, &evalResponse{})
			return
		}
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &evalResponse{Layout: lay, Diff: diff})
}

// --- health -----------------------------------------------------------------

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady reports readiness: the store must answer.
func (h *Handler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	if _, err := h.svc.ListContexts(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ready":             true,
		"connected_clients": h.hub.ClientCount(),
	})
}

// --- contexts ---------------------------------------------------------------

// ContextCreate registers a new context.
func (h *Handler) ContextCreate(w http.ResponseWriter, r *http.Request) {
	var ctx models.Context
	if err := decodeBody(r, &ctx); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed context document: "+err.Error())
		return
	}
	created, err := h.svc.CreateContext(&ctx)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// ContextList returns every context.
func (h *Handler) ContextList(w http.ResponseWriter, _ *http.Request) {
	ctxs, err := h.svc.ListContexts()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if ctxs == nil {
		ctxs = []*models.Context{}
	}
	respondJSON(w, http.StatusOK, ctxs)
}

// ContextGet returns one context document.
func (h *Handler) ContextGet(w http.ResponseWriter, r *http.Request) {
	ctx, err := h.svc.GetContext(chi.URLParam(r, "contextID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ctx)
}

// ContextDelete removes a context and everything under it.
func (h *Handler) ContextDelete(w http.ResponseWriter, r *http.Request) {
	contextID := chi.URLParam(r, "contextID")
	if _, err := h.svc.GetContext(contextID); err != nil {
		respondEngineError(w, err)
		return
	}
	if err := h.svc.DeleteContext(contextID); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- devices ----------------------------------------------------------------

// DeviceJoin adds a device to a context.
func (h *Handler) DeviceJoin(w http.ResponseWriter, r *http.Request) {
	var dev models.Device
	if err := decodeBody(r, &dev); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed device document: "+err.Error())
		return
	}
	if dev.ID == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "deviceId is required")
		return
	}
	lay, diff, err := h.svc.JoinDevice(chi.URLParam(r, "contextID"), dev)
	respondEval(w, lay, diff, err, true)
}

// DeviceLeave removes a device from a context.
func (h *Handler) DeviceLeave(w http.ResponseWriter, r *http.Request) {
	lay, diff, err := h.svc.LeaveDevice(chi.URLParam(r, "contextID"), chi.URLParam(r, "deviceID"))
	respondEval(w, lay, diff, err, true)
}

type regionsRequest struct {
	Regions []models.Region `json:"regions" validate:"required"`
}

// DeviceRegions replaces a device's logical region set.
func (h *Handler) DeviceRegions(w http.ResponseWriter, r *http.Request) {
	var req regionsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed regions document: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	lay, diff, err := h.svc.ChangeRegions(chi.URLParam(r, "contextID"), chi.URLParam(r, "deviceID"), req.Regions)
	respondEval(w, lay, diff, err, true)
}

// --- dmapps -----------------------------------------------------------------

// DMAppLoad loads a DMApp into a context.
func (h *Handler) DMAppLoad(w http.ResponseWriter, r *http.Request) {
	var app models.DMApp
	if err := decodeBody(r, &app); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed dmapp document: "+err.Error())
		return
	}
	app.ContextID = chi.URLParam(r, "contextID")
	lay, diff, err := h.svc.LoadDMApp(&app)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, &evalResponse{Layout: lay, Diff: diff})
}

// DMAppGet returns a DMApp document.
func (h *Handler) DMAppGet(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.GetDMApp(chi.URLParam(r, "contextID"), chi.URLParam(r, "dmappID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

// DMAppUnload removes a DMApp and destroys its placements.
func (h *Handler) DMAppUnload(w http.ResponseWriter, r *http.Request) {
	diff, err := h.svc.UnloadDMApp(chi.URLParam(r, "contextID"), chi.URLParam(r, "dmappID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &evalResponse{Diff: diff})
}

// Transaction applies a batch of component actions.
func (h *Handler) Transaction(w http.ResponseWriter, r *http.Request) {
	var txn models.Transaction
	if err := decodeBody(r, &txn); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed transaction: "+err.Error())
		return
	}
	if err := txn.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	lay, diff, err := h.svc.ApplyTransaction(chi.URLParam(r, "contextID"), chi.URLParam(r, "dmappID"), &txn)
	respondEval(w, lay, diff, err, false)
}

// Priorities merges priority overrides onto a component.
func (h *Handler) Priorities(w http.ResponseWriter, r *http.Request) {
	var p models.PriorityOverrides
	if err := decodeBody(r, &p); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed priorities document: "+err.Error())
		return
	}
	lay, diff, err := h.svc.SetPriorities(
		chi.URLParam(r, "contextID"),
		chi.URLParam(r, "dmappID"),
		chi.URLParam(r, "componentID"),
		&p,
	)
	respondEval(w, lay, diff, err, false)
}

type simulateRequest struct {
	ComponentIDs []string `json:"componentIds" validate:"required,min=1"`
}

// Simulate runs a what-if placement for a component set.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed simulate request: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	res, err := h.svc.Simulate(chi.URLParam(r, "contextID"), chi.URLParam(r, "dmappID"), req.ComponentIDs)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// --- layouts ----------------------------------------------------------------

// LayoutGet returns the current layout of a context.
func (h *Handler) LayoutGet(w http.ResponseWriter, r *http.Request) {
	lay, err := h.svc.GetLayout(chi.URLParam(r, "contextID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, lay)
}

// Evaluate forces a re-evaluation, e.g. on a clock update.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	lay, diff, err := h.svc.ReEvaluate(chi.URLParam(r, "contextID"))
	respondEval(w, lay, diff, err, false)
}

// --- websocket --------------------------------------------------------------

// WebSocket upgrades the connection and subscribes the client to one
// context's layout pushes.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	contextID := r.URL.Query().Get("contextId")
	if contextID == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "contextId query parameter is required")
		return
	}
	if _, err := h.svc.GetContext(contextID); err != nil {
		respondEngineError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn, contextID, h.cfg.Websocket)
	h.hub.Register <- client
	client.Start()
}
