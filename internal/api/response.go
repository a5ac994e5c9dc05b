// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

// Package api provides the HTTP surface of the layout service using the
// Chi router.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mosaicus/internal/engine"
	"github.com/tomtom215/mosaicus/internal/layout"
	"github.com/tomtom215/mosaicus/internal/logging"
	"github.com/tomtom215/mosaicus/internal/store"
)

// APIError is the error payload returned on failed requests.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error APIError `json:"error"`
}

// respondJSON writes a document as JSON. Successful responses carry the
// domain document directly; clients see the same shapes the engine and
// the websocket push use.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", generateETag(data))
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("write JSON response")
	}
}

// generateETag creates a simple ETag from data using FNV-1a.
func generateETag(data []byte) string {
	hash := uint32(2166136261)
	for _, b := range data {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return strconv.FormatUint(uint64(hash), 16)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &errorBody{Error: APIError{Code: code, Message: message}})
}

// respondEngineError maps the engine's error taxonomy onto HTTP statuses
// and stable error codes.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, layout.ErrInvalidConstraint):
		respondError(w, http.StatusBadRequest, "INVALID_CONSTRAINT", err.Error())
	case errors.Is(err, layout.ErrUnknownComponent):
		respondError(w, http.StatusNotFound, "UNKNOWN_COMPONENT", err.Error())
	case errors.Is(err, layout.ErrDependencyMissing):
		respondError(w, http.StatusBadRequest, "DEPENDENCY_MISSING", err.Error())
	case errors.Is(err, layout.ErrUnplaceableComponent):
		respondError(w, http.StatusConflict, "UNPLACEABLE_COMPONENT", err.Error())
	case errors.Is(err, engine.ErrContextExists):
		respondError(w, http.StatusConflict, "CONTEXT_EXISTS", err.Error())
	case errors.Is(err, engine.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, engine.ErrNoDMApp):
		respondError(w, http.StatusConflict, "NO_DMAPP", err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		logging.Error().Err(err).Msg("internal error")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// decodeBody parses a JSON request body into v. Unknown fields are
// tolerated; constraint documents carry authoring metadata the engine
// ignores.
func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}
