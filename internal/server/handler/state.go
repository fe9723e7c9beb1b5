package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/uistate"
)

// StateStore is the view-state surface the handlers need.
type StateStore interface {
	Snapshot() uistate.State
	Dispatch(ctx context.Context, a uistate.Action) (uistate.State, error)
}

// StateHandler exposes the shared view state.
type StateHandler struct {
	store  StateStore
	logger *slog.Logger
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(store StateStore, logger *slog.Logger) *StateHandler {
	return &StateHandler{store: store, logger: logger}
}

// GetState returns the current view state.
// GET /api/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// Dispatch applies one action and returns the resulting state.
// POST /api/state/actions {"type":"set_tab","tab":"orders"}
func (h *StateHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var a uistate.Action
	if err := decodeBody(w, r, &a); err != nil {
		badRequest(w, "%v", err)
		return
	}
	s, err := h.store.Dispatch(r.Context(), a)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		badRequest(w, "%s", strings.Join(verr.Problems, ". "))
		return
	}
	if err != nil {
		writeError(w, r, h.logger, "dispatch", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
