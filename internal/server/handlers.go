package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crossfade/internal/services"
	"github.com/desertthunder/crossfade/internal/shared"
	"github.com/desertthunder/crossfade/internal/tasks"
)

// APIHandler serves the JSON API: playlist listing, synchronous transfers,
// and progress polling. Implements the Handler interface.
//
// Transfers run inside the request; the progress endpoint exists so a second
// client (or a second tab) can poll the same user key while the transfer
// request is still in flight.
type APIHandler struct {
	services map[string]services.Service
	engine   tasks.TransferEngine
	store    *tasks.ProgressStore
	logger   *log.Logger
}

// NewAPIHandler creates an API handler over the registered provider adapters.
func NewAPIHandler(registry map[string]services.Service, engine tasks.TransferEngine, store *tasks.ProgressStore, logger *log.Logger) *APIHandler {
	return &APIHandler{
		services: registry,
		engine:   engine,
		store:    store,
		logger:   logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *APIHandler) Routes() []string {
	return []string{"/health", "/api/playlists", "/api/transfer", "/api/progress"}
}

// ServeHTTP dispatches to the endpoint implementations.
func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		h.handleHealth(w, r)
	case r.URL.Path == "/api/playlists" && r.Method == http.MethodGet:
		h.handlePlaylists(w, r)
	case r.URL.Path == "/api/transfer" && r.Method == http.MethodPost:
		h.handleTransfer(w, r)
	case r.URL.Path == "/api/progress" && r.Method == http.MethodGet:
		h.handleProgress(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// service resolves a provider adapter by name, case-sensitively matching the
// registry keys ("Spotify", "Tidal", "Qobuz").
func (h *APIHandler) service(name string) (services.Service, error) {
	svc, ok := h.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown service %q", shared.ErrServiceUnavailable, name)
	}
	return svc, nil
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := map[string]bool{}
	for name, svc := range h.services {
		connected[name] = svc.IsAuthenticated(r.Context())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"services": connected,
	})
}

func (h *APIHandler) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service(r.URL.Query().Get("service"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	playlists, err := svc.GetPlaylists(r.Context())
	if err != nil {
		h.logger.Error("playlist listing failed", "service", svc.Name(), "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service":   svc.Name(),
		"playlists": playlists,
	})
}

// transferRequest is the POST /api/transfer body.
type transferRequest struct {
	Source       string `json:"source"`
	Dest         string `json:"dest"`
	PlaylistID   string `json:"playlist_id"`
	PlaylistType string `json:"playlist_type"`
	User         string `json:"user"`
}

func (h *APIHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlaylistID == "" {
		writeError(w, http.StatusBadRequest, "playlist_id is required")
		return
	}
	if req.User == "" {
		req.User = shared.GenerateID()
	}
	if req.PlaylistType == "" {
		req.PlaylistType = services.PlaylistTypeStandard
	}

	source, err := h.service(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dest, err := h.service(req.Dest)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("transfer requested",
		"source", source.Name(), "dest", dest.Name(),
		"playlist", req.PlaylistID, "user", req.User)

	result, err := h.engine.Transfer(r.Context(), source, dest, req.PlaylistID, req.PlaylistType, req.User, nil)
	if err != nil {
		h.logger.Error("transfer failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":   req.User,
		"result": result,
	})
}

func (h *APIHandler) handleProgress(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	// unknown keys yield the zero snapshot rather than a 404
	writeJSON(w, http.StatusOK, h.store.Get(user))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
