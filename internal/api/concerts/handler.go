package concerts

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Vasu1712/scenyx-live/internal/auth"
	"github.com/Vasu1712/scenyx-live/internal/models"
	"github.com/Vasu1712/scenyx-live/internal/storage"
	"github.com/Vasu1712/scenyx-live/internal/ws"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxTitleLength   = 200
)

// ConcertHandler serves concert metadata and upgrades concert channels.
type ConcertHandler struct {
	Store    storage.ConcertStore
	Service  *ws.Service
	Verifier *auth.Verifier // nil when session tokens are not configured

	upgrader websocket.Upgrader
}

// NewConcertHandler returns a handler accepting websocket upgrades from
// allowedOrigin ("*" accepts any origin).
func NewConcertHandler(store storage.ConcertStore, service *ws.Service, verifier *auth.Verifier, allowedOrigin string) *ConcertHandler {
	return &ConcertHandler{
		Store:    store,
		Service:  service,
		Verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
	}
}

// GetConcert handles GET /api/concerts/{id}.
func (h *ConcertHandler) GetConcert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	concert, err := h.Store.GetConcert(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "concert not found")
		return
	}
	if err != nil {
		slog.Error("api: get concert", "concert_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load concert")
		return
	}

	registry := h.Service.Registry()
	counters := map[models.ReactionKind]int64{}
	if snapshot, ok := registry.Snapshot(id); ok {
		counters = snapshot.Reactions
	}
	writeJSON(w, http.StatusOK, models.ConcertDetails{
		Concert:          concert,
		ActiveListeners:  registry.ParticipantCount(id),
		ReactionCounters: counters,
	})
}

// ListConcerts handles GET /api/social/concerts?limit=N.
func (h *ConcertHandler) ListConcerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	concerts, err := h.Store.ListConcerts(r.Context(), limit)
	if err != nil {
		slog.Error("api: list concerts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list concerts")
		return
	}
	if concerts == nil {
		concerts = []*models.Concert{}
	}
	writeJSON(w, http.StatusOK, concerts)
}

type createConcertRequest struct {
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	HostID          string                `json:"hostId"`
	HostDisplayName string                `json:"hostDisplayName"`
	Setlist         []models.SetlistEntry `json:"setlist"`
}

// CreateConcert handles POST /api/social/concerts. With session tokens
// configured the host is the token's user; otherwise it is taken from the body.
func (h *ConcertHandler) CreateConcert(w http.ResponseWriter, r *http.Request) {
	var req createConcertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if h.Verifier != nil {
		id, err := h.Verifier.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "a valid session token is required")
			return
		}
		req.HostID = id.UserID
		if id.DisplayName != "" {
			req.HostDisplayName = id.DisplayName
		}
	}

	req.Title = strings.TrimSpace(req.Title)
	req.HostID = strings.TrimSpace(req.HostID)
	if req.Title == "" || req.HostID == "" {
		writeError(w, http.StatusBadRequest, "title and hostId are required")
		return
	}
	if models.RuneLen(req.Title) > maxTitleLength {
		writeError(w, http.StatusBadRequest, "title is too long")
		return
	}
	for _, e := range req.Setlist {
		if strings.TrimSpace(e.Title) == "" {
			writeError(w, http.StatusBadRequest, "every setlist entry needs a title")
			return
		}
	}

	concert, err := h.Store.CreateConcert(r.Context(), storage.NewConcert{
		Title:           req.Title,
		Description:     strings.TrimSpace(req.Description),
		HostID:          req.HostID,
		HostDisplayName: strings.TrimSpace(req.HostDisplayName),
		Setlist:         req.Setlist,
	})
	if err != nil {
		slog.Error("api: create concert", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create concert")
		return
	}
	writeJSON(w, http.StatusCreated, concert)
}

// ServeWS handles GET /api/concerts/{id}/ws. A session token is optional;
// when present and valid its identity overrides the join payload, and when
// present but invalid the upgrade is refused.
func (h *ConcertHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	concertID := mux.Vars(r)["id"]

	var identity *ws.Identity
	if h.Verifier != nil {
		id, err := h.Verifier.FromRequest(r)
		switch {
		case err == nil:
			identity = &ws.Identity{UserID: id.UserID, DisplayName: id.DisplayName}
		case !errors.Is(err, auth.ErrNoToken):
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("api: websocket upgrade failed", "concert_id", concertID, "error", err)
		return
	}
	h.Service.ServeChannel(r.Context(), conn, concertID, identity)
}

// Metrics handles GET /api/metrics.
func (h *ConcertHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	live := len(h.Service.Registry().Concerts())
	writeJSON(w, http.StatusOK, h.Service.Metrics().Snapshot(live))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
