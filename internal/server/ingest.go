package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/tasks"
)

const maxBodyBytes = 64 * 1024

// Engine is the part of the submission engine the ingest API drives.
type Engine interface {
	Status() tasks.Status
	Announce(np models.NowPlaying)
	UpdateNetworkState(connected bool)
}

// Enqueuer accepts finished plays.
type Enqueuer interface {
	Enqueue(ev models.PlayEvent) (models.QueuedEvent, error)
}

// IngestHandler implements [Handler] for the player-facing API.
type IngestHandler struct {
	engine Engine
	queue  Enqueuer
	now    func() time.Time
	logger *log.Logger
	mux    *http.ServeMux
}

// NewIngestHandler creates the handler. now defaults to [time.Now].
func NewIngestHandler(engine Engine, queue Enqueuer, logger *log.Logger, now func() time.Time) *IngestHandler {
	if now == nil {
		now = time.Now
	}
	h := &IngestHandler{engine: engine, queue: queue, now: now, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /scrobble", h.scrobble)
	h.mux.HandleFunc("POST /nowplaying", h.nowPlaying)
	h.mux.HandleFunc("GET /status", h.status)
	h.mux.HandleFunc("POST /network", h.network)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *IngestHandler) Routes() []string {
	return []string{"/scrobble", "/nowplaying", "/status", "/network"}
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// ScrobbleAccepted is the response body of POST /scrobble.
type ScrobbleAccepted struct {
	ID     string `json:"id"`
	Queued int    `json:"queued"`
}

// NetworkState is the body of POST /network.
type NetworkState struct {
	Connected bool `json:"connected"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *IngestHandler) scrobble(w http.ResponseWriter, r *http.Request) {
	var ev models.PlayEvent
	if err := decodeBody(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if ev.StartedAt.IsZero() {
		ev.StartedAt = h.now().Add(-ev.Duration())
	}

	if err := ev.Validate(h.now()); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, models.ErrMissingArtist) || errors.Is(err, models.ErrMissingTitle) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	entry, err := h.queue.Enqueue(ev)
	if err != nil {
		h.logger.Error("failed to enqueue", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, ScrobbleAccepted{ID: entry.ID, Queued: h.engine.Status().Queued})
}

func (h *IngestHandler) nowPlaying(w http.ResponseWriter, r *http.Request) {
	var np models.NowPlaying
	if err := decodeBody(w, r, &np); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if np.Artist == "" || np.Title == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("artist and title are required"))
		return
	}

	h.engine.Announce(np)
	w.WriteHeader(http.StatusAccepted)
}

func (h *IngestHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

func (h *IngestHandler) network(w http.ResponseWriter, r *http.Request) {
	var state NetworkState
	if err := decodeBody(w, r, &state); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	h.engine.UpdateNetworkState(state.Connected)
	writeJSON(w, http.StatusOK, h.engine.Status())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
