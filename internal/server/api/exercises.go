// Package api provides the HTTP handlers for exercise profiles.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayusman/physiopal/internal/catalog"
	"github.com/ayusman/physiopal/internal/store"
)

// maxProfileSize bounds uploaded profile documents.
const maxProfileSize = 1 << 20

// Profile sources reported by the list endpoint.
const (
	SourceBuiltin = "builtin"
	SourceStored  = "stored"
)

// ExerciseHandler handles HTTP requests for exercise profiles. Built-in
// profiles are read-only; stored profiles can be created, replaced and
// deleted. Request bodies are YAML or JSON profile documents.
type ExerciseHandler struct {
	store *store.Store
}

// NewExerciseHandler creates a new ExerciseHandler. s may be nil, in which
// case only the built-in profiles are served.
func NewExerciseHandler(s *store.Store) *ExerciseHandler {
	return &ExerciseHandler{store: s}
}

// ServeHTTP routes /api/exercises and /api/exercises/{id}.
func (h *ExerciseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/exercises")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if h.store == nil {
		writeError(w, http.StatusNotFound, "Exercise not found")
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type exerciseResponse struct {
	ID        string          `json:"id,omitempty"`
	Key       string          `json:"key"`
	Source    string          `json:"source"`
	Phases    []string        `json:"phases"`
	Profile   catalog.Profile `json:"profile"`
	CreatedAt string          `json:"created_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

type listExercisesResponse struct {
	Exercises []exerciseResponse `json:"exercises"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func builtinResponse(p catalog.Profile) exerciseResponse {
	return exerciseResponse{
		Key:     p.Key(),
		Source:  SourceBuiltin,
		Phases:  p.Template.Phases,
		Profile: p,
	}
}

func storedResponse(sp *store.StoredProfile) exerciseResponse {
	return exerciseResponse{
		ID:        sp.ID,
		Key:       sp.Profile.Key(),
		Source:    SourceStored,
		Phases:    sp.Profile.Template.Phases,
		Profile:   sp.Profile,
		CreatedAt: sp.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: sp.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// readProfile decodes and validates the request body.
func readProfile(w http.ResponseWriter, r *http.Request) (catalog.Profile, bool) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxProfileSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return catalog.Profile{}, false
	}
	p, err := catalog.Parse(data)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidProfile) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, http.StatusBadRequest, "Invalid profile document")
		}
		return catalog.Profile{}, false
	}
	return p, true
}

// list handles GET /api/exercises: built-in profiles first, then stored ones.
func (h *ExerciseHandler) list(w http.ResponseWriter, r *http.Request) {
	response := listExercisesResponse{Exercises: []exerciseResponse{}}
	for _, p := range catalog.Builtins() {
		response.Exercises = append(response.Exercises, builtinResponse(p))
	}

	if h.store != nil {
		stored, err := h.store.Profiles().List()
		if err != nil {
			slog.Error("api: listing profiles", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list exercises")
			return
		}
		for _, sp := range stored {
			response.Exercises = append(response.Exercises, storedResponse(sp))
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/exercises/{id}.
func (h *ExerciseHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	sp, err := h.store.Profiles().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Exercise not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get exercise")
		return
	}

	writeJSON(w, http.StatusOK, storedResponse(sp))
}

// create handles POST /api/exercises. A profile whose name and level are
// already stored is rejected with 409.
func (h *ExerciseHandler) create(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "No profile store configured")
		return
	}

	p, ok := readProfile(w, r)
	if !ok {
		return
	}

	if _, err := h.store.Profiles().GetByKey(p.Name, p.Level); err == nil {
		writeError(w, http.StatusConflict, "Exercise "+p.Key()+" already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to create exercise")
		return
	}

	sp := &store.StoredProfile{Profile: p}
	if err := h.store.Profiles().Create(sp); err != nil {
		slog.Error("api: creating profile", "key", p.Key(), "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create exercise")
		return
	}

	slog.Info("api: profile created", "id", sp.ID, "key", p.Key())
	writeJSON(w, http.StatusCreated, storedResponse(sp))
}

// update handles PUT /api/exercises/{id} by replacing the document.
func (h *ExerciseHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	sp, err := h.store.Profiles().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Exercise not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get exercise")
		return
	}

	p, ok := readProfile(w, r)
	if !ok {
		return
	}
	if other, err := h.store.Profiles().GetByKey(p.Name, p.Level); err == nil && other.ID != id {
		writeError(w, http.StatusConflict, "Exercise "+p.Key()+" already exists")
		return
	}

	sp.Profile = p
	if err := h.store.Profiles().Update(sp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update exercise")
		return
	}

	writeJSON(w, http.StatusOK, storedResponse(sp))
}

// delete handles DELETE /api/exercises/{id}.
func (h *ExerciseHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.Profiles().Delete(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Exercise not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete exercise")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Resolve finds the profile for an exercise and level. Stored profiles
// take precedence over built-ins so users can retune them.
func Resolve(s *store.Store, name, level string) (catalog.Profile, error) {
	if s != nil {
		sp, err := s.Profiles().GetByKey(name, level)
		if err == nil {
			return sp.Profile, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return catalog.Profile{}, err
		}
	}
	if p, ok := catalog.Lookup(name, level); ok {
		return p, nil
	}
	return catalog.Profile{}, store.ErrNotFound
}
