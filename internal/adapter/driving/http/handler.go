// Package httphandler is the HTTP driving adapter that serves the notevault
// REST API.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/notevault/internal/application"
)

const maxBodyBytes = 4 << 20

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	gate     *application.AccessGate
	sessions *application.SessionService
	recovery *application.RecoveryService
	notes    *application.NoteService
	autosave *application.AutosaveService
	status   *application.StatusService
	remote   *application.RemoteService
	metrics  *Metrics
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. remote may be
// nil when no remote backend can be configured at runtime; metrics may be nil.
func NewHandler(
	gate *application.AccessGate,
	sessions *application.SessionService,
	recovery *application.RecoveryService,
	notes *application.NoteService,
	autosave *application.AutosaveService,
	status *application.StatusService,
	remote *application.RemoteService,
	metrics *Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		gate:     gate,
		sessions: sessions,
		recovery: recovery,
		notes:    notes,
		autosave: autosave,
		status:   status,
		remote:   remote,
		metrics:  metrics,
		logger:   logger,
	}
}

// RegisterAPIRoutes registers all API routes on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/vault/status", h.Status)
	mux.HandleFunc("POST /api/v1/vault/pin", h.SetPin)
	mux.HandleFunc("POST /api/v1/vault/unlock", h.Unlock)
	mux.HandleFunc("POST /api/v1/vault/lock", h.requireSession(h.Lock))
	mux.HandleFunc("POST /api/v1/vault/recovery", h.RequestRecovery)
	mux.HandleFunc("POST /api/v1/vault/recovery/reset", h.ResetPin)

	mux.HandleFunc("PUT /api/v1/remote/token", h.requireSession(h.SetRemoteToken))

	mux.HandleFunc("GET /api/v1/notes", h.requireSession(h.ListNotes))
	mux.HandleFunc("POST /api/v1/notes", h.requireSession(h.CreateNote))
	mux.HandleFunc("POST /api/v1/notes/reload", h.requireSession(h.ReloadNotes))
	mux.HandleFunc("GET /api/v1/notes/pending", h.requireSession(h.GetPending))
	mux.HandleFunc("POST /api/v1/notes/pending/retry", h.requireSession(h.RetryPending))
	mux.HandleFunc("DELETE /api/v1/notes/pending", h.requireSession(h.DiscardPending))
	mux.HandleFunc("GET /api/v1/notes/{id}", h.requireSession(h.GetNote))
	mux.HandleFunc("PUT /api/v1/notes/{id}", h.requireSession(h.UpdateNote))
	mux.HandleFunc("DELETE /api/v1/notes/{id}", h.requireSession(h.DeleteNote))
	mux.HandleFunc("PUT /api/v1/notes/{id}/draft", h.requireSession(h.SaveDraft))
	mux.HandleFunc("GET /api/v1/notes/{id}/preview", h.requireSession(h.PreviewNote))

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, metrics and recovery middleware.
func NewServeMux(h *Handler) http.Handler {
	mux := http.NewServeMux()
	RegisterAPIRoutes(mux, h)
	return ApplyMiddleware(mux, h.logger, h.metrics)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// Status reports whether a PIN is configured, the lockout state and the
// remote store configuration.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.status.Status(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(st))
}

// SetPin configures the first PIN.
func (h *Handler) SetPin(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.gate.SetInitialCredential(r.Context(), req.Pin); err != nil {
		writeServiceError(w, h.logger, "set pin", err)
		return
	}
	h.logger.Info("PIN configured")
	w.WriteHeader(http.StatusCreated)
}

// Unlock verifies the PIN and opens a session.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := h.sessions.Unlock(r.Context(), req.Pin)
	if err != nil {
		var authFail *application.AuthFailure
		var lockedOut *application.LockedOutError
		switch {
		case errors.As(err, &authFail):
			h.metrics.unlock("failure")
		case errors.As(err, &lockedOut):
			h.metrics.unlock("locked_out")
		}
		writeServiceError(w, h.logger, "unlock", err)
		return
	}

	h.metrics.unlock("success")
	writeJSON(w, http.StatusOK, SessionResponse{
		Token:     sess.Token,
		StartedAt: sess.StartedAt.UTC().Format(time.RFC3339),
	})
}

// Lock ends the session. Pending drafts are stashed by the session's lock hooks.
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Lock(r.Context(), bearerToken(r)); err != nil {
		writeServiceError(w, h.logger, "lock", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestRecovery issues a reset code and sends it to the recovery address.
// The code is never included in the response.
func (h *Handler) RequestRecovery(w http.ResponseWriter, r *http.Request) {
	if _, err := h.recovery.GenerateChallenge(r.Context()); err != nil {
		h.logger.Error("reset code delivery failed", "error", err)
		writeError(w, http.StatusBadGateway, "could not deliver reset code")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// ResetPin consumes a reset code and installs a new PIN. Any open session is
// ended since it was opened with the old PIN.
func (h *Handler) ResetPin(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.recovery.Consume(r.Context(), req.Code, req.Pin); err != nil {
		writeServiceError(w, h.logger, "reset pin", err)
		return
	}
	h.sessions.LockAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// SetRemoteToken validates and stores a remote API token and switches the
// note store to it.
func (h *Handler) SetRemoteToken(w http.ResponseWriter, r *http.Request) {
	if h.remote == nil {
		writeError(w, http.StatusConflict, "no remote repository is configured")
		return
	}

	var req TokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.remote.ConfigureToken(r.Context(), req.Token)
	if err != nil {
		var validation *application.ValidationError
		if errors.As(err, &validation) {
			writeServiceError(w, h.logger, "set remote token", err)
			return
		}
		h.logger.Warn("remote token rejected", "error", err)
		writeError(w, http.StatusBadRequest, "token was rejected by the remote service")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Account: res.Account, Backend: res.Backend, Persisted: res.Persisted})
}

// ListNotes returns all notes, loading them from the store on first use.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.notes.List(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponses(notes))
}

// CreateNote creates a note and writes the collection.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	note, err := h.notes.Create(r.Context(), sessionFrom(r.Context()), req.Title, req.Content)
	h.metrics.noteWrite("create", err)
	if err != nil {
		writeServiceError(w, h.logger, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteResponse(note))
}

// GetNote returns one note.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.Get(r.Context(), sessionFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(note))
}

// UpdateNote saves a note explicitly. A scheduled autosave for the same note
// is dropped first.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	h.autosave.Discard(id)

	note, err := h.notes.Update(r.Context(), sessionFrom(r.Context()), id, req.Title, req.Content)
	h.metrics.noteWrite("update", err)
	if err != nil {
		writeServiceError(w, h.logger, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(note))
}

// DeleteNote removes a note and writes the collection.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.autosave.Discard(id)

	err := h.notes.Delete(r.Context(), sessionFrom(r.Context()), id)
	h.metrics.noteWrite("delete", err)
	if err != nil {
		writeServiceError(w, h.logger, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveDraft schedules a debounced save of an edited note.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.autosave.Edit(r.Context(), sessionFrom(r.Context()), r.PathValue("id"), req.Title, req.Content); err != nil {
		writeServiceError(w, h.logger, "save draft", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// PreviewNote renders a note's content as sanitized HTML.
func (h *Handler) PreviewNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.Get(r.Context(), sessionFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "preview note", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{ID: note.ID, HTML: RenderMarkdown(note.Content)})
}

// ReloadNotes drops the cache and reads the notes from the store again.
func (h *Handler) ReloadNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.notes.Reload(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, "reload notes", err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponses(notes))
}

// GetPending returns the recorded pending write.
func (h *Handler) GetPending(w http.ResponseWriter, r *http.Request) {
	pw, err := h.notes.Pending(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "get pending", err)
		return
	}
	if pw == nil {
		writeError(w, http.StatusNotFound, "no pending write")
		return
	}
	writeJSON(w, http.StatusOK, toPendingResponse(pw))
}

// RetryPending re-sends the pending write against its base version.
func (h *Handler) RetryPending(w http.ResponseWriter, r *http.Request) {
	notes, err := h.notes.RetryPending(r.Context(), sessionFrom(r.Context()))
	h.metrics.noteWrite("retry", err)
	if err != nil {
		writeServiceError(w, h.logger, "retry pending", err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponses(notes))
}

// DiscardPending deletes the pending write.
func (h *Handler) DiscardPending(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.DiscardPending(r.Context()); err != nil {
		writeServiceError(w, h.logger, "discard pending", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes a JSON request body into v and writes a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
