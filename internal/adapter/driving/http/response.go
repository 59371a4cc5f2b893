package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/notevault/internal/application"
	"github.com/ericfisherdev/notevault/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body. The optional fields are
// set for failed unlocks and lockouts.
type errorResponse struct {
	Error             string `json:"error"`
	Field             string `json:"field,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// StatusResponse is the JSON representation of the vault status.
type StatusResponse struct {
	Configured        bool   `json:"configured"`
	Unlocked          bool   `json:"unlocked"`
	LockedOut         bool   `json:"locked_out"`
	LockoutSeconds    int64  `json:"lockout_seconds"`
	RemainingAttempts int    `json:"remaining_attempts"`
	PinLength         int    `json:"pin_length"`
	RemoteConfigured  bool   `json:"remote_configured"`
	RemoteBackend     string `json:"remote_backend"`
	HasPendingWrite   bool   `json:"has_pending_write"`
	RemoteVersion     string `json:"remote_version,omitempty"`
}

// SessionResponse is returned by a successful unlock.
type SessionResponse struct {
	Token     string `json:"token"`
	StartedAt string `json:"started_at"`
}

// NoteResponse is the JSON representation of a note.
type NoteResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// PreviewResponse carries rendered note content.
type PreviewResponse struct {
	ID   string `json:"id"`
	HTML string `json:"html"`
}

// PendingResponse is the JSON representation of a pending write.
type PendingResponse struct {
	Path        string          `json:"path"`
	Reason      string          `json:"reason"`
	BaseVersion string          `json:"base_version"`
	SavedAt     string          `json:"saved_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// TokenResponse describes a configured remote token.
type TokenResponse struct {
	Account   string `json:"account"`
	Backend   string `json:"backend"`
	Persisted bool   `json:"persisted"`
}

// PinRequest is the JSON body for PIN setup and unlock.
type PinRequest struct {
	Pin string `json:"pin"`
}

// ResetRequest is the JSON body for consuming a reset code.
type ResetRequest struct {
	Code string `json:"code"`
	Pin  string `json:"pin"`
}

// NoteRequest is the JSON body for creating, updating and drafting a note.
type NoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// TokenRequest is the JSON body for configuring the remote token.
type TokenRequest struct {
	Token string `json:"token"`
}

func toStatusResponse(s *application.VaultStatus) StatusResponse {
	return StatusResponse{
		Configured:        s.Configured,
		Unlocked:          s.Unlocked,
		LockedOut:         s.LockedOut,
		LockoutSeconds:    int64(s.LockoutRemaining / time.Second),
		RemainingAttempts: s.RemainingAttempts,
		PinLength:         s.PasswordLength,
		RemoteConfigured:  s.StoreConfigured,
		RemoteBackend:     s.StoreBackend,
		HasPendingWrite:   s.HasPendingWrite,
		RemoteVersion:     s.RemoteVersion,
	}
}

func toNoteResponse(n model.Note) NoteResponse {
	return NoteResponse{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: n.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toNoteResponses(notes model.NoteCollection) []NoteResponse {
	resp := make([]NoteResponse, 0, len(notes))
	for _, n := range notes {
		resp = append(resp, toNoteResponse(n))
	}
	return resp
}

func toPendingResponse(pw *model.PendingWrite) PendingResponse {
	resp := PendingResponse{
		Path:        pw.Path,
		Reason:      pw.Reason,
		BaseVersion: pw.BaseVersion,
		SavedAt:     pw.SavedAt.UTC().Format(time.RFC3339),
	}
	if json.Valid([]byte(pw.Payload)) {
		resp.Payload = json.RawMessage(pw.Payload)
	}
	return resp
}
