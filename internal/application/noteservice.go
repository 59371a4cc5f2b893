package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/notevault/internal/domain/model"
	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// DefaultNotesPath is the document path used when none is configured.
const DefaultNotesPath = "data/notes.json"

// NoteServiceConfig holds the NoteService settings.
type NoteServiceConfig struct {
	Path           string
	EncryptContent bool
	Now            func() time.Time
}

// NoteService keeps the note collection in sync with the notes document in
// the remote store. The cached collection and the version it was read at are
// the basis of every write; a write that finds the remote advanced fails with
// driven.ErrVersionConflict and is recorded as a PendingWrite.
//
// With EncryptContent set, each note's content is sealed with the session PIN
// before it leaves the process and the note is marked encrypted. On load,
// marked notes must open. Unmarked content is kept as plaintext unless it
// opens, so existing plaintext notes migrate on their next save.
type NoteService struct {
	stores  *StoreProvider
	cipher  driven.Cipher
	pending driven.PendingWriteStore
	path    string
	encrypt bool
	now     func() time.Time

	mu      sync.Mutex
	loaded  bool
	notes   model.NoteCollection
	version string
	sealed  map[string]sealedContent
}

// sealedContent is the stored blob of a note's content, reused while the
// content and the PIN stay the same so a save does not re-seal every note.
type sealedContent struct {
	plain    string
	blob     string
	password string
}

// pendingRecordedError marks a save failure whose payload was already
// recorded as a pending write.
type pendingRecordedError struct {
	err error
}

func (e *pendingRecordedError) Error() string { return e.err.Error() }
func (e *pendingRecordedError) Unwrap() error { return e.err }

func pendingRecorded(err error) bool {
	var p *pendingRecordedError
	return errors.As(err, &p)
}

// NewNoteService creates a NoteService. cipher may be nil when content
// encryption is disabled.
func NewNoteService(stores *StoreProvider, cipher driven.Cipher, pending driven.PendingWriteStore, cfg NoteServiceConfig) *NoteService {
	if cfg.Path == "" {
		cfg.Path = DefaultNotesPath
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &NoteService{
		stores:  stores,
		cipher:  cipher,
		pending: pending,
		path:    cfg.Path,
		encrypt: cfg.EncryptContent && cipher != nil,
		now:     cfg.Now,
	}
}

// Path returns the document path the service reads and writes.
func (s *NoteService) Path() string {
	return s.path
}

// List returns the collection newest-updated first, reading it from the
// store on first use. The stored document keeps insertion order.
func (s *NoteService) List(ctx context.Context, sess *Session) (model.NoteCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return nil, err
	}
	return s.notes.ByRecent(), nil
}

// Get returns a single note.
func (s *NoteService) Get(ctx context.Context, sess *Session, id string) (model.Note, error) {
	if id == "" {
		return model.Note{}, ErrEmptyNoteID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return model.Note{}, err
	}
	n, ok := s.notes.Find(id)
	if !ok {
		return model.Note{}, ErrNoteNotFound
	}
	return n, nil
}

// Create appends a new note and saves the collection.
func (s *NoteService) Create(ctx context.Context, sess *Session, title, content string) (model.Note, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return model.Note{}, fmt.Errorf("generate note id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return model.Note{}, err
	}

	now := s.now().UTC()
	note := model.Note{
		ID:        id.String(),
		Title:     model.NormalizeTitle(title),
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	msg := fmt.Sprintf("Create note %q", note.Title)
	if err := s.write(ctx, sess, s.notes.Upsert(note), msg); err != nil {
		return model.Note{}, err
	}
	return note, nil
}

// Update replaces the title and content of an existing note and saves the
// collection. An update that changes nothing does not write.
func (s *NoteService) Update(ctx context.Context, sess *Session, id, title, content string) (model.Note, error) {
	if id == "" {
		return model.Note{}, ErrEmptyNoteID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return model.Note{}, err
	}

	note, ok := s.notes.Find(id)
	if !ok {
		return model.Note{}, ErrNoteNotFound
	}

	title = model.NormalizeTitle(title)
	if note.Title == title && note.Content == content {
		return note, nil
	}
	note.Title = title
	note.Content = content
	note.UpdatedAt = s.now().UTC()

	msg := fmt.Sprintf("Update notes: %s", note.UpdatedAt.Format(time.RFC3339))
	if err := s.write(ctx, sess, s.notes.Upsert(note), msg); err != nil {
		return model.Note{}, err
	}
	return note, nil
}

// Delete removes a note and saves the collection.
func (s *NoteService) Delete(ctx context.Context, sess *Session, id string) error {
	if id == "" {
		return ErrEmptyNoteID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return err
	}

	next, ok := s.notes.Remove(id)
	if !ok {
		return ErrNoteNotFound
	}
	return s.write(ctx, sess, next, fmt.Sprintf("Delete note %s", id))
}

// Reload reads the document again and replaces the cache. It is the way to
// pick up remote changes after a version conflict. A failed read leaves the
// cache as it was.
func (s *NoteService) Reload(ctx context.Context, sess *Session) (model.NoteCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes, version, err := s.load(ctx, sess)
	if err != nil {
		return nil, err
	}
	s.notes, s.version, s.loaded = notes, version, true
	return s.notes.ByRecent(), nil
}

// Forget drops the cached collection. Called when the vault locks so no
// decrypted content stays in memory.
func (s *NoteService) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = false
	s.notes = nil
	s.version = ""
	s.sealed = nil
}

// Version returns the remote version the cache was last synchronized with,
// or "" when nothing is cached.
func (s *NoteService) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Pending returns the recorded pending write, or nil.
func (s *NoteService) Pending(ctx context.Context) (*model.PendingWrite, error) {
	pw, err := s.pending.Get(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("get pending write: %w", err)
	}
	return pw, nil
}

// DiscardPending deletes the recorded pending write.
func (s *NoteService) DiscardPending(ctx context.Context) error {
	if err := s.pending.Delete(ctx, s.path); err != nil {
		return fmt.Errorf("discard pending write: %w", err)
	}
	return nil
}

// RetryPending sends the pending payload again against the version it was
// based on. If the remote has moved on the conflict is returned and the
// pending write is kept; the caller reloads and reconciles.
func (s *NoteService) RetryPending(ctx context.Context, sess *Session) (model.NoteCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pw, err := s.pending.Get(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("get pending write: %w", err)
	}
	if pw == nil {
		return nil, ErrNoPendingWrite
	}

	notes, err := s.decode([]byte(pw.Payload), sess)
	if err != nil {
		return nil, err
	}

	store := s.stores.Get()
	if store == nil {
		return nil, ErrStoreUnavailable
	}
	msg := fmt.Sprintf("Update notes: %s", s.now().UTC().Format(time.RFC3339))
	version, err := store.Replace(ctx, s.path, []byte(pw.Payload), msg, pw.BaseVersion)
	if err != nil {
		return nil, fmt.Errorf("retry pending write: %w", err)
	}

	s.notes, s.version, s.loaded = notes, version, true
	if err := s.pending.Delete(ctx, s.path); err != nil {
		slog.Error("failed to clear pending write", "path", s.path, "error", err)
	}
	slog.Info("pending write applied", "path", s.path, "version", version)
	return s.notes.ByRecent(), nil
}

// StashDrafts records the drafts as a pending write without writing them.
// It is used when a session ends with unsaved edits or an autosave fails
// before reaching the store. The drafts are applied to the pending write
// already recorded, or else to the cached collection. If neither exists and
// the document cannot be read, the drafts are recorded on their own against
// an empty base version, so retrying them conflicts with the existing
// document instead of replacing it.
func (s *NoteService) StashDrafts(ctx context.Context, sess *Session, drafts []model.Note) error {
	if len(drafts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.pending.Get(ctx, s.path)
	if err != nil {
		return fmt.Errorf("get pending write: %w", err)
	}

	var next model.NoteCollection
	base, reason, stacked := "", "unsaved draft", false
	if prev != nil {
		// Drafts go on top of the write that is already waiting.
		if notes, err := s.decode([]byte(prev.Payload), sess); err != nil {
			slog.Warn("pending write unreadable, stashing drafts over it", "path", s.path, "error", err)
		} else {
			next, base, stacked = notes, prev.BaseVersion, true
		}
	}
	if !stacked {
		if err := s.ensureLoaded(ctx, sess); err != nil {
			slog.Warn("notes unavailable, stashing drafts alone", "path", s.path, "count", len(drafts), "error", err)
			reason = "unsaved draft (notes not loaded)"
		} else {
			next, base = s.notes, s.version
		}
	}
	for _, d := range drafts {
		next = next.Upsert(d)
	}
	payload, err := s.encode(next, sess)
	if err != nil {
		return err
	}
	return s.recordPending(ctx, payload, base, reason)
}

// ensureLoaded reads the document if the cache is empty. Caller holds s.mu.
func (s *NoteService) ensureLoaded(ctx context.Context, sess *Session) error {
	if s.loaded {
		return nil
	}
	notes, version, err := s.load(ctx, sess)
	if err != nil {
		return err
	}
	s.notes, s.version, s.loaded = notes, version, true
	return nil
}

// load reads and decodes the document without touching the cache. A missing
// document is an empty collection at the empty version. Caller holds s.mu.
func (s *NoteService) load(ctx context.Context, sess *Session) (model.NoteCollection, string, error) {
	store := s.stores.Get()
	if store == nil {
		return nil, "", ErrStoreUnavailable
	}

	doc, err := store.Read(ctx, s.path)
	if err != nil {
		return nil, "", fmt.Errorf("read notes: %w", err)
	}

	if doc == nil {
		slog.Info("notes document not found, starting empty", "path", s.path)
		return model.NoteCollection{}, "", nil
	}

	notes, err := s.decode(doc.Content, sess)
	if err != nil {
		return nil, "", err
	}
	slog.Debug("notes loaded", "path", s.path, "count", len(notes), "version", doc.Version)
	return notes, doc.Version, nil
}

// write serializes next and replaces the remote document against the cached
// version. The cache only advances on success; on failure the attempted
// payload is recorded as a pending write. Caller holds s.mu.
func (s *NoteService) write(ctx context.Context, sess *Session, next model.NoteCollection, message string) error {
	payload, err := s.encode(next, sess)
	if err != nil {
		return err
	}

	store := s.stores.Get()
	if store == nil {
		return ErrStoreUnavailable
	}

	version, err := store.Replace(ctx, s.path, payload, message, s.version)
	if err != nil {
		reason := "transport error"
		if errors.Is(err, driven.ErrVersionConflict) {
			reason = "version conflict"
		}
		if pendErr := s.recordPending(ctx, payload, s.version, reason); pendErr != nil {
			slog.Error("failed to record pending write", "path", s.path, "error", pendErr)
			return fmt.Errorf("save notes: %w", err)
		}
		return fmt.Errorf("save notes: %w", &pendingRecordedError{err: err})
	}

	s.notes, s.version = next, version
	if err := s.pending.Delete(ctx, s.path); err != nil {
		slog.Error("failed to clear pending write", "path", s.path, "error", err)
	}
	slog.Debug("notes saved", "path", s.path, "count", len(next), "version", version)
	return nil
}

func (s *NoteService) recordPending(ctx context.Context, payload []byte, baseVersion, reason string) error {
	pw := model.PendingWrite{
		Path:        s.path,
		Payload:     string(payload),
		BaseVersion: baseVersion,
		Reason:      reason,
		SavedAt:     s.now().UTC(),
	}
	if err := s.pending.Save(ctx, pw); err != nil {
		return fmt.Errorf("save pending write: %w", err)
	}
	slog.Warn("write recorded as pending", "path", s.path, "reason", reason, "base_version", baseVersion)
	return nil
}

// encode renders the collection as the notes document, sealing content when
// encryption is enabled. Content unchanged since it was last sealed or opened
// under the same PIN keeps its blob. Caller holds s.mu.
func (s *NoteService) encode(notes model.NoteCollection, sess *Session) ([]byte, error) {
	out := notes.Clone()
	if s.encrypt {
		if sess == nil {
			return nil, ErrSessionRequired
		}
		password := sess.Password()
		sealed := make(map[string]sealedContent, len(out))
		for i := range out {
			plain := out[i].Content
			prev, ok := s.sealed[out[i].ID]
			blob := prev.blob
			if !ok || prev.plain != plain || prev.password != password {
				var err error
				if blob, err = s.cipher.Encrypt(plain, password); err != nil {
					return nil, fmt.Errorf("encrypt note %s: %w", out[i].ID, err)
				}
			}
			sealed[out[i].ID] = sealedContent{plain: plain, blob: blob, password: password}
			out[i].Content = blob
			out[i].Encrypted = true
		}
		s.sealed = sealed
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal notes: %w", err)
	}
	return data, nil
}

// decode parses the notes document, opening encrypted content when
// encryption is enabled. Empty content is an empty collection. A note marked
// encrypted that does not open fails the whole decode. Unmarked content is
// only a candidate: plaintext can have the shape of a blob, so when it does
// not open it is kept as it is. Caller holds s.mu.
func (s *NoteService) decode(data []byte, sess *Session) (model.NoteCollection, error) {
	var notes model.NoteCollection
	if len(data) > 0 {
		if err := json.Unmarshal(data, &notes); err != nil {
			return nil, fmt.Errorf("unmarshal notes: %w", err)
		}
	}
	notes = notes.Clone()

	if !s.encrypt {
		return notes, nil
	}
	if sess == nil {
		return nil, ErrSessionRequired
	}
	password := sess.Password()
	if s.sealed == nil {
		s.sealed = make(map[string]sealedContent, len(notes))
	}
	for i := range notes {
		n := &notes[i]
		switch {
		case n.Encrypted:
			plain, err := s.cipher.Decrypt(n.Content, password)
			if err != nil {
				return nil, fmt.Errorf("decrypt note %s: %w", n.ID, err)
			}
			s.sealed[n.ID] = sealedContent{plain: plain, blob: n.Content, password: password}
			n.Content = plain
			n.Encrypted = false
		case s.cipher.LooksEncrypted(n.Content):
			plain, err := s.cipher.Decrypt(n.Content, password)
			if err != nil {
				slog.Warn("unmarked note content did not open, keeping it as plaintext", "path", s.path, "note_id", n.ID)
				continue
			}
			n.Content = plain
		}
	}
	return notes, nil
}
