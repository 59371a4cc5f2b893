package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/notevault/internal/domain/model"
)

const autosaveWriteTimeout = 30 * time.Second

// draft is an unsaved edit of one note waiting for its debouncer.
type draft struct {
	note      model.Note
	sess      *Session
	debouncer *Debouncer
}

// AutosaveService debounces editor drafts per note and saves each one through
// the NoteService once edits pause. A draft whose save fails before a pending
// write is recorded is stashed instead. Shutdown stops every timer and stashes
// unsaved drafts as a pending write instead of writing them.
type AutosaveService struct {
	notes *NoteService
	delay time.Duration
	now   func() time.Time

	mu       sync.Mutex
	drafts   map[string]*draft
	inflight sync.WaitGroup
}

// NewAutosaveService creates an AutosaveService. now may be nil.
func NewAutosaveService(notes *NoteService, delay time.Duration, now func() time.Time) *AutosaveService {
	if now == nil {
		now = time.Now
	}
	return &AutosaveService{
		notes:  notes,
		delay:  delay,
		now:    now,
		drafts: make(map[string]*draft),
	}
}

// Edit records a draft for an existing note and (re)starts its timer.
func (a *AutosaveService) Edit(ctx context.Context, sess *Session, id, title, content string) error {
	note, err := a.notes.Get(ctx, sess, id)
	if err != nil {
		return err
	}
	note.Title = model.NormalizeTitle(title)
	note.Content = content
	note.UpdatedAt = a.now().UTC()

	a.mu.Lock()
	d, ok := a.drafts[id]
	if !ok {
		d = &draft{}
		d.debouncer = NewDebouncer(a.delay, func() { a.save(id) })
		a.drafts[id] = d
	}
	d.note = note
	d.sess = sess
	a.mu.Unlock()

	d.debouncer.Trigger()
	return nil
}

// Discard drops the draft for id, typically because an explicit save made it
// obsolete.
func (a *AutosaveService) Discard(id string) {
	a.mu.Lock()
	d, ok := a.drafts[id]
	delete(a.drafts, id)
	a.mu.Unlock()

	if ok {
		d.debouncer.Close()
	}
}

// PendingCount returns the number of drafts waiting to be saved.
func (a *AutosaveService) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.drafts)
}

// Shutdown stops all timers and waits for saves already in progress. Drafts
// that never reached the store are stashed as a pending write so they
// survive the session.
func (a *AutosaveService) Shutdown(ctx context.Context) {
	a.mu.Lock()
	drafts := a.drafts
	a.drafts = make(map[string]*draft)
	a.mu.Unlock()

	var sess *Session
	unsaved := make([]model.Note, 0, len(drafts))
	for _, d := range drafts {
		d.debouncer.Close()
		unsaved = append(unsaved, d.note)
		sess = d.sess
	}
	a.inflight.Wait()
	if len(unsaved) == 0 {
		return
	}

	if err := a.notes.StashDrafts(ctx, sess, unsaved); err != nil {
		slog.Error("failed to stash unsaved drafts", "count", len(unsaved), "error", err)
		return
	}
	slog.Info("unsaved drafts stashed", "count", len(unsaved))
}

func (a *AutosaveService) save(id string) {
	a.mu.Lock()
	d, ok := a.drafts[id]
	if ok {
		delete(a.drafts, id)
		a.inflight.Add(1)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	defer a.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), autosaveWriteTimeout)
	defer cancel()

	_, err := a.notes.Update(ctx, d.sess, id, d.note.Title, d.note.Content)
	if err == nil {
		slog.Debug("autosaved note", "note_id", id)
		return
	}
	slog.Error("autosave failed", "note_id", id, "error", err)
	if pendingRecorded(err) || errors.Is(err, ErrNoteNotFound) {
		return
	}
	if err := a.notes.StashDrafts(ctx, d.sess, []model.Note{d.note}); err != nil {
		slog.Error("failed to stash unsaved draft", "note_id", id, "error", err)
	}
}
