package model

import (
	"slices"
	"strings"
	"time"
)

// UntitledNote is the title given to notes created or saved with a blank title.
const UntitledNote = "Untitled"

// Note is a single user note. ID is assigned at creation and never changes.
// Encrypted is set on stored notes whose Content is a sealed blob.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Encrypted bool      `json:"encrypted,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeTitle trims surrounding whitespace and substitutes UntitledNote
// for an empty title.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return UntitledNote
	}
	return title
}

// NoteCollection is the ordered set of notes stored in the notes document.
// Order is insertion order and IDs are unique. Mutating helpers return a new
// collection and leave the receiver untouched, so a cached collection stays
// valid when a write built from it fails.
type NoteCollection []Note

// Find returns the note with the given ID.
func (c NoteCollection) Find(id string) (Note, bool) {
	if i := c.indexOf(id); i >= 0 {
		return c[i], true
	}
	return Note{}, false
}

// Upsert returns a copy of the collection with n replacing the note that has
// the same ID, or appended at the end when no such note exists.
func (c NoteCollection) Upsert(n Note) NoteCollection {
	out := c.Clone()
	if i := out.indexOf(n.ID); i >= 0 {
		out[i] = n
		return out
	}
	return append(out, n)
}

// Remove returns a copy of the collection without the note with the given ID
// and reports whether it was present.
func (c NoteCollection) Remove(id string) (NoteCollection, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return c.Clone(), false
	}
	out := make(NoteCollection, 0, len(c)-1)
	out = append(out, c[:i]...)
	out = append(out, c[i+1:]...)
	return out, true
}

// ByRecent returns a copy ordered by UpdatedAt, newest first. Notes updated
// at the same instant keep their relative order.
func (c NoteCollection) ByRecent() NoteCollection {
	out := c.Clone()
	slices.SortStableFunc(out, func(a, b Note) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out
}

// Clone returns a shallow copy. A nil collection clones to an empty one so
// it serializes as [] rather than null.
func (c NoteCollection) Clone() NoteCollection {
	out := make(NoteCollection, len(c))
	copy(out, c)
	return out
}

func (c NoteCollection) indexOf(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}
