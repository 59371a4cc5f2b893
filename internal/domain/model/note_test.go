package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCollection() NoteCollection {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return NoteCollection{
		{ID: "a", Title: "First", Content: "one", CreatedAt: ts, UpdatedAt: ts},
		{ID: "b", Title: "Second", Content: "two", CreatedAt: ts, UpdatedAt: ts},
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "Untitled", NormalizeTitle(""))
	assert.Equal(t, "Untitled", NormalizeTitle("   "))
	assert.Equal(t, "Groceries", NormalizeTitle("  Groceries "))
}

func TestNoteCollection_Find(t *testing.T) {
	c := sampleCollection()

	n, ok := c.Find("b")
	require.True(t, ok)
	assert.Equal(t, "Second", n.Title)

	_, ok = c.Find("missing")
	assert.False(t, ok)
}

func TestNoteCollection_UpsertAppendsNew(t *testing.T) {
	c := sampleCollection()

	out := c.Upsert(Note{ID: "c", Title: "Third"})

	require.Len(t, out, 3)
	assert.Equal(t, "c", out[2].ID)
	assert.Len(t, c, 2, "receiver must not change")
}

func TestNoteCollection_UpsertReplacesInPlace(t *testing.T) {
	c := sampleCollection()

	out := c.Upsert(Note{ID: "a", Title: "Renamed"})

	require.Len(t, out, 2)
	assert.Equal(t, "Renamed", out[0].Title)
	assert.Equal(t, "First", c[0].Title, "receiver must not change")
}

func TestNoteCollection_Remove(t *testing.T) {
	c := sampleCollection()

	out, ok := c.Remove("a")
	require.True(t, ok)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
	assert.Len(t, c, 2)

	out, ok = c.Remove("missing")
	assert.False(t, ok)
	assert.Len(t, out, 2)
}

func TestNoteCollection_NilMarshalsAsEmptyArray(t *testing.T) {
	var c NoteCollection

	data, err := json.Marshal(c.Clone())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestNote_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(sampleCollection()[0])
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"id": "a",
		"title": "First",
		"content": "one",
		"createdAt": "2026-03-01T10:00:00Z",
		"updatedAt": "2026-03-01T10:00:00Z"
	}`, string(data))
}

func TestNote_EncryptedMarker(t *testing.T) {
	n := sampleCollection()[0]
	n.Encrypted = true
	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"encrypted":true`)

	var back Note
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","content":"c"}`), &back))
	assert.False(t, back.Encrypted, "documents without the marker are plaintext")
}

func TestAttemptState_LockedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)

	assert.False(t, AttemptState{FailureCount: 2}.LockedAt(now))
	assert.True(t, AttemptState{FailureCount: 3, LockoutUntil: &until}.LockedAt(now))
	assert.False(t, AttemptState{FailureCount: 3, LockoutUntil: &until}.LockedAt(until))
}

func TestResetChallenge_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := ResetChallenge{Code: "ABC", ExpiresAt: now.Add(15 * time.Minute)}

	assert.False(t, c.Expired(now))
	assert.True(t, c.Expired(now.Add(15*time.Minute)))
}

func TestNoteCollection_ByRecent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NoteCollection{
		{ID: "old", UpdatedAt: ts},
		{ID: "new", UpdatedAt: ts.Add(2 * time.Hour)},
		{ID: "tie-1", UpdatedAt: ts.Add(time.Hour)},
		{ID: "tie-2", UpdatedAt: ts.Add(time.Hour)},
	}

	sorted := c.ByRecent()

	var ids []string
	for _, n := range sorted {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"new", "tie-1", "tie-2", "old"}, ids)
	assert.Equal(t, "old", c[0].ID, "receiver keeps insertion order")
}
