package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ericfisherdev/notevault/internal/domain/model"
	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// --- Mock implementations ---

type memoryStateStore struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{values: make(map[string]string)}
}

func (m *memoryStateStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryStateStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func (m *memoryStateStore) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *memoryStateStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryStateStore) snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

type storedDoc struct {
	content []byte
	version string
}

// memoryStore is a DocumentStore with integer versions.
type memoryStore struct {
	mu       sync.Mutex
	docs     map[string]storedDoc
	seq      int
	readErr  error
	writeErr error
	replaces int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: make(map[string]storedDoc)}
}

func (m *memoryStore) Read(_ context.Context, path string) (*model.RemoteDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	d, ok := m.docs[path]
	if !ok {
		return nil, nil
	}
	return &model.RemoteDocument{Content: append([]byte(nil), d.content...), Version: d.version}, nil
}

func (m *memoryStore) Replace(_ context.Context, path string, content []byte, _, expectedVersion string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaces++
	if m.writeErr != nil {
		return "", m.writeErr
	}
	d, ok := m.docs[path]
	if ok && d.version != expectedVersion {
		return "", driven.ErrVersionConflict
	}
	if !ok && expectedVersion != "" {
		return "", driven.ErrVersionConflict
	}
	m.seq++
	v := fmt.Sprintf("v%d", m.seq)
	m.docs[path] = storedDoc{content: append([]byte(nil), content...), version: v}
	return v, nil
}

func (m *memoryStore) Delete(_ context.Context, path, _, expectedVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[path]
	if !ok {
		return driven.ErrDocumentNotFound
	}
	if d.version != expectedVersion {
		return driven.ErrVersionConflict
	}
	delete(m.docs, path)
	return nil
}

// put writes a document out of band, as another device would.
func (m *memoryStore) put(path string, content []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	v := fmt.Sprintf("v%d", m.seq)
	m.docs[path] = storedDoc{content: content, version: v}
	return v
}

func (m *memoryStore) content(path string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[path].content
}

func (m *memoryStore) replaceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaces
}

type memoryPendingStore struct {
	mu      sync.Mutex
	records map[string]model.PendingWrite
}

func newMemoryPendingStore() *memoryPendingStore {
	return &memoryPendingStore{records: make(map[string]model.PendingWrite)}
}

func (m *memoryPendingStore) Save(_ context.Context, pw model.PendingWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[pw.Path] = pw
	return nil
}

func (m *memoryPendingStore) Get(_ context.Context, path string) (*model.PendingWrite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pw, ok := m.records[path]
	if !ok {
		return nil, nil
	}
	return &pw, nil
}

func (m *memoryPendingStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, path)
	return nil
}

type sentMessage struct {
	Destination string
	Payload     string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, destination, payload string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{Destination: destination, Payload: payload})
	return nil
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memoryCredentialStore is an in-memory CredentialStore. keyless mimics an
// adapter constructed without an encryption key.
type memoryCredentialStore struct {
	mu      sync.Mutex
	values  map[string]string
	keyless bool
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{values: make(map[string]string)}
}

func (m *memoryCredentialStore) Set(_ context.Context, service, key, plaintext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keyless {
		return driven.ErrEncryptionKeyNotSet
	}
	m.values[service+"/"+key] = plaintext
	return nil
}

func (m *memoryCredentialStore) Get(_ context.Context, service, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keyless {
		return "", driven.ErrEncryptionKeyNotSet
	}
	return m.values[service+"/"+key], nil
}

func (m *memoryCredentialStore) Delete(_ context.Context, service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, service+"/"+key)
	return nil
}

// fakeConnector accepts a single token.
type fakeConnector struct {
	valid string
	store *memoryStore
}

func (c *fakeConnector) Backend() string { return "fake" }

func (c *fakeConnector) Connect(_ context.Context, token string) (driven.DocumentStore, string, error) {
	if token != c.valid {
		return nil, "", errors.New("token rejected")
	}
	return c.store, "alice", nil
}
