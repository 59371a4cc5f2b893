package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// Credential store coordinates of the remote API token.
const (
	credentialService = "remote"
	credentialKey     = "token"
)

// ErrEmptyToken is returned when configuring an empty remote token.
var ErrEmptyToken = &ValidationError{Field: "token", Message: "must not be empty"}

// RemoteService validates remote API tokens, persists them in the credential
// store and hot-swaps the DocumentStore held by the StoreProvider.
type RemoteService struct {
	connector   driven.StoreConnector
	credentials driven.CredentialStore
	stores      *StoreProvider
	notes       *NoteService
}

// NewRemoteService creates a RemoteService. credentials may be nil, in which
// case tokens are only held in memory.
func NewRemoteService(connector driven.StoreConnector, credentials driven.CredentialStore, stores *StoreProvider, notes *NoteService) *RemoteService {
	return &RemoteService{
		connector:   connector,
		credentials: credentials,
		stores:      stores,
		notes:       notes,
	}
}

// TokenResult describes a successfully configured token.
type TokenResult struct {
	Account   string
	Backend   string
	Persisted bool
}

// ConfigureToken validates token, stores it and swaps in a store built from
// it. The notes cache is dropped because it belongs to the previous store.
func (s *RemoteService) ConfigureToken(ctx context.Context, token string) (*TokenResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}

	store, account, err := s.connector.Connect(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("connect remote store: %w", err)
	}

	persisted := false
	if s.credentials != nil {
		err := s.credentials.Set(ctx, credentialService, credentialKey, token)
		switch {
		case err == nil:
			persisted = true
		case errors.Is(err, driven.ErrEncryptionKeyNotSet):
			slog.Warn("remote token not persisted", "reason", err)
		default:
			return nil, fmt.Errorf("store remote token: %w", err)
		}
	}

	s.stores.Replace(store, s.connector.Backend())
	s.notes.Forget()

	slog.Info("remote store configured", "backend", s.connector.Backend(), "account", account, "persisted", persisted)
	return &TokenResult{Account: account, Backend: s.connector.Backend(), Persisted: persisted}, nil
}

// StoredToken returns the persisted remote token, or "" when none is stored
// or the credential store is unavailable.
func (s *RemoteService) StoredToken(ctx context.Context) (string, error) {
	if s.credentials == nil {
		return "", nil
	}
	token, err := s.credentials.Get(ctx, credentialService, credentialKey)
	if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get remote token: %w", err)
	}
	return token, nil
}
