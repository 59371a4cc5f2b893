package driven

import "context"

// StoreConnector builds a DocumentStore for a remote API token. Connect
// validates the token with the remote service before returning and reports
// the account it belongs to.
type StoreConnector interface {
	Backend() string
	Connect(ctx context.Context, token string) (store DocumentStore, account string, err error)
}
