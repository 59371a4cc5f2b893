package driven

import "context"

// Notifier defines the driven port for out-of-band delivery of a short
// secret, such as a PIN reset code, to the owner of the vault.
type Notifier interface {
	Send(ctx context.Context, destination, payload string) error
}
