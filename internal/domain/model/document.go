package model

import "time"

// RemoteDocument is a document read from a DocumentStore together with the
// opaque version token the store issued for exactly this content. A write
// that names the version succeeds only while the stored document still
// carries it.
type RemoteDocument struct {
	Content []byte
	Version string
}

// PendingWrite is the last write the application attempted but could not
// confirm against the remote store. Payload is the serialized collection as
// it would have been written and BaseVersion the remote version it was built
// on, so the write can be retried or the user can reconcile by hand.
type PendingWrite struct {
	Path        string
	Payload     string
	BaseVersion string
	Reason      string
	SavedAt     time.Time
}
