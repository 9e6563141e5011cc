package datasync

import (
	"fmt"

	"github.com/nutrilog/datasync/fence"
)

// Re-exported fence errors so callers can match without importing fence.
var (
	// ErrNotAuthenticated: the operation needed an identity and none is
	// present.
	ErrNotAuthenticated = fence.ErrNotAuthenticated

	// ErrAuthStateChanged: the identity changed while the operation was in
	// flight; its result was discarded.
	ErrAuthStateChanged = fence.ErrAuthStateChanged
)

// SyncError reports a pending operation that could not be pushed to the
// remote store.
type SyncError struct {
	ID   string
	Kind string // "create", "update", "delete"
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s %q failed: %v", e.Kind, e.ID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
