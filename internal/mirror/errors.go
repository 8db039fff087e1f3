package mirror

import (
	"errors"
	"fmt"

	"github.com/mixelka/chatmirror/pkg/models"
)

var (
	// ErrNotFound is returned by Transport.Retrieve when the message is gone
	ErrNotFound = errors.New("message not found")

	// ErrProvenanceMissing the event references a message that was never mirrored
	ErrProvenanceMissing = errors.New("provenance missing")

	// ErrRecoveryNotFound every candidate channel was probed without a hit
	ErrRecoveryNotFound = errors.New("deleted message not recovered")

	// ErrAccountBanned the account is excluded from mirroring
	ErrAccountBanned = errors.New("account is banned")
)

// MirrorFailure delivery to the primary destination and to the fallback failed
type MirrorFailure struct {
	Destination int64
	Fallback    int64
	Attempts    int
	Err         error
}

func (e *MirrorFailure) Error() string {
	return fmt.Sprintf("mirror to %d failed after %d attempts and fallback %d: %v",
		e.Destination, e.Attempts, e.Fallback, e.Err)
}

func (e *MirrorFailure) Unwrap() error {
	return e.Err
}

// PersistenceError a store write failed and the operation was abandoned
type PersistenceError struct {
	Op  string
	Key models.MessageKey
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
