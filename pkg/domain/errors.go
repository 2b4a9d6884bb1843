package domain

import (
	"fmt"
	"strings"
)

// Sentinel errors for the failure taxonomy. Callers classify with errors.Is.
var (
	// ErrInvalidIdentifier indicates a structurally invalid conversation
	// identifier. Never retried; surfaced as a client error.
	ErrInvalidIdentifier = fmt.Errorf("invalid conversation identifier")

	// ErrStorageUnavailable indicates a transient remote storage failure. The
	// whole cycle is safe to retry; no partial effects are assumed.
	ErrStorageUnavailable = fmt.Errorf("storage unavailable")

	// ErrSessionBusy indicates another execution cycle holds the session's
	// lease. The caller should retry after the current cycle releases it.
	ErrSessionBusy = fmt.Errorf("session busy")
)

// PartialSyncError reports a workspace sync batch in which some files
// transferred and some did not. On pull the cycle may proceed with degraded
// data; on push it escalates to a PersistenceError.
type PartialSyncError struct {
	// Op is "pull" or "push".
	Op string
	// Failed lists the paths that did not transfer.
	Failed []string
	// Transferred counts the files that did.
	Transferred int
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("partial %s: %d transferred, %d failed: %s",
		e.Op, e.Transferred, len(e.Failed), strings.Join(e.Failed, ", "))
}

// PersistenceError reports a push-stage failure after the agent executed. The
// agent's output may be lost, so it is logged and surfaced distinctly from
// pull-stage failures; it never rolls back the execution itself.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting session %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
