package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn matches every *SpawnError via errors.Is.
	ErrSpawn = errors.New("spawn failed")

	// ErrSessionNotFound is returned when subscribing to an id that is not
	// (or no longer) routed.
	ErrSessionNotFound = errors.New("session not found")
)

// SpawnError reports that the host could not start a shell. It is never
// retried: spawning is not idempotent.
type SpawnError struct {
	Command string
	Dir     string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s in %s: %v", e.Command, e.Dir, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }
