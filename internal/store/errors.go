package store

import (
	"fmt"
	"strings"
)

// DBError is the base class for store failures that are neither a lock
// contention nor a uniqueness violation: something the caller should
// log and skip the current work item for.
type DBError struct {
	Op  string
	Err error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("store: %s: %s", e.Op, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// LockError indicates the store could not acquire a lock within its
// bounded timeout. It is retryable: the caller should re-enqueue the
// work item.
type LockError struct {
	Op  string
	Err error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("store: %s: locked: %s", e.Op, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

// IntegrityError indicates a uniqueness or check constraint was
// violated — most commonly a duplicate Host address or XFR zone name.
// It is not retryable.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("store: %s: integrity violation: %s", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// classifyErr turns a raw database/sql error into one of LockError,
// IntegrityError, or DBError, per spec.md §7. modernc.org/sqlite
// surfaces SQLite's own error text (e.g. "database is locked (5)",
// "UNIQUE constraint failed: host.addr (2067)"), so classification is
// done by matching on that text rather than a driver-specific error
// type, keeping this file stable across sqlite driver versions.
func classifyErr(op string, err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToUpper(err.Error())
	switch {
	case strings.Contains(msg, "LOCKED") || strings.Contains(msg, "BUSY"):
		return &LockError{Op: op, Err: err}
	case strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "CONSTRAINT"):
		return &IntegrityError{Op: op, Err: err}
	default:
		return &DBError{Op: op, Err: err}
	}
}
