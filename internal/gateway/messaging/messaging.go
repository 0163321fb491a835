// Package messaging is the outbound check-in delivery boundary.
//
// Implementations must classify failures: a PermanentError means the
// recipient is unreachable until reconfigured (blocked bot, dead chat) and
// must not be retried; every other error is treated as transient.
package messaging

import (
	"context"
	"errors"
)

// Recipient addresses one delivery target.
type Recipient struct {
	ChatID int64
}

type Gateway interface {
	Send(ctx context.Context, to Recipient, text string) error
}

// PermanentError wraps a gateway failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent delivery failure: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err (anywhere in its chain) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
