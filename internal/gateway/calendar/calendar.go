// Package calendar is the read-only busy-time boundary. Not every user
// connects a calendar: ErrNotConnected is a normal state, and slot finding
// degrades to the fallback window rather than failing the request.
package calendar

import (
	"context"
	"errors"
	"time"

	"pulsebot/internal/planning"
)

// ErrNotConnected means the user has no calendar linked (or the link was
// revoked). It is advisory, never a hard failure.
var ErrNotConnected = errors.New("calendar not connected")

type Gateway interface {
	// GetBusyIntervals returns the user's busy spans for one date. The result
	// may be unsorted and overlapping; callers normalize.
	GetBusyIntervals(ctx context.Context, userID int64, date time.Time) ([]planning.Interval, error)
}

// None is the gateway used when no calendar backend is configured: every
// lookup reports not-connected, so day planning always uses the fallback.
type None struct{}

func (None) GetBusyIntervals(context.Context, int64, time.Time) ([]planning.Interval, error) {
	return nil, ErrNotConnected
}
