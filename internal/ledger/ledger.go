// Package ledger is the dispatch deduplication ledger: it guarantees
// at-most-one successful delivery per dedup key, under concurrent workers and
// across restarts. All correctness reduces to the store's TryClaim being a
// single atomic conditional write.
package ledger

import (
	"context"
	"fmt"
	"time"

	"pulsebot/internal/storage"
	"pulsebot/pkg/logx"
)

const (
	// DefaultClaimTTL bounds how long a claim may sit unfinalized before a
	// crashed worker's claim becomes reclaimable.
	DefaultClaimTTL = 5 * time.Minute

	// DefaultMaxAttempts is the transient-failure retry budget per key.
	DefaultMaxAttempts = 3
)

type Options struct {
	ClaimTTL    time.Duration
	MaxAttempts int
}

type Ledger struct {
	store       storage.Store
	log         logx.Logger
	claimTTL    time.Duration
	maxAttempts int
}

func New(store storage.Store, log logx.Logger, opt Options) *Ledger {
	if opt.ClaimTTL <= 0 {
		opt.ClaimTTL = DefaultClaimTTL
	}
	if opt.MaxAttempts <= 0 {
		opt.MaxAttempts = DefaultMaxAttempts
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ledger{store: store, log: log, claimTTL: opt.ClaimTTL, maxAttempts: opt.MaxAttempts}
}

// TryClaim attempts to take exclusive, time-bounded ownership of key.
// A false result is not an error: another worker owns or already finished it.
func (l *Ledger) TryClaim(ctx context.Context, key string) (bool, error) {
	claimed, err := l.store.TryClaim(ctx, key, time.Now(), l.claimTTL, l.maxAttempts)
	if err != nil {
		return false, fmt.Errorf("ledger claim %q: %w", key, err)
	}
	return claimed, nil
}

// MarkSent finalizes a claimed key as delivered. Calling it twice for the
// same key is a logged no-op, never a duplicate send.
func (l *Ledger) MarkSent(ctx context.Context, key string) error {
	moved, err := l.store.FinishClaim(ctx, key, storage.ClaimSent, "", l.maxAttempts)
	if err != nil {
		return fmt.Errorf("ledger mark sent %q: %w", key, err)
	}
	if !moved {
		c, ok, gerr := l.store.GetClaim(ctx, key)
		if gerr == nil && ok && c.Status == storage.ClaimSent {
			l.log.Debug("duplicate MarkSent ignored", logx.String("key", key))
			return nil
		}
		return fmt.Errorf("ledger mark sent %q: claim not owned (status transition refused)", key)
	}
	return nil
}

// MarkFailed records a delivery failure. Transient failures stay reclaimable
// until the attempt budget runs out, at which point the store escalates the
// row to failed_permanent within the same write.
func (l *Ledger) MarkFailed(ctx context.Context, key string, permanent bool, cause error) error {
	to := storage.ClaimFailedTransient
	if permanent {
		to = storage.ClaimFailedPermanent
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	moved, err := l.store.FinishClaim(ctx, key, to, msg, l.maxAttempts)
	if err != nil {
		return fmt.Errorf("ledger mark failed %q: %w", key, err)
	}
	if !moved {
		l.log.Warn("MarkFailed on unowned claim", logx.String("key", key), logx.Bool("permanent", permanent))
	}
	return nil
}

// IsTerminal reports whether key already reached sent or failed_permanent.
// Callers use it to short-circuit work from overlapping poll cycles.
func (l *Ledger) IsTerminal(ctx context.Context, key string) (bool, error) {
	c, ok, err := l.store.GetClaim(ctx, key)
	if err != nil {
		return false, fmt.Errorf("ledger get %q: %w", key, err)
	}
	return ok && c.Status.Terminal(), nil
}

// Prune drops terminal rows last touched before cutoff.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return l.store.PruneClaims(ctx, cutoff)
}
