package storage

import (
	"context"
	"errors"
	"time"

	"pulsebot/internal/cadence"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (the production driver)
//   - "memory": in-process map store (tests, throwaway runs)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ClaimStatus is the dispatch claim state machine:
//
//	absent -> claimed -> {sent | failed_transient | failed_permanent}
//	failed_transient -> claimed (retry, until the attempt budget runs out)
//
// sent and failed_permanent are terminal and immutable.
type ClaimStatus string

const (
	ClaimClaimed         ClaimStatus = "claimed"
	ClaimSent            ClaimStatus = "sent"
	ClaimFailedTransient ClaimStatus = "failed_transient"
	ClaimFailedPermanent ClaimStatus = "failed_permanent"
)

// Terminal reports whether a status can never change again.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimSent || s == ClaimFailedPermanent
}

// Claim is one dedup ledger row.
type Claim struct {
	DedupKey  string
	Status    ClaimStatus
	ClaimedAt time.Time
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

// UserSettings is the persisted per-user configuration: where to deliver
// check-ins, when (cadence), and the work-hours window used by day planning.
type UserSettings struct {
	UserID    int64
	ChatID    int64
	Cadence   cadence.Config
	WorkStart string // "HH:MM", default 08:00
	WorkEnd   string // "HH:MM", default 18:00
	Timezone  string // IANA TZ; empty means the process default
	UpdatedAt time.Time
}

// AuditEntry records one dispatch outcome. Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time
	UserID   int64
	DedupKey string
	Action   string // "sent", "failed_transient", "failed_permanent", "claim_lost"
	Category string
	Error    string
	TookMS   int64
}

// Store is the persistence API used by the ledger and the dispatch service.
type Store interface {
	SaveSettings(ctx context.Context, s UserSettings) error
	GetSettings(ctx context.Context, userID int64) (UserSettings, bool, error)
	ListEnabledSettings(ctx context.Context) ([]UserSettings, error)

	// TryClaim claims dedupKey for exclusive processing. It succeeds only if
	// no row exists, or the existing claim expired before now-ttl, or the row
	// is failed_transient with attempts < maxAttempts. One conditional write.
	TryClaim(ctx context.Context, dedupKey string, now time.Time, ttl time.Duration, maxAttempts int) (bool, error)

	// FinishClaim moves a row out of the claimed state. A transient failure
	// whose attempt budget is exhausted is escalated to failed_permanent
	// inside the same write. Returns false if the row was not claimed (e.g.
	// a duplicate MarkSent), which callers treat as an idempotent no-op.
	FinishClaim(ctx context.Context, dedupKey string, to ClaimStatus, lastErr string, maxAttempts int) (bool, error)

	GetClaim(ctx context.Context, dedupKey string) (Claim, bool, error)

	// PruneClaims removes terminal rows last touched before cutoff.
	PruneClaims(ctx context.Context, cutoff time.Time) (int64, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}
