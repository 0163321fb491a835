package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// memoryStore mirrors the sqlite driver's semantics in process memory. The
// claim mutations hold one mutex for the whole compare-and-set, so the
// at-most-once guarantee survives concurrent callers within a single process.
type memoryStore struct {
	mu       sync.Mutex
	settings map[int64]UserSettings
	claims   map[string]Claim
	audit    []AuditEntry
}

// NewMemory returns an in-process Store. Useful for tests and for running
// the bot without a database file.
func NewMemory() Store {
	return &memoryStore{
		settings: map[int64]UserSettings{},
		claims:   map[string]Claim{},
	}
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) SaveSettings(_ context.Context, u UserSettings) error {
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	m.settings[u.UserID] = u
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) GetSettings(_ context.Context, userID int64) (UserSettings, bool, error) {
	m.mu.Lock()
	u, ok := m.settings[userID]
	m.mu.Unlock()
	return u, ok, nil
}

func (m *memoryStore) ListEnabledSettings(_ context.Context) ([]UserSettings, error) {
	m.mu.Lock()
	out := make([]UserSettings, 0, len(m.settings))
	for _, u := range m.settings {
		if u.Cadence.Enabled {
			out = append(out, u)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memoryStore) TryClaim(_ context.Context, key string, now time.Time, ttl time.Duration, maxAttempts int) (bool, error) {
	if key == "" {
		return false, errors.New("empty dedup key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.claims[key]
	if ok {
		expired := c.Status == ClaimClaimed && !c.ClaimedAt.After(now.Add(-ttl))
		retryable := c.Status == ClaimFailedTransient && c.Attempts < maxAttempts
		if !expired && !retryable {
			return false, nil
		}
		c.Status = ClaimClaimed
		c.ClaimedAt = now
		c.Attempts++
		c.UpdatedAt = now
		m.claims[key] = c
		return true, nil
	}
	m.claims[key] = Claim{
		DedupKey:  key,
		Status:    ClaimClaimed,
		ClaimedAt: now,
		Attempts:  1,
		UpdatedAt: now,
	}
	return true, nil
}

func (m *memoryStore) FinishClaim(_ context.Context, key string, to ClaimStatus, lastErr string, maxAttempts int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.claims[key]
	if !ok || c.Status != ClaimClaimed {
		return false, nil
	}
	if to == ClaimFailedTransient && c.Attempts >= maxAttempts {
		to = ClaimFailedPermanent
	}
	c.Status = to
	c.LastError = lastErr
	c.UpdatedAt = time.Now()
	m.claims[key] = c
	return true, nil
}

func (m *memoryStore) GetClaim(_ context.Context, key string) (Claim, bool, error) {
	m.mu.Lock()
	c, ok := m.claims[key]
	m.mu.Unlock()
	return c, ok, nil
}

func (m *memoryStore) PruneClaims(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, c := range m.claims {
		if c.Status.Terminal() && c.UpdatedAt.Before(cutoff) {
			delete(m.claims, k)
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.mu.Lock()
	m.audit = append(m.audit, e)
	if len(m.audit) > 1000 {
		m.audit = m.audit[len(m.audit)-1000:]
	}
	m.mu.Unlock()
	return nil
}
