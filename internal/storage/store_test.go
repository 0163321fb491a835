package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pulsebot/internal/cadence"
	"pulsebot/pkg/logx"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "pulsebot.db"),
		BusyTimeout: 2 * time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{"sqlite": sq, "memory": NewMemory()}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if st != nil {
		t.Fatal("expected nil store for empty driver")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			want := UserSettings{
				UserID:    42,
				ChatID:    -100123,
				Cadence:   cadence.DefaultConfig(),
				WorkStart: "08:30",
				WorkEnd:   "17:00",
				Timezone:  "Europe/Paris",
			}
			want.Cadence.Randomize = true

			if err := st.SaveSettings(ctx, want); err != nil {
				t.Fatalf("SaveSettings: %v", err)
			}
			got, ok, err := st.GetSettings(ctx, 42)
			if err != nil || !ok {
				t.Fatalf("GetSettings: ok=%v err=%v", ok, err)
			}
			if got.ChatID != want.ChatID || got.WorkStart != want.WorkStart || got.Timezone != want.Timezone {
				t.Fatalf("got %+v, want %+v", got, want)
			}
			if !got.Cadence.Randomize || len(got.Cadence.Anchors) != 3 {
				t.Fatalf("cadence did not survive: %+v", got.Cadence)
			}
			if got.Cadence.Anchors[1].TimeOfDay != "14:00" {
				t.Fatalf("anchor 1 time = %q", got.Cadence.Anchors[1].TimeOfDay)
			}

			if _, ok, err := st.GetSettings(ctx, 999); err != nil || ok {
				t.Fatalf("missing user: ok=%v err=%v", ok, err)
			}

			// Upsert replaces in place.
			want.WorkEnd = "18:00"
			if err := st.SaveSettings(ctx, want); err != nil {
				t.Fatalf("SaveSettings update: %v", err)
			}
			got, _, _ = st.GetSettings(ctx, 42)
			if got.WorkEnd != "18:00" {
				t.Fatalf("WorkEnd = %q after upsert", got.WorkEnd)
			}
		})
	}
}

func TestListEnabledSettings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			on := UserSettings{UserID: 1, Cadence: cadence.DefaultConfig()}
			off := UserSettings{UserID: 2, Cadence: cadence.DefaultConfig()}
			off.Cadence.Enabled = false
			for _, u := range []UserSettings{off, on} {
				if err := st.SaveSettings(ctx, u); err != nil {
					t.Fatalf("SaveSettings: %v", err)
				}
			}
			got, err := st.ListEnabledSettings(ctx)
			if err != nil {
				t.Fatalf("ListEnabledSettings: %v", err)
			}
			if len(got) != 1 || got[0].UserID != 1 {
				t.Fatalf("got %+v, want only user 1", got)
			}
		})
	}
}

func TestClaimLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	const (
		ttl  = 5 * time.Minute
		maxA = 3
	)
	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			now := time.Now()

			ok, err := st.TryClaim(ctx, "k1", now, ttl, maxA)
			if err != nil || !ok {
				t.Fatalf("first TryClaim: ok=%v err=%v", ok, err)
			}
			// A live claim is not reclaimable.
			ok, err = st.TryClaim(ctx, "k1", now.Add(time.Second), ttl, maxA)
			if err != nil || ok {
				t.Fatalf("second TryClaim: ok=%v err=%v", ok, err)
			}

			moved, err := st.FinishClaim(ctx, "k1", ClaimSent, "", maxA)
			if err != nil || !moved {
				t.Fatalf("FinishClaim sent: moved=%v err=%v", moved, err)
			}
			// Sent is terminal; no reclaim even past the TTL.
			ok, err = st.TryClaim(ctx, "k1", now.Add(time.Hour), ttl, maxA)
			if err != nil || ok {
				t.Fatalf("TryClaim after sent: ok=%v err=%v", ok, err)
			}

			c, found, err := st.GetClaim(ctx, "k1")
			if err != nil || !found {
				t.Fatalf("GetClaim: found=%v err=%v", found, err)
			}
			if c.Status != ClaimSent || c.Attempts != 1 {
				t.Fatalf("claim = %+v", c)
			}
		})
	}
}

func TestClaimExpiryReclaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			now := time.Now()
			if ok, _ := st.TryClaim(ctx, "k2", now, 5*time.Minute, 3); !ok {
				t.Fatal("first claim failed")
			}
			// Crash scenario: the holder never finished. After the TTL the
			// claim is up for grabs again.
			if ok, _ := st.TryClaim(ctx, "k2", now.Add(4*time.Minute), 5*time.Minute, 3); ok {
				t.Fatal("reclaimed before TTL")
			}
			ok, err := st.TryClaim(ctx, "k2", now.Add(6*time.Minute), 5*time.Minute, 3)
			if err != nil || !ok {
				t.Fatalf("reclaim after TTL: ok=%v err=%v", ok, err)
			}
			c, _, _ := st.GetClaim(ctx, "k2")
			if c.Attempts != 2 {
				t.Fatalf("Attempts = %d, want 2", c.Attempts)
			}
		})
	}
}

func TestClaimTransientRetryAndEscalation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	const maxA = 3
	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			now := time.Now()

			// Burn through the attempt budget with transient failures.
			for attempt := 1; attempt <= maxA; attempt++ {
				ok, err := st.TryClaim(ctx, "k3", now, 5*time.Minute, maxA)
				if err != nil || !ok {
					t.Fatalf("attempt %d claim: ok=%v err=%v", attempt, ok, err)
				}
				moved, err := st.FinishClaim(ctx, "k3", ClaimFailedTransient, "timeout", maxA)
				if err != nil || !moved {
					t.Fatalf("attempt %d finish: moved=%v err=%v", attempt, moved, err)
				}
			}

			// The last transient failure escalated in the same write.
			c, _, _ := st.GetClaim(ctx, "k3")
			if c.Status != ClaimFailedPermanent {
				t.Fatalf("Status = %s, want failed_permanent", c.Status)
			}
			if c.Attempts != maxA {
				t.Fatalf("Attempts = %d, want %d", c.Attempts, maxA)
			}
			if ok, _ := st.TryClaim(ctx, "k3", now.Add(time.Hour), 5*time.Minute, maxA); ok {
				t.Fatal("permanent failure must not be reclaimable")
			}
		})
	}
}

func TestFinishClaimRequiresClaimed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			if moved, err := st.FinishClaim(ctx, "missing", ClaimSent, "", 3); err != nil || moved {
				t.Fatalf("finish missing: moved=%v err=%v", moved, err)
			}
			now := time.Now()
			_, _ = st.TryClaim(ctx, "k4", now, 5*time.Minute, 3)
			_, _ = st.FinishClaim(ctx, "k4", ClaimSent, "", 3)
			// Double-finish loses: the row already left "claimed".
			if moved, _ := st.FinishClaim(ctx, "k4", ClaimFailedTransient, "late", 3); moved {
				t.Fatal("second finish should not move the claim")
			}
		})
	}
}

func TestPruneClaims(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			now := time.Now()
			_, _ = st.TryClaim(ctx, "old", now, 5*time.Minute, 3)
			_, _ = st.FinishClaim(ctx, "old", ClaimSent, "", 3)
			_, _ = st.TryClaim(ctx, "live", now, 5*time.Minute, 3)

			n, err := st.PruneClaims(ctx, time.Now().Add(time.Minute))
			if err != nil {
				t.Fatalf("PruneClaims: %v", err)
			}
			if n != 1 {
				t.Fatalf("pruned %d, want 1", n)
			}
			// Non-terminal claims survive any cutoff.
			if _, found, _ := st.GetClaim(ctx, "live"); !found {
				t.Fatal("live claim was pruned")
			}
			if _, found, _ := st.GetClaim(ctx, "old"); found {
				t.Fatal("terminal claim survived prune")
			}
		})
	}
}

func TestAppendAudit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			err := st.AppendAudit(ctx, AuditEntry{
				UserID:   42,
				DedupKey: "42|0|2026-06-10",
				Action:   "sent",
				Category: "mood",
				TookMS:   12,
			})
			if err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
		})
	}
}
