package dispatch

import (
	"context"
	"strings"
	"time"

	"pulsebot/internal/cadence"
	"pulsebot/internal/eventbus"
	"pulsebot/internal/gateway/messaging"
	"pulsebot/internal/storage"
	"pulsebot/pkg/logx"
)

// Tick plans today's anchors for every enabled user and enqueues the due,
// non-terminal ones. Anchors are independent units of work keyed by their
// dedup identity; neither ordering within a tick nor exclusivity across
// scheduler instances is assumed here — the ledger claim is the only gate.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return
	}
	q := s.queue
	defaultLoc := s.loc
	s.mu.Unlock()

	users, err := s.store.ListEnabledSettings(ctx)
	if err != nil {
		s.log.Warn("tick: listing settings failed", logx.Err(err))
		return
	}

	queued := 0
	for _, u := range users {
		loc := userLocation(u, defaultLoc)
		for _, anchor := range cadence.AnchorsForDate(u.Cadence, u.UserID, now.In(loc), loc) {
			if anchor.ScheduledAt.After(now) {
				continue
			}
			terminal, err := s.ledger.IsTerminal(ctx, anchor.DedupKey())
			if err != nil {
				s.log.Warn("tick: terminal check failed", logx.String("key", anchor.DedupKey()), logx.Err(err))
				continue
			}
			if terminal {
				continue
			}
			select {
			case q <- job{settings: u, anchor: anchor}:
				queued++
			default:
				s.log.Warn("dispatch queue full; anchor deferred to next tick",
					logx.String("key", anchor.DedupKey()), logx.Int("queue_cap", cap(q)))
			}
		}
	}
	if queued > 0 {
		s.log.Debug("tick queued anchors", logx.Int("count", queued))
	}
}

func userLocation(u storage.UserSettings, def *time.Location) *time.Location {
	tz := strings.TrimSpace(u.Timezone)
	if tz == "" {
		return def
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return def
	}
	return loc
}

func (s *Service) workerLoop(idx int) {
	s.mu.Lock()
	q := s.queue
	runCtx := s.runCtx
	s.mu.Unlock()
	if q == nil {
		return
	}

	s.log.Debug("worker started", logx.Int("worker", idx))
	for j := range q {
		s.process(runCtx, j)
	}
	s.log.Debug("worker stopped", logx.Int("worker", idx))
}

// process runs one due anchor through the claim/send/finalize sequence.
func (s *Service) process(ctx context.Context, j job) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	key := j.anchor.DedupKey()
	start := time.Now()

	claimed, err := s.ledger.TryClaim(ctx, key)
	if err != nil {
		s.log.Warn("claim attempt failed", logx.String("key", key), logx.Err(err))
		return
	}
	if !claimed {
		// Expected under concurrent pollers: someone else owns or already
		// finished this anchor. Silent skip, not an error.
		s.publish(eventbus.TypeDispatchClaimLost, j, "")
		return
	}

	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			// Shutdown mid-claim: leave the claim to expire and be reclaimed.
			return
		}
	}

	text := questionFor(j.anchor)
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = s.gateway.Send(sendCtx, messaging.Recipient{ChatID: j.settings.ChatID}, text)
	cancel()

	took := time.Since(start).Milliseconds()
	switch {
	case err == nil:
		if merr := s.ledger.MarkSent(ctx, key); merr != nil {
			s.log.Error("mark sent failed", logx.String("key", key), logx.Err(merr))
		}
		s.finalize(ctx, j, outcomeSent, "", took)
	case messaging.IsPermanent(err):
		if merr := s.ledger.MarkFailed(ctx, key, true, err); merr != nil {
			s.log.Error("mark failed (permanent) failed", logx.String("key", key), logx.Err(merr))
		}
		s.log.Warn("check-in undeliverable; giving up",
			logx.Int64("user", j.anchor.UserID), logx.String("key", key), logx.Err(err))
		s.disableDelivery(ctx, j.anchor.UserID)
		s.finalize(ctx, j, outcomeFailedPermanent, err.Error(), took)
	default:
		if merr := s.ledger.MarkFailed(ctx, key, false, err); merr != nil {
			s.log.Error("mark failed (transient) failed", logx.String("key", key), logx.Err(merr))
		}
		s.log.Debug("check-in send failed; will retry",
			logx.Int64("user", j.anchor.UserID), logx.String("key", key), logx.Err(err))
		s.finalize(ctx, j, outcomeFailedTransient, err.Error(), took)
	}
}

// disableDelivery turns the user's cadence off after an undeliverable send.
// Planning stops producing anchors for them until they reconfigure (/start
// re-enables), which is the only way the permanent failure can be fixed.
func (s *Service) disableDelivery(ctx context.Context, userID int64) {
	u, ok, err := s.store.GetSettings(ctx, userID)
	if err != nil || !ok || !u.Cadence.Enabled {
		return
	}
	u.Cadence.Enabled = false
	u.UpdatedAt = time.Now()
	if err := s.store.SaveSettings(ctx, u); err != nil {
		s.log.Warn("disabling undeliverable user failed", logx.Int64("user", userID), logx.Err(err))
	}
}

func (s *Service) finalize(ctx context.Context, j job, outcome, errMsg string, tookMS int64) {
	now := time.Now()
	s.appendHistory(HistoryItem{
		At:      now,
		UserID:  j.anchor.UserID,
		Key:     j.anchor.DedupKey(),
		Outcome: outcome,
		Error:   errMsg,
	})
	if err := s.store.AppendAudit(ctx, storage.AuditEntry{
		At:       now,
		UserID:   j.anchor.UserID,
		DedupKey: j.anchor.DedupKey(),
		Action:   outcome,
		Category: string(j.anchor.Category),
		Error:    errMsg,
		TookMS:   tookMS,
	}); err != nil && err != storage.ErrDisabled {
		s.log.Debug("audit append failed", logx.Err(err))
	}

	switch outcome {
	case outcomeSent:
		s.publish(eventbus.TypeDispatchSent, j, "")
	case outcomeFailedTransient, outcomeFailedPermanent:
		s.publish(eventbus.TypeDispatchFailed, j, errMsg)
	}
}

func (s *Service) publish(eventType string, j job, errMsg string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: eventType,
		Data: DispatchEvent{
			UserID:   j.anchor.UserID,
			Key:      j.anchor.DedupKey(),
			Category: j.anchor.Category,
			At:       time.Now(),
			Error:    errMsg,
		},
	})
}
