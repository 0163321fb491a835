package dispatch

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"pulsebot/internal/eventbus"
	"pulsebot/internal/gateway/messaging"
	"pulsebot/internal/ledger"
	"pulsebot/internal/storage"
	"pulsebot/pkg/logx"
)

func New(cfg Config, store storage.Store, led *ledger.Ledger, gw messaging.Gateway, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:     log,
		store:   store,
		ledger:  led,
		gateway: gw,
		bus:     bus,
	}
	s.applyLocked(cfg)
	return s
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	oldInterval := s.cfg.Interval
	s.applyLocked(cfg)
	running := s.queue != nil
	restart := running && (oldTZ != strings.TrimSpace(s.cfg.Timezone) || oldInterval != s.cfg.Interval)
	if restart {
		s.restartCronLocked()
	}
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.loc = s.loadLocationLocked()
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid dispatch timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		// already running
		s.mu.Unlock()
		return
	}
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	if s.store == nil || s.ledger == nil || s.gateway == nil {
		s.log.Warn("dispatch disabled: missing store, ledger or gateway")
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.stopDone = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	workers := s.cfg.Workers
	s.startCronLocked()
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		i := i
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in dispatch worker", logx.Int("worker", i), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			s.workerLoop(i)
		}()
	}
	s.log.Info("dispatch started", logx.Int("workers", workers), logx.Duration("interval", s.cfg.Interval), logx.String("tz", s.loc.String()))
}

// startCronLocked wires the periodic driver: the tick that feeds due anchors
// into the queue, and a nightly prune of aged terminal ledger rows.
func (s *Service) startCronLocked() {
	c := cron.New(cron.WithLocation(s.loc))
	c.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		s.Tick(ctx, time.Now())
	}))
	_, _ = c.AddFunc("0 3 * * *", func() {
		s.mu.Lock()
		ctx := s.runCtx
		retention := s.cfg.Retention
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		n, err := s.ledger.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			s.log.Warn("claim prune failed", logx.Err(err))
			return
		}
		if n > 0 {
			s.log.Info("pruned terminal claims", logx.Int64("removed", n))
		}
	})
	c.Start()
	s.c = c
}

func (s *Service) restartCronLocked() {
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	s.startCronLocked()
}

// Stop halts intake, drains the queue, and waits for workers best-effort
// until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	done := s.stopDone
	cancel := s.runCancel
	c := s.c
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	// Cron is stopped and intake is off; nothing can enqueue anymore.
	close(q)

	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Give up on a clean drain; cut in-flight sends loose.
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	s.queue = nil
	s.stopDone = nil
	s.runCtx = nil
	s.runCancel = nil
	s.mu.Unlock()
	s.log.Info("dispatch stopped")
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Timezone: s.loc.String(),
		Workers:  s.cfg.Workers,
	}
	if s.queue != nil {
		snap.QueueLen = len(s.queue)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) appendHistory(item HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > 200 {
		s.history = s.history[len(s.history)-200:]
	}
	s.hmu.Unlock()
}
