package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"pulsebot/internal/cadence"
	"pulsebot/internal/eventbus"
	"pulsebot/internal/gateway/messaging"
	"pulsebot/internal/ledger"
	"pulsebot/internal/storage"
	"pulsebot/pkg/logx"
)

// Config controls the dispatch service.
type Config struct {
	Enabled     bool
	Interval    time.Duration // driver tick, default 1m
	Workers     int
	QueueSize   int
	ClaimTTL    time.Duration
	MaxAttempts int
	RatePerSec  int           // outbound send rate limit
	Retention   time.Duration // terminal claim rows kept this long, default 7d
	Timezone    string        // IANA TZ used when a user has none stored
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = ledger.DefaultClaimTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = ledger.DefaultMaxAttempts
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
	return c
}

// job is one due anchor handed to the worker pool.
type job struct {
	settings storage.UserSettings
	anchor   cadence.FireAnchor
}

// Outcome labels for history/audit entries.
const (
	outcomeSent            = "sent"
	outcomeFailedTransient = "failed_transient"
	outcomeFailedPermanent = "failed_permanent"
	outcomeClaimLost       = "claim_lost"
)

type HistoryItem struct {
	At      time.Time
	UserID  int64
	Key     string
	Outcome string
	Error   string
}

type Snapshot struct {
	Enabled  bool
	Timezone string
	Workers  int
	QueueLen int
	History  []HistoryItem
}

// DispatchEvent is the payload carried on the event bus.
type DispatchEvent struct {
	UserID   int64
	Key      string
	Category cadence.Category
	At       time.Time
	Error    string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	store   storage.Store
	ledger  *ledger.Ledger
	gateway messaging.Gateway
	bus     eventbus.Bus
	limiter *rate.Limiter

	c         *cron.Cron
	queue     chan job
	accepting bool
	stopDone  chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}
