// Package refresh decides when a read should cause a new capture.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/warka/warka/internal/frame"
	"github.com/warka/warka/internal/metrics"
)

// Policy selects how reads keep the frame fresh.
type Policy string

const (
	// PolicyTTL starts a background capture when the frame is older than TTL.
	PolicyTTL Policy = "ttl"
	// PolicyRandom runs a blocking capture on one read in three.
	PolicyRandom Policy = "random"
	// PolicyOff never captures from reads.
	PolicyOff Policy = "off"
)

// Action is what BeforeRead did.
type Action string

// Actions reported by BeforeRead.
const (
	ActionSkip       Action = "skip"
	ActionSync       Action = "sync"
	ActionBackground Action = "background"
	ActionPending    Action = "pending"
	ActionThrottled  Action = "throttled"
)

// Capturer runs one capture and commits it.
type Capturer interface {
	Capture(ctx context.Context) (*frame.Frame, error)
}

// Source yields the current frame.
type Source interface {
	Current() (*frame.Frame, error)
}

// Config tunes the scheduler.
type Config struct {
	Policy Policy
	// TTL is the age after which PolicyTTL considers the frame stale.
	TTL time.Duration
	// MinInterval is the minimum spacing between background triggers.
	MinInterval time.Duration
	// Interval, when positive, captures on a ticker independent of reads.
	Interval time.Duration
}

// Scheduler implements the refresh policies.
type Scheduler struct {
	cfg      Config
	capturer Capturer
	source   Source
	logger   *zap.Logger

	limiter *rate.Limiter
	pending atomic.Bool
	wg      sync.WaitGroup

	intn  func(n int) int
	clock func() time.Time
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithRand replaces the uniform draw used by PolicyRandom.
func WithRand(intn func(n int) int) Option {
	return func(s *Scheduler) { s.intn = intn }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// New validates cfg and returns a Scheduler.
func New(cfg Config, capturer Capturer, source Source, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	switch cfg.Policy {
	case "":
		cfg.Policy = PolicyTTL
	case PolicyTTL, PolicyRandom, PolicyOff:
	default:
		return nil, fmt.Errorf("unknown refresh policy %q", cfg.Policy)
	}
	if cfg.Policy == PolicyTTL && cfg.TTL <= 0 {
		return nil, fmt.Errorf("refresh ttl must be positive, got %v", cfg.TTL)
	}
	if capturer == nil || source == nil {
		return nil, errors.New("capturer and source are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	s := &Scheduler{
		cfg:      cfg,
		capturer: capturer,
		source:   source,
		logger:   logger,
		limiter:  rate.NewLimiter(limit, 1),
		intn:     rand.IntN,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy returns the active policy.
func (s *Scheduler) Policy() Policy { return s.cfg.Policy }

// BeforeRead is called ahead of every window read. Capture failures are
// logged and never reach the reader; the previous frame keeps serving.
func (s *Scheduler) BeforeRead(ctx context.Context) Action {
	action := s.decide(ctx)
	metrics.ObserveRefresh(string(s.cfg.Policy), string(action))
	return action
}

func (s *Scheduler) decide(ctx context.Context) Action {
	switch s.cfg.Policy {
	case PolicyRandom:
		if s.intn(3) != 0 {
			return ActionSkip
		}
		if _, err := s.capturer.Capture(ctx); err != nil {
			s.logger.Warn("refresh capture failed", zap.Error(err))
		}
		return ActionSync
	case PolicyTTL:
		if !s.stale() {
			return ActionSkip
		}
		return s.trigger(ctx)
	default:
		return ActionSkip
	}
}

func (s *Scheduler) stale() bool {
	f, err := s.source.Current()
	if err != nil {
		return true
	}
	return s.clock().Sub(f.Meta().CapturedAt) >= s.cfg.TTL
}

// trigger starts a background capture unless one is already pending or the
// limiter refuses.
func (s *Scheduler) trigger(ctx context.Context) Action {
	if !s.pending.CompareAndSwap(false, true) {
		return ActionPending
	}
	if !s.limiter.Allow() {
		s.pending.Store(false)
		return ActionThrottled
	}
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.pending.Store(false)
		if _, err := s.capturer.Capture(bg); err != nil {
			s.logger.Warn("background refresh failed", zap.Error(err))
		}
	}()
	return ActionBackground
}

// Prime captures once synchronously so the first reads have a frame.
func (s *Scheduler) Prime(ctx context.Context) error {
	if _, err := s.capturer.Capture(ctx); err != nil {
		return fmt.Errorf("prime frame: %w", err)
	}
	return nil
}

// Run captures every Interval until ctx is done. With no interval it only
// waits for ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.capturer.Capture(ctx); err != nil {
				s.logger.Warn("scheduled capture failed", zap.Error(err))
			}
		}
	}
}

// Wait blocks until background captures started by BeforeRead finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
