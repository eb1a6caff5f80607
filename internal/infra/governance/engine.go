// Package governance implements the Trail ledger engine: token registries,
// the ballot state machine, weighted vote casting, consistency repair, and
// the worker incentive ledger.
//
// Every exported action is one atomic invocation. It runs inside a single
// Store.Update, so either all of its writes commit or none do. Actions are
// serialized by the engine mutex, traced, and their committed effects are
// published as events afterwards.
//
// Tallies are never recomputed from scratch. Every vote change applies the
// difference between a receipt's previous and next weights to the ballot, so
// the invariant "ballot option tally = sum of receipt weights" holds after
// every successful action.
package governance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tutu-network/trail/internal/domain"
	"github.com/tutu-network/trail/internal/infra/observability"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// EngineConfig tunes runtime behavior that is not part of the ledger record.
type EngineConfig struct {
	// MaxBatch caps the count a single rebalance or cleanup may process.
	MaxBatch int

	// PublishTimeout bounds each event delivery after commit.
	PublishTimeout time.Duration
}

// DefaultEngineConfig returns production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxBatch:       100,
		PublishTimeout: 2 * time.Second,
	}
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Engine runs ledger actions against a Store.
type Engine struct {
	mu        sync.Mutex
	cfg       EngineConfig
	store     domain.Store
	tracer    *observability.Tracer
	publisher domain.EventPublisher
	now       func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTracer records a span per action.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithPublisher delivers committed events.
func WithPublisher(p domain.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over store.
func NewEngine(cfg EngineConfig, store domain.Store, opts ...Option) *Engine {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultEngineConfig().MaxBatch
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultEngineConfig().PublishTimeout
	}
	e := &Engine{
		cfg:   cfg,
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ─── Invocation ─────────────────────────────────────────────────────────────

// action is the body of one invocation. It returns the events to publish
// once the invocation has committed.
type action func(tx domain.Tx, now time.Time) ([]domain.Event, error)

// invoke runs fn as one atomic, serialized, traced invocation.
func (e *Engine) invoke(ctx context.Context, name string, attrs map[string]string, fn action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	span := e.tracer.StartSpan(ctx, name, attrs)
	now := e.now()

	var events []domain.Event
	err := e.store.Update(ctx, func(tx domain.Tx) error {
		var err error
		events, err = fn(tx, now)
		return err
	})
	e.tracer.EndSpan(span, err)
	if err != nil {
		if domain.Kind(err) == domain.KindInternal {
			log.Printf("[governance] %s failed: %v", name, err)
		}
		return err
	}

	for _, ev := range events {
		ev.At = now
		recordMetrics(ev)
		e.publish(ctx, ev)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, ev domain.Event) {
	if e.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PublishTimeout)
	defer cancel()
	if err := e.publisher.Publish(ctx, ev); err != nil {
		log.Printf("[governance] publish %s: %v", ev.Type, err)
	}
}

func recordMetrics(ev domain.Event) {
	switch ev.Type {
	case domain.EventBallotReady:
		observability.BallotsOpen.Inc()
		observability.BallotTransitions.WithLabelValues(string(domain.BallotVoting)).Inc()
	case domain.EventBallotClosed:
		observability.BallotsOpen.Dec()
		observability.BallotTransitions.WithLabelValues(string(domain.BallotClosed)).Inc()
	case domain.EventBallotCancelled:
		observability.BallotsOpen.Dec()
		observability.BallotTransitions.WithLabelValues(string(domain.BallotCancelled)).Inc()
	case domain.EventVoteCast:
		observability.VotesCast.WithLabelValues(ev.Data["method"]).Inc()
	case domain.EventRebalanced:
		observability.RebalancedVolume.WithLabelValues(ev.Symbol).Add(float64(ev.Amount))
		observability.RebalancedReceipts.WithLabelValues(ev.Symbol).Add(float64(ev.Count))
	case domain.EventCleaned:
		observability.CleanedReceipts.Add(float64(ev.Count))
	case domain.EventWorkerPaid:
		observability.WorkerPayments.WithLabelValues(ev.Symbol).Add(float64(ev.Amount))
	}
}

// view runs a read-only query. Queries do not take the engine mutex.
func (e *Engine) view(ctx context.Context, fn func(tx domain.Tx) error) error {
	return e.store.View(ctx, fn)
}

// ─── Config Actions ─────────────────────────────────────────────────────────

// SetConfig replaces the ledger config singleton.
func (e *Engine) SetConfig(ctx context.Context, cfg domain.LedgerConfig) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	return e.invoke(ctx, "setconfig", nil, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		return nil, tx.PutConfig(cfg)
	})
}

// Config returns the stored config, or the default when none was set.
func (e *Engine) Config(ctx context.Context) (domain.LedgerConfig, error) {
	var cfg domain.LedgerConfig
	err := e.view(ctx, func(tx domain.Tx) error {
		var err error
		cfg, err = tx.Config()
		return err
	})
	return cfg, err
}

func validateConfig(cfg domain.LedgerConfig) error {
	switch {
	case cfg.MinBallotLength < 0 || cfg.BallotCooldown < 0:
		return errorf(domain.ErrPolicyViolation, "durations must be non-negative")
	case cfg.MaxVoteReceipts <= 0:
		return errorf(domain.ErrPolicyViolation, "max vote receipts must be positive")
	case cfg.Payment.RatePerVolumeBps < 0 || cfg.Payment.RatePerCount < 0:
		return errorf(domain.ErrPolicyViolation, "payment rates must be non-negative")
	case cfg.BallotFee.Amount < 0 || cfg.RegistryFee.Amount < 0 || cfg.ArchivalBaseFee.Amount < 0:
		return errorf(domain.ErrArithmetic, "fees must be non-negative")
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// errorf wraps kind with a formatted message.
func errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// checkQty verifies qty is a positive amount of reg's token.
func checkQty(reg *domain.Registry, qty domain.Asset) error {
	if qty.Symbol != reg.Symbol() {
		return errorf(domain.ErrPolicyViolation, "quantity %s does not match registry %s", qty, reg.Symbol())
	}
	if qty.Amount < 0 {
		return errorf(domain.ErrArithmetic, "quantity %s is negative", qty)
	}
	if qty.Amount == 0 {
		return errorf(domain.ErrPolicyViolation, "quantity must be positive")
	}
	return nil
}

// requireManager fails unless caller manages reg.
func requireManager(reg *domain.Registry, caller string) error {
	if caller != reg.Manager {
		return errorf(domain.ErrPolicyViolation, "%s is not the manager of %s", caller, reg.Symbol().Code)
	}
	return nil
}

// requireSetting fails unless the named registry setting is on.
func requireSetting(reg *domain.Registry, setting string) error {
	if !reg.Setting(setting) {
		return errorf(domain.ErrPolicyViolation, "registry %s is not %s", reg.Symbol().Code, setting)
	}
	return nil
}
