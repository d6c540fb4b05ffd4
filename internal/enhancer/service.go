package enhancer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds one enhancement attempt.
const DefaultTimeout = 10 * time.Second

// Outcome labels how an Enhance call ended.
const (
	OutcomeApplied   = "applied"
	OutcomeUnchanged = "unchanged"
	OutcomeFallback  = "fallback"
)

// Result is the outcome of one enhancement.
type Result struct {
	Original string   `json:"original_query"`
	Enhanced string   `json:"enhanced_query"`
	Strategy Strategy `json:"strategy_used"`
	Applied  bool     `json:"enhancement_applied"`
}

// binding pairs a strategy with its enhancer. It is immutable once published.
type binding struct {
	strategy Strategy
	enhancer Enhancer
}

// Service owns the active enhancement strategy.
//
// The binding is swapped atomically by Switch. Enhance reads it once at the
// start of a call, so a concurrent Switch never affects a call in flight.
type Service struct {
	builder   Builder
	current   atomic.Pointer[binding]
	timeout   time.Duration
	logger    *slog.Logger
	onOutcome func(Strategy, string)
}

// ServiceOption is a functional option for configuring Service.
type ServiceOption func(*Service)

// WithTimeout sets the per-attempt deadline.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithOutcomeHook registers a callback receiving the strategy and outcome
// label of every Enhance call.
func WithOutcomeHook(fn func(Strategy, string)) ServiceOption {
	return func(s *Service) {
		s.onOutcome = fn
	}
}

// NewService creates a Service with initial as the active strategy.
func NewService(ctx context.Context, builder Builder, initial Strategy, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		builder: builder,
		timeout: DefaultTimeout,
		logger:  slog.Default().With("component", "enhancer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Switch(ctx, initial); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the active strategy.
func (s *Service) Current() Strategy {
	return s.current.Load().strategy
}

// Switch validates strategy, builds its enhancer and publishes it.
// On error the previous strategy stays active.
func (s *Service) Switch(ctx context.Context, strategy Strategy) error {
	b, err := s.build(ctx, strategy)
	if err != nil {
		return err
	}
	prev := s.current.Swap(b)
	if prev != nil {
		s.logger.Info("enhancement strategy switched", "from", prev.strategy, "to", strategy)
	}
	return nil
}

func (s *Service) build(ctx context.Context, strategy Strategy) (*binding, error) {
	strategy, err := ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}
	e, err := s.builder.Build(ctx, strategy)
	if err != nil {
		return nil, fmt.Errorf("building %s enhancer: %w", strategy, err)
	}
	return &binding{strategy: strategy, enhancer: e}, nil
}

// Enhance rewrites query with the active strategy. It never fails; any
// backend problem yields the original query.
func (s *Service) Enhance(ctx context.Context, query string, qctx map[string]any) Result {
	return s.run(ctx, s.current.Load(), query, qctx)
}

// Try runs one enhancement with strategy without changing the active one.
func (s *Service) Try(ctx context.Context, strategy Strategy, query string) (Result, error) {
	b, err := s.build(ctx, strategy)
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, b, query, nil), nil
}

func (s *Service) run(ctx context.Context, b *binding, query string, qctx map[string]any) Result {
	res := Result{Original: query, Enhanced: query, Strategy: b.strategy}
	if b.strategy == None {
		s.observe(b.strategy, OutcomeUnchanged)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := b.enhancer.Enhance(ctx, query, qctx)
	if err == nil {
		out = Clean(out)
		if out == "" {
			err = ErrEmptyRewrite
		}
	}
	if err != nil {
		s.logger.Warn("query enhancement failed, using original query",
			slog.String("strategy", string(b.strategy)),
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		s.observe(b.strategy, OutcomeFallback)
		return res
	}

	res.Enhanced = out
	res.Applied = out != query
	if res.Applied {
		s.observe(b.strategy, OutcomeApplied)
	} else {
		s.observe(b.strategy, OutcomeUnchanged)
	}
	s.logger.Debug("query enhanced",
		slog.String("strategy", string(b.strategy)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return res
}

func (s *Service) observe(strategy Strategy, outcome string) {
	if s.onOutcome != nil {
		s.onOutcome(strategy, outcome)
	}
}
