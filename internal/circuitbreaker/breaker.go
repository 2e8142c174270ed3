// Package circuitbreaker tracks per-endpoint health as open/closed/half-open
// skip hints for the Model Registry's endpoint selector. It does not wrap
// calls or retries itself (that composition lives in retry/) — per
// spec.md §9's Open Question, only endpoint-skipping hints are in scope,
// not a full breaker state machine wrapping adapter invocation. Grounded on
// the teacher's llm/circuitbreaker/breaker.go, trimmed to the state machine
// and its transition triggers.
package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State mirrors the teacher's three-state breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Config tunes the hint transitions.
type Config struct {
	Threshold    int
	ResetTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Threshold: 5, ResetTimeout: 60 * time.Second}
}

type endpointState struct {
	state           State
	failureCount    int
	openedAt        time.Time
	halfOpenProbing bool
}

// Registry keeps one breaker state per endpoint name. It is consulted, not
// mutated, by traffic beyond the RecordSuccess/RecordFailure calls the
// Orchestrator makes after an adapter invocation completes (spec §4.2).
type Registry struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	state map[string]*endpointState
}

func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{cfg: cfg, logger: logger, state: map[string]*endpointState{}}
}

func (r *Registry) entry(name string) *endpointState {
	es, ok := r.state[name]
	if !ok {
		es = &endpointState{state: StateClosed}
		r.state[name] = es
	}
	return es
}

// Skip reports whether endpoint should be skipped by the selector right
// now: open breakers are skipped unless their reset timeout has elapsed,
// in which case they transition to half-open and are allowed through as a
// probe.
func (r *Registry) Skip(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	es := r.entry(name)
	if es.state != StateOpen {
		return false
	}
	if time.Since(es.openedAt) >= r.cfg.ResetTimeout && !es.halfOpenProbing {
		es.state = StateHalfOpen
		es.halfOpenProbing = true
		r.logger.Info("circuit half-open probe", zap.String("endpoint", name))
		return false
	}
	return true
}

// OpenedAt returns the time an endpoint's breaker opened (zero if closed),
// used to pick the "oldest-opened" probe candidate when every endpoint is
// skipped (spec §4.2).
func (r *Registry) OpenedAt(name string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entry(name).openedAt
}

func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	es := r.entry(name)
	if es.state != StateClosed {
		r.logger.Info("circuit closed", zap.String("endpoint", name))
	}
	es.state = StateClosed
	es.failureCount = 0
	es.halfOpenProbing = false
}

func (r *Registry) RecordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	es := r.entry(name)
	es.failureCount++
	if es.state == StateHalfOpen || es.failureCount >= r.cfg.Threshold {
		if es.state != StateOpen {
			r.logger.Warn("circuit opened", zap.String("endpoint", name), zap.Int("failures", es.failureCount))
		}
		es.state = StateOpen
		es.openedAt = time.Now()
		es.halfOpenProbing = false
	}
}

func (r *Registry) State(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entry(name).state
}
