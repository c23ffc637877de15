package circuitbreaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/springcloudnative/edge-service/internal/config"
)

// ErrOpen is returned by Allow when the breaker short-circuits the call.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // normal operation, outcomes recorded
	StateOpen                  // failing, calls rejected without reaching downstream
	StateHalfOpen              // limited trial calls probe recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a failure-rate circuit breaker over a fixed-size sliding window
// of call outcomes. All state is guarded by a single mutex; breakers for
// different routes never contend with each other.
type Breaker struct {
	name string

	windowSize       int
	failureThreshold float64 // percent
	waitOpen         time.Duration
	halfOpenCalls    int

	mu         sync.Mutex
	state      State
	window     []bool // true = failure; ring of the last windowSize outcomes
	idx        int
	count      int
	failures   int
	openedAt   time.Time
	generation uint64 // bumped on every transition; stale outcomes are dropped

	// half-open trial bookkeeping
	trialIssued   int
	trialDone     int
	trialFailures int

	// metrics, atomic for lock-free snapshot reads
	totalCalls    atomic.Int64
	totalFailures atomic.Int64
	totalRejected atomic.Int64

	now func() time.Time // injectable clock for tests
}

// New creates a breaker for the given route/breaker name.
func New(name string, cfg config.CircuitBreakerConfig) *Breaker {
	windowSize := cfg.SlidingWindowSize
	if windowSize <= 0 {
		windowSize = 20
	}
	threshold := cfg.FailureRateThreshold
	if threshold <= 0 {
		threshold = 50
	}
	waitOpen := cfg.WaitDurationOpen
	if waitOpen <= 0 {
		waitOpen = 15 * time.Second
	}
	halfOpenCalls := cfg.PermittedCallsHalfOpen
	if halfOpenCalls <= 0 {
		halfOpenCalls = 5
	}

	return &Breaker{
		name:             name,
		windowSize:       windowSize,
		failureThreshold: threshold,
		waitOpen:         waitOpen,
		halfOpenCalls:    halfOpenCalls,
		state:            StateClosed,
		window:           make([]bool, windowSize),
		now:              time.Now,
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Allow asks for a permit. On success it returns a done callback that must
// be invoked exactly once with the call outcome (nil = success). When the
// breaker is open, ErrOpen is returned and no outcome is recorded: the
// rejection is a short-circuit, not a call.
func (b *Breaker) Allow() (done func(err error), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()

	switch b.state {
	case StateClosed:
		gen := b.generation
		return func(callErr error) { b.record(gen, callErr) }, nil

	case StateHalfOpen:
		if b.trialIssued >= b.halfOpenCalls {
			b.totalRejected.Add(1)
			return nil, ErrOpen
		}
		b.trialIssued++
		gen := b.generation
		return func(callErr error) { b.record(gen, callErr) }, nil

	default: // StateOpen
		b.totalRejected.Add(1)
		return nil, ErrOpen
	}
}

// refreshLocked applies the time-triggered OPEN -> HALF_OPEN transition.
func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.waitOpen {
		b.toHalfOpenLocked()
	}
}

func (b *Breaker) record(gen uint64, callErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls.Add(1)
	failure := callErr != nil
	if failure {
		b.totalFailures.Add(1)
	}

	// Outcome from before the last transition; the window it belongs to is
	// gone, so recording it would corrupt the current one.
	if gen != b.generation {
		return
	}

	switch b.state {
	case StateClosed:
		b.pushOutcomeLocked(failure)
		if b.count == b.windowSize && b.failureRateLocked() >= b.failureThreshold {
			b.toOpenLocked()
		}

	case StateHalfOpen:
		b.trialDone++
		if failure {
			b.trialFailures++
		}
		if b.trialDone < b.halfOpenCalls {
			return
		}
		trialRate := float64(b.trialFailures) / float64(b.trialDone) * 100
		if trialRate >= b.failureThreshold {
			b.toOpenLocked()
		} else {
			b.toClosedLocked()
		}
	}
}

func (b *Breaker) pushOutcomeLocked(failure bool) {
	if b.count == b.windowSize {
		// Ring is full: the slot being overwritten drops out of the stats.
		if b.window[b.idx] {
			b.failures--
		}
	} else {
		b.count++
	}
	b.window[b.idx] = failure
	if failure {
		b.failures++
	}
	b.idx = (b.idx + 1) % b.windowSize
}

func (b *Breaker) failureRateLocked() float64 {
	if b.count == 0 {
		return 0
	}
	return float64(b.failures) / float64(b.count) * 100
}

func (b *Breaker) toOpenLocked() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.generation++
}

func (b *Breaker) toHalfOpenLocked() {
	b.state = StateHalfOpen
	b.trialIssued = 0
	b.trialDone = 0
	b.trialFailures = 0
	b.generation++
}

func (b *Breaker) toClosedLocked() {
	b.state = StateClosed
	b.resetWindowLocked()
	b.generation++
}

func (b *Breaker) resetWindowLocked() {
	for i := range b.window {
		b.window[i] = false
	}
	b.idx = 0
	b.count = 0
	b.failures = 0
}

// State returns the current state, applying any due time-triggered
// transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Snapshot returns a point-in-time view of the breaker.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	b.refreshLocked()
	snap := Snapshot{
		Name:          b.name,
		State:         b.state.String(),
		WindowSize:    b.windowSize,
		WindowCount:   b.count,
		FailureRate:   b.failureRateLocked(),
		Threshold:     b.failureThreshold,
		TrialIssued:   b.trialIssued,
		TrialFailures: b.trialFailures,
	}
	b.mu.Unlock()

	snap.TotalCalls = b.totalCalls.Load()
	snap.TotalFailures = b.totalFailures.Load()
	snap.TotalRejected = b.totalRejected.Load()
	return snap
}

// Snapshot is a point-in-time view of a circuit breaker.
type Snapshot struct {
	Name          string  `json:"name"`
	State         string  `json:"state"`
	WindowSize    int     `json:"window_size"`
	WindowCount   int     `json:"window_count"`
	FailureRate   float64 `json:"failure_rate"`
	Threshold     float64 `json:"threshold"`
	TrialIssued   int     `json:"trial_issued,omitempty"`
	TrialFailures int     `json:"trial_failures,omitempty"`
	TotalCalls    int64   `json:"total_calls"`
	TotalFailures int64   `json:"total_failures"`
	TotalRejected int64   `json:"total_rejected"`
}
