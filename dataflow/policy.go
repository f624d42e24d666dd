package dataflow

import (
	"math/rand"
	"time"
)

// Jitter selects the backoff randomization strategy used between retries.
type Jitter int

const (
	// JitterNone applies no randomization; delay is exactly the exponential value.
	JitterNone Jitter = iota
	// JitterFull picks uniformly in [0, exponentialDelay].
	JitterFull
	// JitterEqual picks uniformly in [exponentialDelay/2, exponentialDelay].
	JitterEqual
	// JitterDecorrelated picks uniformly in [BackoffBase, previousDelay*3], per
	// the AWS "decorrelated jitter" formula; callers thread the previous delay
	// back in through computeBackoff's prevDelay argument.
	JitterDecorrelated
)

// RetryOptions bounds retry/restart behavior at every layer of the error
// model: per-item retries, per-node restarts, and the circuit breaker.
// Zero value means "no retries, no restarts".
type RetryOptions struct {
	// MaxItemRetries is the number of extra attempts after the first for a
	// single failing item under the Resilient strategy.
	MaxItemRetries int
	// MaxNodeRestartAttempts bounds RestartNode decisions from the pipeline handler.
	MaxNodeRestartAttempts int
	// MaxSequentialFailures trips independently of the circuit breaker: once
	// this many consecutive failed attempts (retries included) have occurred,
	// the handler's decision for the failure is converted to Fail.
	MaxSequentialFailures int
	// MaxMaterializedItems caps items buffered to support a node restart. Nil
	// means unbounded, which Validate rejects when the node's inbound pipe is
	// a single-pass stream rather than a replayable materialization.
	MaxMaterializedItems *int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// BackoffMultiplier multiplies the delay on each attempt; must be >= 1.
	BackoffMultiplier float64
	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration
	// JitterKind selects the randomization strategy.
	JitterKind Jitter
	// CircuitBreaker optionally trips after consecutive failures.
	CircuitBreaker *CircuitBreakerOptions
}

// CircuitBreakerOptions configures a per-node circuit breaker.
type CircuitBreakerOptions struct {
	// ConsecutiveFailureThreshold opens the breaker after this many failures in a row.
	ConsecutiveFailureThreshold int
	// CoolOff is how long the breaker stays Open before half-opening.
	CoolOff time.Duration
	// TrackingWindow is carried with the options, but CircuitBreaker does not
	// read it: consecutive failures count toward the threshold however far
	// apart they are, and only a success resets the streak.
	TrackingWindow time.Duration
}

// Validate rejects negative attempt/retry counts, a backoff multiplier under
// 1, a max backoff smaller than the base delay, and — when the node runs a
// single-pass stream under a resilient strategy — an unbounded
// MaxMaterializedItems, since restarting such a node cannot replay what
// already passed through.
func (r *RetryOptions) Validate(streamingUnderResilience bool) error {
	if r == nil {
		return nil
	}
	if r.MaxItemRetries < 0 || r.MaxNodeRestartAttempts < 0 || r.MaxSequentialFailures < 0 {
		return ErrInvalidRetryPolicy
	}
	if r.BackoffMultiplier != 0 && r.BackoffMultiplier < 1 {
		return ErrInvalidRetryPolicy
	}
	if r.MaxBackoff > 0 && r.BackoffBase > 0 && r.MaxBackoff < r.BackoffBase {
		return ErrInvalidRetryPolicy
	}
	if streamingUnderResilience && r.MaxMaterializedItems == nil {
		return &EngineError{
			Message: "resilience over a streaming pipe requires a bounded MaxMaterializedItems",
			Code:    "UNBOUNDED_MATERIALIZATION",
			Kind:    ConfigurationError,
		}
	}
	return nil
}

// computeBackoff returns the delay before the given retry attempt (0-based:
// 0 is the delay before the first retry). prevDelay is only consulted for
// JitterDecorrelated and may be zero on the first call.
func computeBackoff(attempt int, opts *RetryOptions, prevDelay time.Duration, rng *rand.Rand) time.Duration {
	base := opts.BackoffBase
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	mult := opts.BackoffMultiplier
	if mult < 1 {
		mult = 2
	}
	maxDelay := opts.MaxBackoff
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	exp := float64(base)
	for i := 0; i < attempt; i++ {
		exp *= mult
		if exp > float64(maxDelay) {
			exp = float64(maxDelay)
			break
		}
	}
	expDelay := time.Duration(exp)
	if expDelay > maxDelay {
		expDelay = maxDelay
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404 -- fallback only, not security sensitive
	}

	switch opts.JitterKind {
	case JitterNone:
		return expDelay
	case JitterFull:
		if expDelay <= 0 {
			return 0
		}
		return time.Duration(rng.Int63n(int64(expDelay) + 1))
	case JitterEqual:
		half := expDelay / 2
		if half <= 0 {
			return expDelay
		}
		return half + time.Duration(rng.Int63n(int64(expDelay-half)+1))
	case JitterDecorrelated:
		lo := int64(base)
		hi := int64(prevDelay) * 3
		if hi <= lo {
			hi = lo + 1
		}
		d := time.Duration(lo + rng.Int63n(hi-lo))
		if d > maxDelay {
			d = maxDelay
		}
		return d
	default:
		return expDelay
	}
}

// breakerState is the circuit breaker's internal three-state machine.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker is a per-node consecutive-failure tripwire attached to a
// Resilient strategy instance. Each node run owns its own instance; breakers
// are never shared across nodes or runs.
type CircuitBreaker struct {
	opts     CircuitBreakerOptions
	state    breakerState
	failures int
	openedAt time.Time
	nowFn    func() time.Time
}

// NewCircuitBreaker builds a breaker from opts. A nil opts pointer or a
// zero ConsecutiveFailureThreshold disables tripping (AllowRequest always
// returns true).
func NewCircuitBreaker(opts *CircuitBreakerOptions) *CircuitBreaker {
	cb := &CircuitBreaker{state: breakerClosed, nowFn: time.Now}
	if opts != nil {
		cb.opts = *opts
	}
	return cb
}

// AllowRequest reports whether a new item may be attempted. When the
// breaker is Open and CoolOff has elapsed, it transitions to HalfOpen and
// allows exactly one trial request through.
func (cb *CircuitBreaker) AllowRequest() bool {
	if cb.opts.ConsecutiveFailureThreshold <= 0 {
		return true
	}
	switch cb.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if cb.nowFn().Sub(cb.openedAt) >= cb.opts.CoolOff {
			cb.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess resets the failure streak and closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.failures = 0
	cb.state = breakerClosed
}

// RecordFailure increments the consecutive-failure streak and trips the
// breaker to Open once the threshold is reached (or immediately, from
// HalfOpen's trial request).
func (cb *CircuitBreaker) RecordFailure() {
	if cb.opts.ConsecutiveFailureThreshold <= 0 {
		return
	}
	if cb.state == breakerHalfOpen {
		cb.state = breakerOpen
		cb.openedAt = cb.nowFn()
		return
	}
	cb.failures++
	if cb.failures >= cb.opts.ConsecutiveFailureThreshold {
		cb.state = breakerOpen
		cb.openedAt = cb.nowFn()
	}
}

// State reports the current breaker state for observability/tests.
func (cb *CircuitBreaker) State() string {
	switch cb.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
