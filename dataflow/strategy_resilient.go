package dataflow

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ResilientStrategy wraps an inner ExecutionStrategy with per-item retry,
// an optional circuit breaker, and dead-letter routing on final failure — a
// decorator over a node's processing body, built so it composes with both
// Sequential and Parallel.
type ResilientStrategy struct {
	Inner   ExecutionStrategy
	Retry   RetryOptions
	Handler erasedNodeErrorHandler
	Sink     DeadLetterSink
	NodeID   string
	Observer Observer
	Metrics  SchedulerMetrics

	breaker *CircuitBreaker
	rng     *rand.Rand
}

// NewResilientStrategy wraps inner with retry/backoff, an optional circuit
// breaker (from retry.CircuitBreaker), and dead-letter routing through
// sink. handler may be nil, in which case every failure is DecisionFail at
// once, with no retry. metrics may be nil.
func NewResilientStrategy(inner ExecutionStrategy, retry RetryOptions, handler erasedNodeErrorHandler, sink DeadLetterSink, nodeID string, observer Observer, metrics SchedulerMetrics) *ResilientStrategy {
	if observer == nil {
		observer = NoopObserver{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &ResilientStrategy{
		Inner:    inner,
		Retry:    retry,
		Handler:  handler,
		Sink:     sink,
		NodeID:   nodeID,
		Observer: observer,
		Metrics:  metrics,
		breaker:  NewCircuitBreaker(retry.CircuitBreaker),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

func (s *ResilientStrategy) Run(ctx context.Context, next itemSource, emit itemSink, body ItemProcessor) error {
	var consecutiveFailures int

	resilientBody := func(ctx context.Context, item any) ([]any, error) {
		var lastErr error
		var delay time.Duration
		for attempt := 0; ; attempt++ {
			if !s.breaker.AllowRequest() {
				lastErr = ErrCircuitOpen
				break
			}
			outputs, err := body(ctx, item)
			if err == nil {
				s.breaker.RecordSuccess()
				consecutiveFailures = 0
				return outputs, nil
			}
			s.breaker.RecordFailure()
			lastErr = err
			consecutiveFailures++

			decision := DecisionFail
			if s.Handler != nil {
				decision = s.Handler.handleErased(ctx, item, err)
			}
			if s.Retry.MaxSequentialFailures > 0 && consecutiveFailures >= s.Retry.MaxSequentialFailures {
				decision = DecisionFail
			}
			attemptsExhausted := decision == DecisionRetry && attempt >= s.Retry.MaxItemRetries
			if attemptsExhausted {
				decision = DecisionFail
			}

			switch decision {
			case DecisionSkip:
				return nil, nil
			case DecisionDeadLetter:
				return nil, s.deadLetter(ctx, item, err)
			case DecisionRetry:
				s.Observer.NodeRetried(s.NodeID, attempt+1, err)
				s.Metrics.IncrementRetries(RunID(ctx), s.NodeID, errorTypeName(err))
				delay = computeBackoff(attempt, &s.Retry, delay, s.rng)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			default: // DecisionFail
				cause := lastErr
				if attemptsExhausted {
					cause = errors.Join(ErrMaxAttemptsExceeded, lastErr)
				}
				return nil, &RunFailure{
					NodeID:        s.NodeID,
					Kind:          ItemProcessingError,
					Attempts:      attempt + 1,
					Cause:         cause,
					CorrelationID: CorrelationID(ctx),
				}
			}
		}
		return nil, lastErr
	}

	return s.Inner.Run(ctx, next, emit, resilientBody)
}

func (s *ResilientStrategy) deadLetter(ctx context.Context, item any, cause error) error {
	if s.Sink == nil {
		return ErrDeadLetterUnavailable
	}
	envelope := DeadLetterEnvelope{
		NodeID:           s.NodeID,
		OriginalItem:     item,
		ExceptionType:    errorTypeName(cause),
		ExceptionMessage: cause.Error(),
		Timestamp:        time.Now(),
		CorrelationID:    CorrelationID(ctx),
	}
	if err := s.Sink.Persist(ctx, envelope); err != nil {
		return &EngineError{Message: "dead-letter persist failed", Code: "DEAD_LETTER_FAILED", Kind: ResourceExhaustionError, Cause: err}
	}
	return nil
}

func errorTypeName(err error) string {
	switch err.(type) {
	case *EngineError:
		return "EngineError"
	case *RunFailure:
		return "RunFailure"
	default:
		return "error"
	}
}
