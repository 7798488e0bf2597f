package varnish

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pior/varnish/vcli"
)

// CircuitBreakerState is the state of a circuit breaker.
type CircuitBreakerState = gobreaker.State

// Circuit breaker states
const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// CircuitBreaker wraps command execution.
// *gobreaker.CircuitBreaker[*vcli.Response] implements it.
type CircuitBreaker interface {
	Execute(req func() (*vcli.Response, error)) (*vcli.Response, error)
	State() gobreaker.State
}

var _ CircuitBreaker = (*gobreaker.CircuitBreaker[*vcli.Response])(nil)

// NewCircuitBreakerConfig returns a function that creates a circuit breaker
// for a server, suitable for Config.NewCircuitBreaker.
//
// Only connection failures count against the breaker: a command refused by
// the daemon (CommandFailed) proves the daemon is reachable.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(string) CircuitBreaker {
	return func(server string) CircuitBreaker {
		settings := gobreaker.Settings{
			Name:         server,
			MaxRequests:  maxRequests,
			Interval:     interval,
			Timeout:      timeout,
			IsSuccessful: IsCircuitSuccess,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}
		return gobreaker.NewCircuitBreaker[*vcli.Response](settings)
	}
}

// IsCircuitSuccess classifies a command outcome for a circuit breaker:
// nil and CommandFailed are successes, everything else is a failure.
func IsCircuitSuccess(err error) bool {
	return err == nil || errors.Is(err, CommandFailed)
}
