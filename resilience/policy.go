package resilience

import (
	"context"

	"github.com/kbukum/sonify/errors"
)

// Policy is the guard each sidecar provider puts around its HTTP calls.
type Policy struct {
	breaker *CircuitBreaker
	retry   RetryConfig
}

// NewPolicy creates a Policy for the named sidecar. Only CAPABILITY_UNAVAILABLE
// and EXTERNAL_SERVICE_ERROR failures count against the breaker, so a rejected
// credential or a bad request never opens it.
func NewPolicy(name string, retry RetryConfig) *Policy {
	cfg := DefaultCircuitBreakerConfig(name)
	cfg.IsFailure = IsOutage
	return &Policy{breaker: NewCircuitBreaker(cfg), retry: retry.withDefaults()}
}

// IsOutage reports whether err means the sidecar is down or misbehaving.
func IsOutage(err error) bool {
	return errors.HasCode(err, errors.ErrCodeCapabilityUnavailable) ||
		errors.HasCode(err, errors.ErrCodeExternalService)
}

// Do runs fn under the breaker, retrying retryable failures. While the
// breaker is open it returns ErrCircuitOpen without calling fn.
func (p *Policy) Do(ctx context.Context, fn func() error) error {
	return RetryFunc(ctx, p.retry, func() error {
		return p.breaker.Execute(fn)
	})
}

// State returns the breaker state.
func (p *Policy) State() State { return p.breaker.State() }
