// Package resilience guards calls to the transcription and diarization
// sidecars.
//
// A Policy pairs a CircuitBreaker with Retry. Retry repeats calls that failed
// with a retryable AppError (a 5xx from the sidecar) using exponential
// backoff. The breaker counts sidecar outages and, once open, fails the
// remaining chunks of a run immediately instead of waiting on a dead
// endpoint for each one:
//
//	policy := resilience.NewPolicy("whisper", resilience.DefaultRetryConfig())
//	err := policy.Do(ctx, func() error {
//	    resp, err = client.Do(req)
//	    return err
//	})
package resilience
