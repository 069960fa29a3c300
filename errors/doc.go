// Package errors provides the structured error type shared by every sonify
// package.
//
// An AppError carries a machine-readable code, a human message, the HTTP
// status a host should answer with, and whether retrying can help. The codes
// mirror the pipeline's failure taxonomy: configuration mistakes fail fast,
// missing capabilities carry remediation text, external tool failures abort
// the current run, and cooperative cancellation is reported as CANCELED.
// Cache corruption never surfaces here; it is healed inside package cache.
package errors
