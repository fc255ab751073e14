// Package resilience provides bounded retry loops.
//
//   - Retry runs an operation a fixed number of times with exponential backoff.
//   - Supervise keeps retrying until the operation succeeds or the context
//     is cancelled, never waiting longer than the configured maximum.
//
// Waits use the clock attached to the context (github.com/tilinna/clock),
// so tests can drive them with a mock clock.
package resilience
