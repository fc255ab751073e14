// Package errors defines the structured error type shared by every layer of
// a mesh node: machine-readable codes, HTTP status mapping and retryability.
package errors
