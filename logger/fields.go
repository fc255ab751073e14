package logger

import "time"

// Field keys shared by every component.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldPeer      = "peer"
	FieldSelf      = "self"
	FieldSeed      = "seed"
	FieldTarget    = "target"
	FieldEndpoint  = "endpoint"
	FieldStatus    = "status"
	FieldCount     = "count"
	FieldAttempt   = "attempt"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
)

// Fields builds a field map from alternating key-value pairs.
// Non-string keys and a trailing odd value are ignored.
//
//	logger.Info("joined", logger.Fields(logger.FieldSeed, seed, logger.FieldCount, n))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// DurationFields records how long an operation took.
func DurationFields(d time.Duration, kvs ...interface{}) map[string]interface{} {
	m := Fields(kvs...)
	m[FieldDuration] = d.Milliseconds()
	return m
}
