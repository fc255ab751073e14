// Package httpclient is the HTTP client nodes and mesh clients use to talk
// to each other and to the generation backend.
//
// Non-2xx responses are returned together with a typed *Error, so callers
// can both classify the failure and pass the peer's body through:
//
//	resp, err := client.Do(ctx, httpclient.Request{
//	    Method: http.MethodPost,
//	    Path:   "http://node2:8000/generate",
//	    Body:   payload,
//	})
//
// The request ID in ctx, if any, is sent as X-Request-ID and the trace
// context is propagated with the global OpenTelemetry propagator.
package httpclient
