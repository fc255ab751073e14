// Package observability exports OpenTelemetry metrics and traces for a
// mesh node.
//
// Metrics holds the node's instruments (probes, evictions, mesh size,
// announcements, proxied requests and HTTP requests). Its methods are safe
// on a nil receiver, so components can take an optional *Metrics.
package observability
