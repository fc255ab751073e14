// Package redis wraps go-redis for the shared peer registry backend.
//
// The client exposes only the set operations the registry needs plus Ping.
// Component ties the connection to the node lifecycle: Start verifies the
// server is reachable and Stop closes the pool.
package redis
