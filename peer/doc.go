// Package peer holds the set of mesh peers a node currently believes to be
// reachable.
//
// Registry is the only shared mutable state in a node. Components receive
// it by injection; MemoryRegistry keeps the set in process, RedisRegistry
// keeps it in a Redis set so co-located processes share one view.
package peer
