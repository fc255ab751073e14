// Package node assembles a mesh node from configuration and owns its
// lifecycle.
//
// Components start in this order and stop in reverse:
//
//	observability, redis, kafka-producer, grpc-server, generator,
//	http-server, consul-registration, prober, rejoiner
//
// redis, kafka-producer and consul-registration exist only when configured.
// generator is registered for the built-in Ollama adapter, and rejoiner
// only when the node has seeds to rejoin through.
//
// Start bootstraps into the mesh once every component is up; the gRPC
// health service reports NOT_SERVING from the moment Stop begins.
package node
