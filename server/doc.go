// Package server provides the node's HTTP server: a Gin engine mounted on a
// ServeMux behind h2c, wrapped in standard net/http middleware.
//
//	srv := server.New(cfg, log)
//	srv.ApplyMiddleware(metrics)
//	srv.GinEngine().GET("/health", endpoint.Health(nil))
//	reg.Register(srv)
//
// Mesh routes live in the endpoint subpackage.
package server
