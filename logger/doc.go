// Package logger provides structured logging for infermesh nodes and tools
// on top of zerolog.
//
// Loggers carry the service name and may be scoped to a component:
//
//	log := logger.New(&cfg, "meshnode").WithComponent("prober")
//	log.Info("peer evicted", logger.Fields(logger.FieldPeer, addr))
package logger
