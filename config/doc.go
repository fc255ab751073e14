// Package config loads node and tool configuration with Viper.
//
// Values come from an optional config.yml, then a .env file, then the
// process environment. Environment variable names map onto mapstructure
// keys by lower-casing them, so PEER_NODES fills `peer_nodes` and
// LOGGING_LEVEL fills `logging.level`.
//
//	var cfg config.MeshConfig
//	if err := config.Load("meshnode", &cfg); err != nil { ... }
//	cfg.ApplyDefaults()
package config
