// Command meshnode runs one node of the inference mesh.
//
// Configuration comes from an optional config.yml, an optional .env file
// and the environment, in that order of precedence (environment wins):
//
//	PEER_NODES=node1:50051,node2:50051 SELF_ADDRESS=node3:50051 meshnode
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/kbukum/infermesh/config"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/node"
	"github.com/kbukum/infermesh/version"
)

const serviceName = "meshnode"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "meshnode:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	configFile := flags.String("config", "", "path to config.yml")
	envFile := flags.String("env-file", "", "path to a .env file")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintln(stdout, serviceName, version.Get())
		return nil
	}

	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if *envFile != "" {
		opts = append(opts, config.WithEnvFile(*envFile))
	}
	var cfg config.MeshConfig
	if err := config.Load(serviceName, &cfg, opts...); err != nil {
		return err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(&cfg.Logging, cfg.Name)
	logger.SetGlobal(log)
	log.Info("starting", logger.Fields(
		"version", version.Get().String(),
		logger.FieldSelf, cfg.SelfAddress,
		"seeds", cfg.Seeds(),
	))

	n, err := node.New(cfg, log)
	if err != nil {
		return err
	}
	return n.Run(ctx)
}
