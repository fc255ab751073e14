// Command meshclient talks to the mesh through whichever gateway node is
// reachable, failing over between nodes.
//
//	meshclient --nodes http://node1:8000,http://node2:8000 nodes
//	meshclient health
//	meshclient generate --model mistral "Tell me a joke"
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kbukum/infermesh/config"
	"github.com/kbukum/infermesh/discovery"
	apperrors "github.com/kbukum/infermesh/errors"
	"github.com/kbukum/infermesh/generator"
	"github.com/kbukum/infermesh/httpclient"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/version"
)

const defaultNodes = "http://localhost:8000"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func usage(flags *pflag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "usage: meshclient [flags] nodes|health|generate <prompt>")
	flags.SetOutput(w)
	flags.PrintDefaults()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("meshclient", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	nodes := flags.String("nodes", envOr("MESH_NODES", defaultNodes), "comma-separated gateway URLs")
	timeout := flags.Duration("timeout", discovery.DefaultRequestTimeout, "per-attempt request timeout")
	model := flags.String("model", generator.DefaultModel, "model name")
	temperature := flags.Float64("temperature", generator.DefaultTemperature, "sampling temperature")
	maxTokens := flags.Int("max-tokens", generator.DefaultMaxNewTokens, "maximum new tokens")
	verbose := flags.BoolP("verbose", "v", false, "log failover decisions")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, "meshclient", version.Get())
		return 0
	}
	if flags.NArg() == 0 {
		usage(flags, stderr)
		return 2
	}

	log := logger.Nop()
	if *verbose {
		log = logger.NewWithWriter(stderr, &logger.Config{Level: "debug", Format: "console", NoColor: true}, "meshclient")
	}
	fo, err := discovery.New(config.SplitList(*nodes), discovery.Config{RequestTimeout: *timeout}, log)
	if err != nil {
		fmt.Fprintln(stderr, "meshclient:", err)
		return 1
	}

	var req httpclient.Request
	switch cmd := flags.Arg(0); cmd {
	case "nodes":
		req = httpclient.Request{Method: http.MethodGet, Path: "/nodes"}
	case "health":
		req = httpclient.Request{Method: http.MethodGet, Path: "/health"}
	case "generate":
		prompt := strings.Join(flags.Args()[1:], " ")
		if strings.TrimSpace(prompt) == "" {
			fmt.Fprintln(stderr, "meshclient: generate needs a prompt")
			return 2
		}
		req = httpclient.Request{Method: http.MethodPost, Path: "/proxy-inference", Body: generator.Request{
			Prompt:       prompt,
			Model:        *model,
			Temperature:  *temperature,
			MaxNewTokens: *maxTokens,
		}}
	default:
		fmt.Fprintf(stderr, "meshclient: unknown command %q\n", cmd)
		usage(flags, stderr)
		return 2
	}

	start := time.Now()
	resp, err := fo.Request(ctx, req)
	if err != nil {
		fmt.Fprintln(stderr, "meshclient:", describe(err, resp))
		return 1
	}
	if *verbose {
		fmt.Fprintf(stderr, "served by %s in %s\n", fo.Active(), time.Since(start).Round(time.Millisecond))
	}
	writeJSON(stdout, resp.Body)
	return 0
}

// describe prefers the gateway's own error body when there is one.
func describe(err error, resp *httpclient.Response) string {
	var herr *httpclient.Error
	if !errors.As(err, &herr) || resp == nil || len(resp.Body) == 0 {
		return err.Error()
	}
	if appErr, ok := apperrors.ParseResponse(resp.StatusCode, resp.Body); ok {
		return fmt.Sprintf("%d %s", resp.StatusCode, appErr.Error())
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, strings.TrimSpace(string(resp.Body)))
}

func writeJSON(w io.Writer, body []byte) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		fmt.Fprintln(w, string(body))
		return
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
