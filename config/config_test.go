package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool   { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestMeshConfig_DefaultsAreStandalone(t *testing.T) {
	var cfg MeshConfig
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if got := cfg.Seeds(); len(got) != 0 {
		t.Errorf("expected no seeds, got %v", got)
	}
	if cfg.SelfAddress != "localhost:50051" {
		t.Errorf("SelfAddress = %q", cfg.SelfAddress)
	}
	if cfg.ProbeInterval != 15*time.Second || cfg.ProbeTimeout != 2*time.Second {
		t.Errorf("probe defaults = %s/%s", cfg.ProbeInterval, cfg.ProbeTimeout)
	}
	if cfg.ProxyTimeout != 300*time.Second {
		t.Errorf("ProxyTimeout = %s", cfg.ProxyTimeout)
	}
	if cfg.HTTPPort != 8000 || cfg.GRPCPort != 50051 {
		t.Errorf("ports = %d/%d", cfg.HTTPPort, cfg.GRPCPort)
	}
}

func TestMeshConfig_SelfAddressFollowsGRPCPort(t *testing.T) {
	cfg := MeshConfig{GRPCPort: 6000}
	cfg.ApplyDefaults()
	if cfg.SelfAddress != "localhost:6000" {
		t.Errorf("SelfAddress = %q", cfg.SelfAddress)
	}
}

func TestMeshConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MeshConfig)
		errMsg string
	}{
		{"timeout not below interval", func(c *MeshConfig) { c.ProbeTimeout = c.ProbeInterval }, "probe_timeout"},
		{"bad backend", func(c *MeshConfig) { c.RegistryBackend = "etcd" }, "registry_backend"},
		{"bad seed source", func(c *MeshConfig) { c.SeedSource = "dns" }, "seed_source"},
		{"bad sink", func(c *MeshConfig) { c.EventsSink = "nats" }, "events_sink"},
		{"same ports", func(c *MeshConfig) { c.HTTPPort = c.GRPCPort }, "must differ"},
		{"bad environment", func(c *MeshConfig) { c.Environment = "qa" }, "config.environment"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg MeshConfig
			cfg.ApplyDefaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" node2:50051, ,node3:50051,")
	if len(got) != 2 || got[0] != "node2:50051" || got[1] != "node3:50051" {
		t.Errorf("SplitList = %v", got)
	}
	if SplitList("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PEER_NODES", "node2:50051,node3:50051")
	t.Setenv("SELF_ADDRESS", "node1:50051")
	t.Setenv("PROBE_INTERVAL", "30s")
	t.Setenv("PROBE_TIMEOUT", "1s")
	t.Setenv("GRPC_PORT", "6000")
	t.Setenv("LOGGING_LEVEL", "debug")

	var cfg MeshConfig
	if err := Load("meshnode", &cfg, WithFileSystem(&mockFS{})); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.ApplyDefaults()

	if got := cfg.Seeds(); len(got) != 2 || got[0] != "node2:50051" {
		t.Errorf("Seeds = %v", got)
	}
	if cfg.SelfAddress != "node1:50051" {
		t.Errorf("SelfAddress = %q", cfg.SelfAddress)
	}
	if cfg.ProbeInterval != 30*time.Second || cfg.ProbeTimeout != time.Second {
		t.Errorf("probe = %s/%s", cfg.ProbeInterval, cfg.ProbeTimeout)
	}
	if cfg.GRPCPort != 6000 {
		t.Errorf("GRPCPort = %d", cfg.GRPCPort)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := `
name: edge-node
environment: staging
http_port: 9000
registry_backend: redis
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var cfg MeshConfig
	if err := Load("meshnode", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "edge-node" || cfg.Environment != "staging" {
		t.Errorf("service fields = %q/%q", cfg.Name, cfg.Environment)
	}
	if cfg.HTTPPort != 9000 || cfg.RegistryBackend != RegistryRedis {
		t.Errorf("mesh fields = %d/%q", cfg.HTTPPort, cfg.RegistryBackend)
	}
}

func TestLoad_MissingFilesIsNotAnError(t *testing.T) {
	var cfg MeshConfig
	err := Load("meshnode", &cfg, WithFileSystem(&mockFS{}), WithConfigFile("/nonexistent/config.yml"))
	if err != nil {
		t.Fatalf("expected success with missing file, got %v", err)
	}
}

func TestResolver_SearchOrder(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./cmd/meshnode/config.yml": true,
		"./config.yml":              true,
		"./.env":                    true,
	}}
	r := &Resolver{FileSystem: fs}
	files := r.Resolve("meshnode", LoaderConfig{})
	if files.ConfigFile != "./cmd/meshnode/config.yml" {
		t.Errorf("ConfigFile = %q", files.ConfigFile)
	}
	if files.EnvFile != "./.env" {
		t.Errorf("EnvFile = %q", files.EnvFile)
	}

	files = r.Resolve("meshnode", LoaderConfig{ConfigFile: "/etc/mesh.yml"})
	if files.ConfigFile != "/etc/mesh.yml" {
		t.Errorf("explicit ConfigFile ignored: %q", files.ConfigFile)
	}
}

func TestEnvKeyVariants(t *testing.T) {
	got := envKeyVariants("LOGGING_NO_COLOR")
	want := []string{"logging_no_color", "logging.no_color", "logging_no.color"}
	if len(got) != len(want) {
		t.Fatalf("variants = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("variant[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
