package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := validate(cfg); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.RuntimeName != "parlo-runtime" {
		t.Fatalf("unexpected runtime name: %s", cfg.RuntimeName)
	}
	sum := cfg.Scoring.WeightAccuracy + cfg.Scoring.WeightConfidence +
		cfg.Scoring.WeightIntonation + cfg.Scoring.WeightFluency
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("default scoring weights do not sum to 1: %v", sum)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/parlo.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parlo.yaml")
	body := `
runtime_name: studio
recognizer:
  mode: exec
  command: "whisper-cli --json"
scoring:
  weight_accuracy: 0.5
  weight_confidence: 0.2
  weight_intonation: 0.2
  weight_fluency: 0.1
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "studio" {
		t.Fatalf("runtime_name = %s", cfg.RuntimeName)
	}
	if cfg.Recognizer.Mode != "exec" || cfg.Recognizer.Command != "whisper-cli --json" {
		t.Fatalf("recognizer not overridden: %+v", cfg.Recognizer)
	}
	if cfg.Scoring.WeightAccuracy != 0.5 {
		t.Fatalf("scoring weight not overridden: %v", cfg.Scoring.WeightAccuracy)
	}
	// Untouched sections keep defaults.
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("http.port = %d, want default 8080", cfg.HTTP.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PARLO_RUNTIME_NAME", "env-runtime")
	t.Setenv("PARLO_HTTP_PORT", "9000")
	t.Setenv("PARLO_PITCH_ENABLED", "false")
	t.Setenv("PARLO_SCORING_BAND_HIGH", "90")
	t.Setenv("PARLO_BUS_SERVERS", "nats://a:4222, nats://b:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "env-runtime" {
		t.Fatalf("runtime_name = %s", cfg.RuntimeName)
	}
	if cfg.HTTP.Port != 9000 {
		t.Fatalf("http.port = %d", cfg.HTTP.Port)
	}
	if cfg.Pitch.Enabled {
		t.Fatal("pitch.enabled should be overridden to false")
	}
	if cfg.Scoring.BandHigh != 90 {
		t.Fatalf("band_high = %d", cfg.Scoring.BandHigh)
	}
	if len(cfg.Bus.Servers) != 2 || cfg.Bus.Servers[1] != "nats://b:4222" {
		t.Fatalf("bus.servers = %v", cfg.Bus.Servers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty runtime name", func(c *Config) { c.RuntimeName = "" }, "runtime_name"},
		{"bad http port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"bad recognizer mode", func(c *Config) { c.Recognizer.Mode = "grpc" }, "recognizer.mode"},
		{"exec recognizer without command", func(c *Config) {
			c.Recognizer.Mode = "exec"
			c.Recognizer.Command = ""
		}, "recognizer.command"},
		{"pitch range inverted", func(c *Config) {
			c.Pitch.MinPitchHz = 500
			c.Pitch.MaxPitchHz = 100
		}, "pitch range"},
		{"weights off", func(c *Config) { c.Scoring.WeightAccuracy = 0.9 }, "weights must sum"},
		{"bands inverted", func(c *Config) {
			c.Scoring.BandHigh = 50
			c.Scoring.BandMedium = 70
		}, "bands"},
		{"bad retention mode", func(c *Config) { c.ResultStore.RetentionMode = "forever" }, "retention_mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
