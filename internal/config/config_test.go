package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Mode != "mock" {
		t.Fatalf("expected default engine mode mock, got %q", cfg.Engine.Mode)
	}
	if cfg.Pipeline.SilenceMS != 500 {
		t.Fatalf("expected default silence 500, got %d", cfg.Pipeline.SilenceMS)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOX_HTTP_PORT", "9000")
	t.Setenv("VOX_ENGINE_MODE", "exec")
	t.Setenv("VOX_ENGINE_COMMAND", "chatterbox-engine --checkpoint model.pt")
	t.Setenv("VOX_ENGINE_SAMPLE_RATE", "24000")
	t.Setenv("VOX_PIPELINE_SILENCE_MS", "700")
	t.Setenv("VOX_PIPELINE_LANGUAGE", "it")
	t.Setenv("VOX_PIPELINE_EXAGGERATION", "2.5")
	t.Setenv("VOX_PIPELINE_SAVE_INDIVIDUAL", "false")
	t.Setenv("VOX_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOX_RUN_STORE_RETENTION_MODE", "ephemeral")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Port != 9000 {
		t.Fatalf("expected port override, got %d", cfg.HTTP.Port)
	}
	if cfg.Engine.Mode != "exec" || cfg.Engine.Command == "" {
		t.Fatalf("expected engine override, got %+v", cfg.Engine)
	}
	if cfg.Engine.SampleRate != 24000 {
		t.Fatalf("expected sample rate override, got %d", cfg.Engine.SampleRate)
	}
	if cfg.Pipeline.SilenceMS != 700 || cfg.Pipeline.Language != "it" {
		t.Fatalf("expected pipeline overrides, got %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.Exaggeration != 2.5 {
		t.Fatalf("expected exaggeration override, got %v", cfg.Pipeline.Exaggeration)
	}
	if cfg.Pipeline.SaveIndividual {
		t.Fatal("expected save_individual override false")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.RunStore.RetentionMode != "ephemeral" {
		t.Fatalf("expected retention override, got %q", cfg.RunStore.RetentionMode)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voxweave.yaml")
	data := []byte("engine:\n  mode: mock\n  sample_rate: 16000\npipeline:\n  silence_ms: 250\n  language: fr\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.SampleRate != 16000 {
		t.Fatalf("expected 16000, got %d", cfg.Engine.SampleRate)
	}
	if cfg.Pipeline.SilenceMS != 250 || cfg.Pipeline.Language != "fr" {
		t.Fatalf("unexpected pipeline config: %+v", cfg.Pipeline)
	}
}

func TestValidateRejectsBadEngine(t *testing.T) {
	t.Setenv("VOX_ENGINE_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
}
