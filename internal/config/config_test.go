package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Scheduler.DispatchIntervalMS != 20000 {
		t.Fatalf("expected 20s dispatch interval, got %d", cfg.Scheduler.DispatchIntervalMS)
	}
	if cfg.Channels.ExploratoryCapacity != 10 {
		t.Fatalf("expected exploratory capacity 10, got %d", cfg.Channels.ExploratoryCapacity)
	}
	if cfg.Transcript.FirstSlideMinChars != 20 || cfg.Transcript.NextSlideMinChars != 30 {
		t.Fatalf("unexpected default thresholds: %+v", cfg.Transcript)
	}
	if !cfg.Generation.FallbackOnEmpty {
		t.Fatal("expected fallback synthesis enabled by default")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PODIUM_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("PODIUM_BUS_USERNAME", "alice")
	t.Setenv("PODIUM_BUS_PASSWORD", "secret")
	t.Setenv("PODIUM_TRANSCRIPT_MODE", "streaming")
	t.Setenv("PODIUM_TRANSCRIPT_NEXT_SLIDE_MIN_CHARS", "50")
	t.Setenv("PODIUM_GATE_MODE", "http")
	t.Setenv("PODIUM_GATE_ENDPOINT", "http://gate.internal/v1/decide")
	t.Setenv("PODIUM_SCHEDULER_DISPATCH_INTERVAL_MS", "5000")
	t.Setenv("PODIUM_CHANNELS_EXPLORATORY_CAPACITY", "4")
	t.Setenv("PODIUM_GENERATION_FALLBACK_ON_EMPTY", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Transcript.Mode != "streaming" {
		t.Fatalf("expected transcript mode override, got %q", cfg.Transcript.Mode)
	}
	if cfg.Transcript.NextSlideMinChars != 50 {
		t.Fatalf("expected threshold override, got %d", cfg.Transcript.NextSlideMinChars)
	}
	if cfg.Gate.Mode != "http" || cfg.Gate.Endpoint != "http://gate.internal/v1/decide" {
		t.Fatalf("expected gate override, got %+v", cfg.Gate)
	}
	if cfg.Scheduler.DispatchIntervalMS != 5000 {
		t.Fatalf("expected interval override, got %d", cfg.Scheduler.DispatchIntervalMS)
	}
	if cfg.Channels.ExploratoryCapacity != 4 {
		t.Fatalf("expected capacity override, got %d", cfg.Channels.ExploratoryCapacity)
	}
	if cfg.Generation.FallbackOnEmpty {
		t.Fatal("expected fallback override false")
	}
}

func TestValidateRejectsMissingEndpoint(t *testing.T) {
	t.Setenv("PODIUM_GATE_MODE", "http")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for http gate without endpoint")
	}
}
