package main

import (
	"testing"
	"time"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg := configFromEnv()

	if cfg.staleTaskAge != 0 {
		t.Errorf("Stale sweep should default off, got %v", cfg.staleTaskAge)
	}
	if cfg.pollInterval != time.Second {
		t.Errorf("Poll interval default mismatch: %v", cfg.pollInterval)
	}
	if cfg.provider != "openai" {
		t.Errorf("Provider default mismatch: %q", cfg.provider)
	}
	if !cfg.enableMetrics {
		t.Error("Metrics should default on")
	}
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("LEXIGRAPH_STALE_TASK_AGE", "15m")
	t.Setenv("LEXIGRAPH_POLL_INTERVAL", "250ms")
	t.Setenv("LEXIGRAPH_SENTENCE_COUNT", "5")
	t.Setenv("LEXIGRAPH_METRICS", "false")

	cfg := configFromEnv()

	if cfg.staleTaskAge != 15*time.Minute {
		t.Errorf("Stale age override mismatch: %v", cfg.staleTaskAge)
	}
	if cfg.pollInterval != 250*time.Millisecond {
		t.Errorf("Poll interval override mismatch: %v", cfg.pollInterval)
	}
	if cfg.sentenceCount != 5 {
		t.Errorf("Sentence count override mismatch: %d", cfg.sentenceCount)
	}
	if cfg.enableMetrics {
		t.Error("Metrics should be disabled")
	}
}

func TestConfigFromEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("LEXIGRAPH_STALE_TASK_AGE", "soon")
	t.Setenv("LEXIGRAPH_SENTENCE_COUNT", "many")

	cfg := configFromEnv()

	if cfg.staleTaskAge != 0 {
		t.Errorf("Unparseable stale age should fall back to 0, got %v", cfg.staleTaskAge)
	}
	if cfg.sentenceCount != 3 {
		t.Errorf("Unparseable sentence count should fall back to 3, got %d", cfg.sentenceCount)
	}
}
