package config

import "testing"

func TestDefaultConfigTimeouts(t *testing.T) {
	cfg := DefaultConfig()

	if got, want := cfg.QueryTimeout().String(), "30s"; got != want {
		t.Errorf("QueryTimeout() = %s, want %s", got, want)
	}
	if got, want := cfg.LLMTimeout().String(), "15s"; got != want {
		t.Errorf("LLMTimeout() = %s, want %s", got, want)
	}
	if got, want := cfg.ToolCallTimeout().String(), "2m0s"; got != want {
		t.Errorf("ToolCallTimeout() = %s, want %s", got, want)
	}
}

func TestParseDurationOrFallsBackOnGarbage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.QueryTimeout = "not-a-duration"

	if got, want := cfg.QueryTimeout().String(), "30s"; got != want {
		t.Errorf("QueryTimeout() with invalid input = %s, want fallback %s", got, want)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/engine.yaml")
	if err != nil {
		t.Fatalf("LoadConfig with missing file should not error, got: %v", err)
	}
	if cfg.Pipeline.CollectParallelism != 8 {
		t.Errorf("CollectParallelism = %d, want default 8", cfg.Pipeline.CollectParallelism)
	}
}
