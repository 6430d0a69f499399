package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Gateway.BindAddr != "127.0.0.1:10010" {
		t.Errorf("wrong bind addr: %q", cfg.Gateway.BindAddr)
	}
	if cfg.Gateway.RateLimitPerMin != 30 || cfg.Gateway.RateLimitWindowS != 60 {
		t.Errorf("wrong rate limit defaults: %d/%d", cfg.Gateway.RateLimitPerMin, cfg.Gateway.RateLimitWindowS)
	}
	if cfg.Gateway.MaxChatInflight != 4 {
		t.Errorf("wrong inflight default: %d", cfg.Gateway.MaxChatInflight)
	}
	if cfg.Gateway.MaxBodyBytes != 256<<10 || cfg.Gateway.MaxMessageChars != 32000 {
		t.Errorf("wrong payload caps: %d/%d", cfg.Gateway.MaxBodyBytes, cfg.Gateway.MaxMessageChars)
	}
	if cfg.LLM.TimeoutSec != 180 {
		t.Errorf("wrong llm timeout: %d", cfg.LLM.TimeoutSec)
	}
	if cfg.Context.EphemeralBudget != 18000 || cfg.Context.EpisodicTurns != 20 ||
		cfg.Context.RAGHits != 8 || cfg.Context.RAGSnippetChars != 900 {
		t.Errorf("wrong context defaults: %+v", cfg.Context)
	}
	if cfg.Planner.BatchSize != 25 {
		t.Errorf("wrong batch size: %d", cfg.Planner.BatchSize)
	}
	if cfg.Paths.MemoryDir != "data/memory" || cfg.Paths.PlansDir != ".runtime/plans" {
		t.Errorf("wrong path defaults: %+v", cfg.Paths)
	}
	if cfg.Observe.Enabled {
		t.Error("observer is opt-in")
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if cfg.Gateway.BindAddr != "127.0.0.1:10010" || cfg.Planner.BatchSize != 25 {
		t.Errorf("missing file should yield defaults: %+v", cfg.Gateway)
	}
}

func TestLoadTOMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aicore.toml")
	body := `
[gateway]
bind_addr = "0.0.0.0:8080"
rate_limit_per_min = 10

[llm]
base_url = "http://10.0.0.2:1234/v1"
model_id = "qwen3-8b"

[paths]
data_root = "/srv/aicore"

[planner]
batch_size = 50

[observer]
enabled = true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)

	if cfg.Gateway.BindAddr != "0.0.0.0:8080" || cfg.Gateway.RateLimitPerMin != 10 {
		t.Errorf("toml gateway not applied: %+v", cfg.Gateway)
	}
	if cfg.LLM.BaseURL != "http://10.0.0.2:1234/v1" || cfg.LLM.ModelID != "qwen3-8b" {
		t.Errorf("toml llm not applied: %+v", cfg.LLM)
	}
	if cfg.Paths.DataRoot != "/srv/aicore" {
		t.Errorf("toml paths not applied: %+v", cfg.Paths)
	}
	if cfg.Planner.BatchSize != 50 {
		t.Errorf("toml batch size not applied: %d", cfg.Planner.BatchSize)
	}
	if !cfg.Observe.Enabled {
		t.Error("toml observer not applied")
	}

	// Untouched sections keep their defaults.
	if cfg.Gateway.MaxMessageChars != 32000 || cfg.Context.RAGHits != 8 {
		t.Errorf("partial toml should preserve defaults: %+v", cfg)
	}
}

func TestLoadEnvWinsOverTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aicore.toml")
	os.WriteFile(path, []byte("[gateway]\nbind_addr = \"0.0.0.0:8080\"\n"), 0o644)

	t.Setenv("AICORE_BIND_ADDR", "127.0.0.1:9999")
	t.Setenv("AICORE_LMSTUDIO_BASE_URL", "http://localhost:5555/v1")
	t.Setenv("AICORE_MAIN_MODEL_ID", "model-x")
	t.Setenv("AICORE_DATA_ROOT", "/tmp/data")
	t.Setenv("AICORE_LLM_TIMEOUT_SEC", "60")
	t.Setenv("AICORE_RATE_LIMIT_PER_MIN", "5")
	t.Setenv("AICORE_MAX_CHAT_INFLIGHT", "2")
	t.Setenv("AICORE_OBSERVER_ENABLED", "1")

	cfg := Load(path)

	if cfg.Gateway.BindAddr != "127.0.0.1:9999" {
		t.Errorf("env should win over toml: %q", cfg.Gateway.BindAddr)
	}
	if cfg.LLM.BaseURL != "http://localhost:5555/v1" || cfg.LLM.ModelID != "model-x" {
		t.Errorf("env llm not applied: %+v", cfg.LLM)
	}
	if cfg.Paths.DataRoot != "/tmp/data" {
		t.Errorf("env data root not applied: %q", cfg.Paths.DataRoot)
	}
	if cfg.LLM.TimeoutSec != 60 || cfg.Gateway.RateLimitPerMin != 5 || cfg.Gateway.MaxChatInflight != 2 {
		t.Errorf("env ints not applied: %+v", cfg)
	}
	if !cfg.Observe.Enabled {
		t.Error("env observer not applied")
	}
}

func TestLoadBadEnvIntIgnored(t *testing.T) {
	t.Setenv("AICORE_LLM_TIMEOUT_SEC", "banana")
	t.Setenv("AICORE_RATE_LIMIT_PER_MIN", "-3")

	cfg := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if cfg.LLM.TimeoutSec != 180 || cfg.Gateway.RateLimitPerMin != 30 {
		t.Errorf("bad env ints should be ignored: %d/%d", cfg.LLM.TimeoutSec, cfg.Gateway.RateLimitPerMin)
	}
}

func TestLoadClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aicore.toml")
	os.WriteFile(path, []byte("[planner]\nbatch_size = 9999\n\n[gateway]\nmax_chat_inflight = -1\n"), 0o644)

	cfg := Load(path)
	if cfg.Planner.BatchSize != 25 {
		t.Errorf("out-of-range batch size should reset: %d", cfg.Planner.BatchSize)
	}
	if cfg.Gateway.MaxChatInflight != 4 {
		t.Errorf("nonpositive inflight should reset: %d", cfg.Gateway.MaxChatInflight)
	}
}
