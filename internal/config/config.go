// Package config loads runtime configuration: defaults, then a TOML
// file, then AICORE_* environment variables. Env wins.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Gateway Gateway `toml:"gateway"`
	LLM     LLM     `toml:"llm"`
	Paths   Paths   `toml:"paths"`
	Tools   Tools   `toml:"tools"`
	Context Context `toml:"context"`
	Planner Planner `toml:"planner"`
	Observe Observe `toml:"observer"`
}

type Gateway struct {
	BindAddr         string `toml:"bind_addr"`
	RateLimitPerMin  int    `toml:"rate_limit_per_min"`
	RateLimitWindowS int    `toml:"rate_limit_window_s"`
	MaxChatInflight  int    `toml:"max_chat_inflight"`
	MaxBodyBytes     int64  `toml:"max_body_bytes"`
	MaxMessageChars  int    `toml:"max_message_chars"`
}

type LLM struct {
	BaseURL    string `toml:"base_url"`
	ModelID    string `toml:"model_id"`
	TimeoutSec int    `toml:"timeout_sec"`
}

type Paths struct {
	DataRoot    string `toml:"data_root"`
	MemoryDir   string `toml:"memory_dir"`
	RAGPath     string `toml:"rag_path"`
	PlansDir    string `toml:"plans_dir"`
	LogsDir     string `toml:"logs_dir"`
	Workspace   string `toml:"workspace"`
	PostgresURL string `toml:"postgres_url"`
}

type Tools struct {
	ExecAllowlist []string `toml:"exec_allowlist"`
}

type Context struct {
	EphemeralBudget int `toml:"ephemeral_budget"`
	EpisodicTurns   int `toml:"episodic_turns"`
	RAGHits         int `toml:"rag_hits"`
	RAGSnippetChars int `toml:"rag_snippet_chars"`
}

type Planner struct {
	BatchSize int `toml:"batch_size"`
}

type Observe struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Gateway: Gateway{
			BindAddr:         "127.0.0.1:10010",
			RateLimitPerMin:  30,
			RateLimitWindowS: 60,
			MaxChatInflight:  4,
			MaxBodyBytes:     256 << 10,
			MaxMessageChars:  32000,
		},
		LLM: LLM{TimeoutSec: 180},
		Paths: Paths{
			DataRoot:  ".",
			MemoryDir: "data/memory",
			RAGPath:   "data/rag/knowledge.sqlite",
			PlansDir:  ".runtime/plans",
			LogsDir:   "logs",
			Workspace: "workspace",
		},
		Context: Context{
			EphemeralBudget: 18000,
			EpisodicTurns:   20,
			RAGHits:         8,
			RAGSnippetChars: 900,
		},
		Planner: Planner{BatchSize: 25},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "aicore.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("AICORE_BIND_ADDR"); v != "" {
		cfg.Gateway.BindAddr = v
	}
	if v := os.Getenv("AICORE_LMSTUDIO_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("AICORE_MAIN_MODEL_ID"); v != "" {
		cfg.LLM.ModelID = v
	}
	if v := os.Getenv("AICORE_DATA_ROOT"); v != "" {
		cfg.Paths.DataRoot = v
	}
	if v := os.Getenv("AICORE_POSTGRES_URL"); v != "" {
		cfg.Paths.PostgresURL = v
	}
	if n, ok := envInt("AICORE_LLM_TIMEOUT_SEC"); ok {
		cfg.LLM.TimeoutSec = n
	}
	if n, ok := envInt("AICORE_RATE_LIMIT_PER_MIN"); ok {
		cfg.Gateway.RateLimitPerMin = n
	}
	if n, ok := envInt("AICORE_MAX_CHAT_INFLIGHT"); ok {
		cfg.Gateway.MaxChatInflight = n
	}
	if v := os.Getenv("AICORE_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observe.Enabled = true
	}

	// Fallbacks
	if cfg.Planner.BatchSize <= 0 || cfg.Planner.BatchSize > 200 {
		cfg.Planner.BatchSize = 25
	}
	if cfg.Gateway.MaxChatInflight <= 0 {
		cfg.Gateway.MaxChatInflight = 4
	}

	return cfg
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
