package lmstudio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Defaults when neither environment nor config files name an endpoint.
const (
	DefaultBaseURL = "http://localhost:1234"
	DefaultModelID = "local-model"
)

// ResolveConfig determines the endpoint base URL and model id. Each
// key resolves independently: environment variable, then
// config/providers.toml / config/models.toml scraped for well-known
// keys at any depth, then the default.
func ResolveConfig() (baseURL, modelID string) {
	url := strings.TrimSpace(os.Getenv("AICORE_LMSTUDIO_BASE_URL"))
	if url == "" {
		url = scrapeTOML(filepath.Join("config", "providers.toml"), "base_url", "url", "endpoint")
	}
	if url == "" {
		url = DefaultBaseURL
	}

	model := strings.TrimSpace(os.Getenv("AICORE_MAIN_MODEL_ID"))
	if model == "" {
		model = scrapeTOML(filepath.Join("config", "models.toml"), "model_id", "id", "model")
	}
	if model == "" {
		model = DefaultModelID
	}
	return strings.TrimRight(url, "/"), model
}

// scrapeTOML reads a TOML file and returns the first string value found
// under any of the given keys, searching tables depth-first.
func scrapeTOML(path string, keys ...string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return ""
	}
	return findFirst(doc, keys)
}

func findFirst(doc map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := doc[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	for _, v := range doc {
		switch sub := v.(type) {
		case map[string]any:
			if s := findFirst(sub, keys); s != "" {
				return s
			}
		case []map[string]any:
			for _, m := range sub {
				if s := findFirst(m, keys); s != "" {
					return s
				}
			}
		}
	}
	return ""
}
