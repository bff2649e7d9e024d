// Package config resolves kwforge settings from YAML config, env vars
// and CLI flags, tracking where each value came from so `kwforge
// config` style debugging stays honest. Precedence: CLI > env > file >
// default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath string
	CLILLM     string
	CLIEmbed   string
	CLIDBPath  string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath      ResolvedValue `json:"db_path"`
	LLMProvider ResolvedValue `json:"llm_provider"`

	EmbedProvider ResolvedValue `json:"embed_provider"`
	EmbedAPIKey   ResolvedValue `json:"embed_api_key"`
	EmbedEndpoint ResolvedValue `json:"embed_endpoint"`

	SearchAPIKey ResolvedValue `json:"search_api_key"`
	SlackWebhook ResolvedValue `json:"slack_webhook"`
	ReportDir    ResolvedValue `json:"report_dir"`

	MinClusters ResolvedValue `json:"min_clusters"`
	MaxClusters ResolvedValue `json:"max_clusters"`
	RunTimeout  ResolvedValue `json:"run_timeout"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	LLM    struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"llm"`
	Embed struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"embed"`
	Search struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"search"`
	Slack struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"slack"`
	Report struct {
		Dir string `yaml:"dir"`
	} `yaml:"report"`
	Clustering struct {
		MinClusters string `yaml:"min_clusters"`
		MaxClusters string `yaml:"max_clusters"`
	} `yaml:"clustering"`
	RunTimeout string `yaml:"run_timeout"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kwforge", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LLMProvider, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.EmbedProvider, cfg.Embed.Provider, SourceConfig, path)
		apply(&out.EmbedEndpoint, cfg.Embed.Endpoint, SourceConfig, path)
		apply(&out.SearchAPIKey, cfg.Search.APIKey, SourceConfig, path)
		apply(&out.SlackWebhook, cfg.Slack.WebhookURL, SourceConfig, path)
		apply(&out.ReportDir, cfg.Report.Dir, SourceConfig, path)
		apply(&out.MinClusters, cfg.Clustering.MinClusters, SourceConfig, path)
		apply(&out.MaxClusters, cfg.Clustering.MaxClusters, SourceConfig, path)
		apply(&out.RunTimeout, cfg.RunTimeout, SourceConfig, path)

		if key := strings.TrimSpace(cfg.Embed.APIKey); key != "" {
			out.EmbedAPIKey = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			provider := providerOf(cfg.LLM.Provider)
			if provider == "" {
				provider = "default"
			}
			out.LLMKeys[provider] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "KWFORGE_DB")
	applyEnv(&out.DBPath, "KWFORGE_DB_PATH")
	applyEnv(&out.LLMProvider, "KWFORGE_LLM")
	applyEnv(&out.EmbedProvider, "KWFORGE_EMBED")
	applyEnv(&out.EmbedEndpoint, "KWFORGE_EMBED_ENDPOINT")
	applyEnv(&out.SearchAPIKey, "SERP_API_KEY")
	applyEnv(&out.SlackWebhook, "SLACK_WEBHOOK_URL")
	applyEnv(&out.ReportDir, "KWFORGE_REPORT_DIR")
	applyEnv(&out.MinClusters, "KWFORGE_MIN_CLUSTERS")
	applyEnv(&out.MaxClusters, "KWFORGE_MAX_CLUSTERS")
	applyEnv(&out.RunTimeout, "KWFORGE_RUN_TIMEOUT")

	if v := strings.TrimSpace(os.Getenv("KWFORGE_EMBED_API_KEY")); v != "" {
		out.EmbedAPIKey = ResolvedValue{Value: v, Source: SourceEnv, From: "KWFORGE_EMBED_API_KEY"}
	}

	for env, provider := range map[string]string{
		"GROQ_API_KEY":       "groq",
		"OPENROUTER_API_KEY": "openrouter",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.LLMProvider, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.EmbedProvider, opts.CLIEmbed, SourceCLI, "--embed")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

// APIKeyForProvider returns the key for a "provider" or
// "provider/model" value, falling back to the file-level default key.
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
