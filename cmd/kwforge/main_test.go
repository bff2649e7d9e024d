package main

import (
	"reflect"
	"testing"
	"time"

	"github.com/kwforge/kwforge/internal/config"
)

func TestParseFlags(t *testing.T) {
	flags, err := parseFlags([]string{
		"running shoes, yoga mats",
		"--user", "U42",
		"--llm", "groq/llama-3.1-8b-instant",
		"--db", "/tmp/test.db",
		"-n", "5",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if !reflect.DeepEqual(flags.args, []string{"running shoes, yoga mats"}) {
		t.Errorf("args = %v", flags.args)
	}
	if flags.userID != "U42" || flags.llmFlag != "groq/llama-3.1-8b-instant" {
		t.Errorf("flags = %+v", flags)
	}
	if flags.dbPath != "/tmp/test.db" || flags.limit != 5 {
		t.Errorf("flags = %+v", flags)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	flags, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if flags.userID != "cli-user" || flags.limit != 10 {
		t.Errorf("flags = %+v", flags)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	if _, err := parseFlags([]string{"--user"}); err == nil {
		t.Error("expected error for missing flag value")
	}
	if _, err := parseFlags([]string{"--bogus"}); err == nil {
		t.Error("expected error for unknown flag")
	}
	if _, err := parseFlags([]string{"--limit", "many"}); err == nil {
		t.Error("expected error for non-numeric limit")
	}
}

func TestPipelineConfig(t *testing.T) {
	resolved := config.ResolvedConfig{
		MinClusters: config.ResolvedValue{Value: "2"},
		MaxClusters: config.ResolvedValue{Value: "6"},
		RunTimeout:  config.ResolvedValue{Value: "5m"},
	}
	cfg := pipelineConfig(resolved)
	if cfg.Cluster.MinClusters != 2 || cfg.Cluster.MaxClusters != 6 {
		t.Errorf("cluster opts = %+v", cfg.Cluster)
	}
	if cfg.RunTimeout != 5*time.Minute {
		t.Errorf("run timeout = %v", cfg.RunTimeout)
	}

	// Unset values leave the zero config so pipeline defaults apply.
	cfg = pipelineConfig(config.ResolvedConfig{})
	if cfg.Cluster.MinClusters != 0 || cfg.RunTimeout != 0 {
		t.Errorf("cfg = %+v", cfg)
	}
}
