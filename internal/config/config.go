// Package config loads larvling's per-project settings.
//
// Settings come from .claude/larvling.config.json, LARVLING_* environment
// variables and an optional .claude/larvling.env dotenv file. Every key has
// a default, so a project with no config at all behaves as if every feature
// were enabled.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DirName is the per-project state directory.
	DirName = ".claude"

	ConfigFileName = "larvling.config.json"
	EnvFileName    = "larvling.env"
	DBFileName     = "larvling.db"
	CacheFileName  = "larvling-cache.json"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "LARVLING"
)

// LLM provider names.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

// Config is the resolved configuration for one project. It is built once per
// process and passed to every component that needs it.
type Config struct {
	// ProjectDir is the working directory the hook was invoked from.
	ProjectDir string `mapstructure:"-"`

	Analysis            bool `mapstructure:"analysis"`
	TaskTracking        bool `mapstructure:"task_tracking"`
	KnowledgeExtraction bool `mapstructure:"knowledge_extraction"`
	ContextHints        bool `mapstructure:"context_hints"`
	SummaryHints        bool `mapstructure:"summary_hints"`
	SessionTags         bool `mapstructure:"session_tags"`
	Geolocation         bool `mapstructure:"geolocation"`
	UpdateCheck         bool `mapstructure:"update_check"`

	LLM     LLMConfig     `mapstructure:"llm"`
	Context ContextConfig `mapstructure:"context"`
	Log     LogConfig     `mapstructure:"log"`
}

// LLMConfig selects and tunes the extraction model.
type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxTurns int           `mapstructure:"max_turns"`
}

// ContextConfig tunes session-start context assembly.
type ContextConfig struct {
	// IgnoreFiles are glob patterns for changed files that should not drive
	// relevant-session lookup (lockfiles and the like).
	IgnoreFiles      []string `mapstructure:"ignore_files"`
	RecentSessions   int      `mapstructure:"recent_sessions"`
	RelevantSessions int      `mapstructure:"relevant_sessions"`
	RecentStatements int      `mapstructure:"recent_statements"`
}

// LogConfig controls the event log.
type LogConfig struct {
	Debug bool `mapstructure:"debug"`
}

// Default returns the configuration used when nothing is configured.
func Default(projectDir string) *Config {
	return &Config{
		ProjectDir:          projectDir,
		Analysis:            true,
		TaskTracking:        true,
		KnowledgeExtraction: true,
		ContextHints:        true,
		SummaryHints:        true,
		SessionTags:         true,
		Geolocation:         true,
		UpdateCheck:         true,
		LLM: LLMConfig{
			Provider: ProviderClaude,
			Timeout:  2 * time.Minute,
			MaxTurns: 5,
		},
		Context: ContextConfig{
			IgnoreFiles:      []string{"*.lock", "go.sum", "package-lock.json"},
			RecentSessions:   5,
			RelevantSessions: 3,
			RecentStatements: 10,
		},
	}
}

// Load resolves the configuration for projectDir.
//
// Precedence (highest to lowest):
//  1. LARVLING_* environment variables (LARVLING_TASK_TRACKING, LARVLING_LLM_MODEL, ...)
//  2. .claude/larvling.env, for variables not already set
//  3. .claude/larvling.config.json
//  4. Default
//
// A malformed config file yields the defaults together with a non-nil
// error, so callers can log the problem and carry on.
func Load(projectDir string) (*Config, error) {
	envPath := filepath.Join(projectDir, DirName, EnvFileName)
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Default(projectDir), fmt.Errorf("reading %s: %w", EnvFileName, err)
	}

	v, err := initViper(projectDir)
	if err != nil {
		return Default(projectDir), err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return Default(projectDir), fmt.Errorf("decoding config: %w", err)
	}
	cfg.ProjectDir = projectDir
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	return cfg, nil
}

func initViper(projectDir string) (*viper.Viper, error) {
	v := viper.New()
	setViperDefaults(v, Default(projectDir))

	path := filepath.Join(projectDir, DirName, ConfigFileName)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		// A missing file means defaults.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func setViperDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("analysis", d.Analysis)
	v.SetDefault("task_tracking", d.TaskTracking)
	v.SetDefault("knowledge_extraction", d.KnowledgeExtraction)
	v.SetDefault("context_hints", d.ContextHints)
	v.SetDefault("summary_hints", d.SummaryHints)
	v.SetDefault("session_tags", d.SessionTags)
	v.SetDefault("geolocation", d.Geolocation)
	v.SetDefault("update_check", d.UpdateCheck)

	// LLM
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_turns", d.LLM.MaxTurns)

	// Context
	v.SetDefault("context.ignore_files", d.Context.IgnoreFiles)
	v.SetDefault("context.recent_sessions", d.Context.RecentSessions)
	v.SetDefault("context.relevant_sessions", d.Context.RelevantSessions)
	v.SetDefault("context.recent_statements", d.Context.RecentStatements)

	v.SetDefault("log.debug", d.Log.Debug)
}

// ClaudeDir is the project's .claude directory.
func (c *Config) ClaudeDir() string {
	return filepath.Join(c.ProjectDir, DirName)
}

// DBPath is the SQLite store location.
func (c *Config) DBPath() string {
	return filepath.Join(c.ClaudeDir(), DBFileName)
}

// CachePath is the TTL cache file location.
func (c *Config) CachePath() string {
	return filepath.Join(c.ClaudeDir(), CacheFileName)
}

// ConfigPath is the JSON config file location.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.ClaudeDir(), ConfigFileName)
}

// Exists reports whether the project has a config file.
func (c *Config) Exists() bool {
	_, err := os.Stat(c.ConfigPath())
	return err == nil
}
