// Package config provides unified configuration for runbox.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (RUNBOX_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for runbox.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Tasks         TasksConfig         `yaml:"tasks"`
	Engine        EngineConfig        `yaml:"engine"`
	Search        SearchConfig        `yaml:"search"`
	History       HistoryConfig       `yaml:"history"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error; default: info
	Format string `yaml:"format"` // text or json; default: text
	Debug  string `yaml:"debug"`  // comma-separated debug categories, "all" for every one
}

// SandboxConfig holds code execution settings.
type SandboxConfig struct {
	WorkspaceDir    string            `yaml:"workspace_dir"`     // default: ./workspace
	SecurityLevel   string            `yaml:"security_level"`    // low, medium, high; default: medium
	Timeout         time.Duration     `yaml:"timeout"`           // default: 30s
	MaxRetries      int               `yaml:"max_retries"`       // default: 2
	ScanInContainer bool              `yaml:"scan_in_container"` // default: true
	Runtime         string            `yaml:"runtime"`           // docker or podman; default: docker
	Memory          string            `yaml:"memory"`            // default: 512m
	CPUs            string            `yaml:"cpus"`              // default: 1
	User            string            `yaml:"user"`              // default: nobody
	Images          map[string]string `yaml:"images"`            // canonical language -> image
}

// ClassifierConfig holds error classifier settings.
type ClassifierConfig struct {
	HistoryLimit int `yaml:"history_limit"` // default: 1000, 0 = unbounded
}

// TasksConfig holds async task executor settings.
type TasksConfig struct {
	MaxConcurrent   int           `yaml:"max_concurrent"`   // default: 4
	CleanupMaxAge   time.Duration `yaml:"cleanup_max_age"`  // default: 1h
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // default: 10m, 0 disables the janitor
}

// EngineConfig holds the code-generation backend settings. An empty
// BackendURL disables the correction loop.
type EngineConfig struct {
	Provider     string            `yaml:"provider"`      // openai-compat or litellm; default: openai-compat
	ModelMapping map[string]string `yaml:"model_mapping"` // litellm only: model -> proxy route
	BackendURL   string            `yaml:"backend_url"`
	APIKey       string            `yaml:"api_key"`
	APIKeyFile   string            `yaml:"api_key_file"` // _file variant for api_key
	Model        string            `yaml:"model"`
	Temperature  *float64          `yaml:"temperature"`
	MaxTokens    *int              `yaml:"max_tokens"`
	Timeout      time.Duration     `yaml:"timeout"` // default: 120s
}

// SearchConfig holds web search settings.
type SearchConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Backend          string `yaml:"backend"` // searxng or perplexica; default: searxng
	URL              string `yaml:"url"`
	MaxResults       int    `yaml:"max_results"`       // default: 3
	FocusMode        string `yaml:"focus_mode"`        // default: webSearch
	OptimizationMode string `yaml:"optimization_mode"` // perplexica only; default: balanced
}

// HistoryConfig holds execution-history settings.
type HistoryConfig struct {
	Type     string         `yaml:"type"`     // memory, postgres or none; default: memory
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // none, apikey or jwt; default: none
	APIKeys []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`

	// RateLimit caps requests per subject per minute; 0 disables it.
	RateLimit int `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key" json:"key"`
	KeyFile string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject string `yaml:"subject" json:"subject"`
}

// JWTConfig holds HMAC-signed token settings.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"` // _file variant for secret
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
}

// MCPConfig holds the embedded MCP server settings.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: /mcp
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Sandbox: SandboxConfig{
			WorkspaceDir:    "./workspace",
			SecurityLevel:   "medium",
			Timeout:         30 * time.Second,
			MaxRetries:      2,
			ScanInContainer: true,
			Runtime:         "docker",
			Memory:          "512m",
			CPUs:            "1",
			User:            "nobody",
		},
		Classifier: ClassifierConfig{
			HistoryLimit: 1000,
		},
		Tasks: TasksConfig{
			MaxConcurrent:   4,
			CleanupMaxAge:   time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Engine: EngineConfig{
			Provider: "openai-compat",
			Timeout:  120 * time.Second,
		},
		Search: SearchConfig{
			Backend:          "searxng",
			MaxResults:       3,
			FocusMode:        "webSearch",
			OptimizationMode: "balanced",
		},
		History: HistoryConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		MCP: MCPConfig{
			Enabled: true,
			Path:    "/mcp",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
