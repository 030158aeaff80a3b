package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, RUNBOX_CONFIG env, ./config.yaml, /etc/runbox/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. RUNBOX_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/runbox/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("RUNBOX_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/runbox/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// envString, envInt, envBool and envDuration copy a set variable into dst.
// Malformed numbers are reported rather than silently ignored.
func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func envBool(name string, dst *bool) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = b
	return nil
}

// envDuration accepts Go durations ("45s") or plain seconds ("45").
func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

// applyEnvOverrides maps RUNBOX_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) error {
	envString("RUNBOX_LOG_LEVEL", &cfg.Logging.Level)
	envString("RUNBOX_LOG_FORMAT", &cfg.Logging.Format)
	envString("RUNBOX_WORKSPACE", &cfg.Sandbox.WorkspaceDir)
	envString("RUNBOX_SECURITY_LEVEL", &cfg.Sandbox.SecurityLevel)
	envString("RUNBOX_CONTAINER_RUNTIME", &cfg.Sandbox.Runtime)
	envString("RUNBOX_BACKEND_URL", &cfg.Engine.BackendURL)
	envString("RUNBOX_MODEL", &cfg.Engine.Model)
	envString("RUNBOX_PROVIDER", &cfg.Engine.Provider)
	envString("RUNBOX_API_KEY", &cfg.Engine.APIKey)
	envString("RUNBOX_SEARCH_BACKEND", &cfg.Search.Backend)
	envString("RUNBOX_FOCUS_MODE", &cfg.Search.FocusMode)
	envString("RUNBOX_HISTORY", &cfg.History.Type)
	envString("RUNBOX_POSTGRES_DSN", &cfg.History.Postgres.DSN)
	envString("RUNBOX_AUTH_TYPE", &cfg.Auth.Type)
	envString("RUNBOX_JWT_SECRET", &cfg.Auth.JWT.Secret)

	// Setting a search URL implies enabling search.
	if v := os.Getenv("RUNBOX_SEARCH_URL"); v != "" {
		cfg.Search.URL = v
		cfg.Search.Enabled = true
	}

	errs := []error{
		envInt("RUNBOX_PORT", &cfg.Server.Port),
		envInt("RUNBOX_MAX_RETRIES", &cfg.Sandbox.MaxRetries),
		envInt("RUNBOX_HISTORY_SIZE", &cfg.History.MaxSize),
		envInt("RUNBOX_MAX_CONCURRENT", &cfg.Tasks.MaxConcurrent),
		envBool("RUNBOX_SCAN_IN_CONTAINER", &cfg.Sandbox.ScanInContainer),
		envBool("RUNBOX_MCP_ENABLED", &cfg.MCP.Enabled),
		envDuration("RUNBOX_TIMEOUT", &cfg.Sandbox.Timeout),
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	// RUNBOX_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("RUNBOX_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		cfg.Auth.APIKeys = keys
	}
	return nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	if err := resolveFile("engine.api_key_file", cfg.Engine.APIKeyFile, &cfg.Engine.APIKey); err != nil {
		return err
	}
	if err := resolveFile("history.postgres.dsn_file", cfg.History.Postgres.DSNFile, &cfg.History.Postgres.DSN); err != nil {
		return err
	}
	if err := resolveFile("auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret); err != nil {
		return err
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if err := resolveFile(fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key); err != nil {
			return err
		}
	}
	return nil
}

func resolveFile(field, path string, dst *string) error {
	if path == "" || *dst != "" {
		return nil
	}
	val, err := readSecretFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = val
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
