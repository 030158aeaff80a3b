package config

import (
	"errors"
	"fmt"

	"github.com/rhuss/runbox/pkg/api"
)

// Validate checks the configuration for required fields and valid values.
// All failures are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of trace, debug, info, warn, error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	if _, ok := api.ParseSecurityLevel(c.Sandbox.SecurityLevel); !ok {
		errs = append(errs, fmt.Errorf("sandbox.security_level must be low, medium or high, got %q", c.Sandbox.SecurityLevel))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.timeout must be > 0, got %v", c.Sandbox.Timeout))
	}
	if c.Sandbox.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("sandbox.max_retries must be >= 0, got %d", c.Sandbox.MaxRetries))
	}
	switch c.Engine.Provider {
	case "openai-compat", "litellm":
	default:
		errs = append(errs, fmt.Errorf("engine.provider must be \"openai-compat\" or \"litellm\", got %q", c.Engine.Provider))
	}
	switch c.Sandbox.Runtime {
	case "docker", "podman":
	default:
		errs = append(errs, fmt.Errorf("sandbox.runtime must be \"docker\" or \"podman\", got %q", c.Sandbox.Runtime))
	}
	if c.Sandbox.WorkspaceDir == "" {
		errs = append(errs, errors.New("sandbox.workspace_dir is required"))
	}

	if c.Classifier.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("classifier.history_limit must be >= 0, got %d", c.Classifier.HistoryLimit))
	}
	if c.Tasks.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("tasks.max_concurrent must be > 0, got %d", c.Tasks.MaxConcurrent))
	}

	if c.Search.Enabled {
		switch c.Search.Backend {
		case "searxng", "perplexica":
		default:
			errs = append(errs, fmt.Errorf("search.backend must be \"searxng\" or \"perplexica\", got %q", c.Search.Backend))
		}
		if c.Search.URL == "" {
			errs = append(errs, errors.New("search.url is required when search is enabled"))
		}
	}

	switch c.History.Type {
	case "memory", "none":
	case "postgres":
		if c.History.Postgres.DSN == "" && c.History.Postgres.DSNFile == "" {
			errs = append(errs, errors.New("history.postgres.dsn or history.postgres.dsn_file is required when history.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("history.type must be \"memory\", \"postgres\" or \"none\", got %q", c.History.Type))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, errors.New("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, errors.New("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if c.Auth.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit must be >= 0, got %d", c.Auth.RateLimit))
	}

	return errors.Join(errs...)
}
