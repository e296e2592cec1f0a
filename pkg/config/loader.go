package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// configFileName is the single YAML file read from the config directory.
const configFileName = "sentra.yaml"

// Load reads, expands, merges and validates the configuration file in
// configDir.
//
// Steps performed:
//  1. Read sentra.yaml (absence is not an error; defaults apply)
//  2. Expand {{.VAR}} environment references
//  3. Parse YAML into a Config
//  4. Merge user values over built-in defaults
//  5. Validate everything fail-fast
//
// The returned Config is ready to publish via Store. Both boot and SIGHUP
// reload go through this single path, so a config that boots also reloads.
func Load(configDir string) (*Config, error) {
	path := filepath.Join(configDir, configFileName)
	log := slog.With("config_file", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Warn("No configuration file found, using built-in defaults")
	case err != nil:
		return nil, NewLoadError(path, err)
	default:
		expanded := ExpandEnv(data)
		user := &Config{}
		if err := yaml.Unmarshal(expanded, user); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		// User values win over defaults; zero values in the user file keep
		// the default.
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("failed to merge configuration: %w", err))
		}
		log.Info("Loaded configuration file")
	}

	applyEnvOverrides(cfg)

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return cfg, nil
}

// applyEnvOverrides fills connection settings from well-known environment
// variables when the YAML left them empty. Secrets are only ever read from
// the environment; they never appear in process arguments.
func applyEnvOverrides(cfg *Config) {
	setIfEmpty(&cfg.Branches.Semantic.VectorStore.Host, "VECTORSTORE_HOST")
	setIfEmpty(&cfg.Branches.Semantic.VectorStore.Database, "VECTORSTORE_DATABASE")
	setIfEmpty(&cfg.Branches.Semantic.VectorStore.User, "VECTORSTORE_USER")
	setIfEmpty(&cfg.Branches.Semantic.VectorStore.Password, "VECTORSTORE_PASSWORD")
	setIfEmpty(&cfg.Database.Host, "DB_HOST")
	setIfEmpty(&cfg.Database.User, "DB_USER")
	setIfEmpty(&cfg.Database.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Database, "DB_NAME")
	setIfEmpty(&cfg.Branches.Semantic.EmbedderEndpoint, "EMBEDDER_ENDPOINT")
	setIfEmpty(&cfg.Branches.Safety.Endpoint, "SAFETY_ENDPOINT")
	setIfEmpty(&cfg.PII.NEREndpoint, "NER_ENDPOINT")
}

func setIfEmpty(dst *string, envKey string) {
	if *dst == "" {
		if v := os.Getenv(envKey); v != "" {
			*dst = v
		}
	}
}
