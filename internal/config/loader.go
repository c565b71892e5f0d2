package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. ${VAR} references in the
// file are expanded from the process environment before parsing, so secrets
// can stay out of the config file itself.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnvVars(data)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// expandEnvVars substitutes ${VAR} with the environment value. Unset
// variables expand to the empty string; validate catches the ones that matter.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envVarPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func validate(cfg *Config) error {
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if cfg.Webhook.SignatureHeader == "" {
		return fmt.Errorf("webhook.signature_header is required")
	}
	if cfg.Webhook.MaxBodySize < 0 {
		return fmt.Errorf("webhook.max_body_size must be positive")
	}
	if cfg.Solana.RPCURL == "" {
		return fmt.Errorf("solana.rpc_url is required")
	}
	if cfg.Solana.ProgramID == "" {
		return fmt.Errorf("solana.program_id is required")
	}
	if cfg.Solana.KeypairPath == "" {
		return fmt.Errorf("solana.keypair_path is required")
	}
	switch cfg.Solana.Commitment {
	case "confirmed", "finalized":
	default:
		return fmt.Errorf("solana.commitment must be %q or %q, got %q", "confirmed", "finalized", cfg.Solana.Commitment)
	}
	if cfg.Solana.Retry.MaxAttempts < 1 {
		return fmt.Errorf("solana.retry.max_attempts must be at least 1")
	}
	// Note: webhook.secret may legitimately be empty here (e.g. the env var is
	// unset); the verifier fails closed in that case and rejects every event.
	return nil
}
