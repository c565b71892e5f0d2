package config

import "time"

// Config represents the complete agentlink-oracle configuration.
type Config struct {
	Service Service `yaml:"service"`
	State   State   `yaml:"state"`
	Server  Server  `yaml:"server"`
	Webhook Webhook `yaml:"webhook"`
	Solana  Solana  `yaml:"solana"`
}

// Service defines core service settings.
type Service struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// State defines state storage settings.
type State struct {
	Path string `yaml:"path"`
}

// Server defines HTTP server settings.
type Server struct {
	Listen string `yaml:"listen"`

	// APIKey guards POST /register when set. Empty leaves registration open,
	// matching the reference deployment.
	APIKey string `yaml:"api_key,omitempty"`
}

// Webhook defines inbound webhook settings.
type Webhook struct {
	// Secret is the HMAC shared secret. Supports ${ENV} expansion.
	Secret string `yaml:"secret"`

	// SignatureHeader carries the sender's HMAC signature
	// (GitHub: "X-Hub-Signature-256").
	SignatureHeader string `yaml:"signature_header"`

	// DeliveryHeader carries the sender-assigned delivery ID
	// (GitHub: "X-GitHub-Delivery").
	DeliveryHeader string `yaml:"delivery_header"`

	MaxBodySize int64 `yaml:"max_body_size,omitempty"`
}

// Solana defines ledger connection and submission settings.
type Solana struct {
	RPCURL      string `yaml:"rpc_url"`
	ProgramID   string `yaml:"program_id"`
	KeypairPath string `yaml:"keypair_path"`

	// Commitment is the confirmation level to wait for before a submission
	// is reported as successful ("confirmed" or "finalized").
	Commitment string `yaml:"commitment"`

	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	Retry          Retry         `yaml:"retry"`
}

// Retry defines the internal retry budget for transient ledger failures.
type Retry struct {
	// MaxAttempts is the number of retries after the first submission
	// attempt: max_attempts transient failures still leave one try.
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: Service{
			Name:     "agentlink-oracle",
			LogLevel: "info",
		},
		State: State{
			Path: "./data/oracle.db",
		},
		Server: Server{
			Listen: "127.0.0.1:4000",
		},
		Webhook: Webhook{
			SignatureHeader: "X-Hub-Signature-256",
			DeliveryHeader:  "X-GitHub-Delivery",
			MaxBodySize:     1 << 20,
		},
		Solana: Solana{
			RPCURL:         "https://api.devnet.solana.com",
			Commitment:     "confirmed",
			ConfirmTimeout: 60 * time.Second,
			Retry: Retry{
				MaxAttempts: 3,
				BackoffBase: 2 * time.Second,
			},
		},
	}
}
