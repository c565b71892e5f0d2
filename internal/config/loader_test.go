package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `
state:
  path: ./data/oracle.db
webhook:
  secret: test-secret
solana:
  program_id: 1upL7DFZsCER26XZj2BxRFG9bwESf5JWS5w9dC9vFk
  keypair_path: /tmp/oracle-keypair.json
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "agentlink-oracle", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, "127.0.0.1:4000", cfg.Server.Listen)
	assert.Equal(t, "X-Hub-Signature-256", cfg.Webhook.SignatureHeader)
	assert.Equal(t, "X-GitHub-Delivery", cfg.Webhook.DeliveryHeader)
	assert.Equal(t, int64(1<<20), cfg.Webhook.MaxBodySize)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.Solana.RPCURL)
	assert.Equal(t, "confirmed", cfg.Solana.Commitment)
	assert.Equal(t, 60*time.Second, cfg.Solana.ConfirmTimeout)
	assert.Equal(t, 3, cfg.Solana.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Solana.Retry.BackoffBase)
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
service:
  name: oracle-staging
  log_level: debug
state:
  path: /var/lib/oracle/state.db
server:
  listen: 0.0.0.0:8080
  api_key: admin-key
webhook:
  secret: s3cret
  max_body_size: 65536
solana:
  rpc_url: http://localhost:8899
  program_id: 1upL7DFZsCER26XZj2BxRFG9bwESf5JWS5w9dC9vFk
  keypair_path: /tmp/key.json
  commitment: finalized
  confirm_timeout: 30s
  retry:
    max_attempts: 5
    backoff_base: 500ms
`))
	require.NoError(t, err)

	assert.Equal(t, "oracle-staging", cfg.Service.Name)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Listen)
	assert.Equal(t, "admin-key", cfg.Server.APIKey)
	assert.Equal(t, "s3cret", cfg.Webhook.Secret)
	assert.Equal(t, int64(65536), cfg.Webhook.MaxBodySize)
	assert.Equal(t, "finalized", cfg.Solana.Commitment)
	assert.Equal(t, 30*time.Second, cfg.Solana.ConfirmTimeout)
	assert.Equal(t, 5, cfg.Solana.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Solana.Retry.BackoffBase)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("ORACLE_TEST_SECRET", "from-env")

	cfg, err := Load(writeConfig(t, `
state:
  path: ./data/oracle.db
webhook:
  secret: ${ORACLE_TEST_SECRET}
solana:
  program_id: 1upL7DFZsCER26XZj2BxRFG9bwESf5JWS5w9dC9vFk
  keypair_path: /tmp/key.json
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Webhook.Secret)
}

func TestLoadUnsetEnvVarExpandsEmpty(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
state:
  path: ./data/oracle.db
webhook:
  secret: ${ORACLE_TEST_SECRET_DEFINITELY_UNSET}
solana:
  program_id: 1upL7DFZsCER26XZj2BxRFG9bwESf5JWS5w9dC9vFk
  keypair_path: /tmp/key.json
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Webhook.Secret)
}

func TestLoadResolvesDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(minimalConfig), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "test-secret", cfg.Webhook.Secret)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing program id",
			content: `
state:
  path: ./data/oracle.db
solana:
  keypair_path: /tmp/key.json
`,
			wantErr: "program_id",
		},
		{
			name: "missing keypair path",
			content: `
state:
  path: ./data/oracle.db
solana:
  program_id: 1upL7DFZsCER26XZj2BxRFG9bwESf5JWS5w9dC9vFk
`,
			wantErr: "keypair_path",
		},
		{
			name: "empty state path",
			content: `
state:
  path: ""
solana:
  program_id: 1upL7DFZsCER26XZj2BxRFG9bwESf5JWS5w9dC9vFk
  keypair_path: /tmp/key.json
`,
			wantErr: "state.path",
		},
		{
			name: "bad commitment",
			content: minimalConfig + `
  commitment: processed
`,
			wantErr: "commitment",
		},
		{
			name: "zero retry attempts",
			content: minimalConfig + `
  retry:
    max_attempts: 0
`,
			wantErr: "max_attempts",
		},
		{
			name:    "unparseable yaml",
			content: "state: [",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadAllowsEmptySecret(t *testing.T) {
	// The verifier fails closed on an empty secret; loading must still succeed
	// so the operator sees the startup warning instead of a crash.
	cfg, err := Load(writeConfig(t, `
state:
  path: ./data/oracle.db
solana:
  program_id: 1upL7DFZsCER26XZj2BxRFG9bwESf5JWS5w9dC9vFk
  keypair_path: /tmp/key.json
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Webhook.Secret)
}
