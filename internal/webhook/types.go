package webhook

// WebhookResponse is the JSON response for processed webhook deliveries.
type WebhookResponse struct {
	Success bool   `json:"success,omitempty"`
	Status  string `json:"status,omitempty"`
	Tx      string `json:"tx,omitempty"`
	Actor   string `json:"actor,omitempty"`
}

// RegisterRequest links a GitHub username to a Solana wallet.
type RegisterRequest struct {
	GithubUsername string `json:"github_username"`
	WalletAddress  string `json:"wallet_address"`
}

// RegisterResponse is the JSON response for successful registrations.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// StatusResponse reports bridge liveness and its ledger identity.
type StatusResponse struct {
	Status    string `json:"status"`
	Oracle    string `json:"oracle"`
	RPCURL    string `json:"rpc_url"`
	ProgramID string `json:"program_id"`
}

// ErrorResponse is the JSON response for webhook and registration errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DefaultMaxBodySize bounds inbound webhook bodies (1 MB).
const DefaultMaxBodySize = 1 << 20
