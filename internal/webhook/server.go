// Package webhook hosts the oracle's HTTP surface: the GitHub webhook
// endpoint, wallet registration, and status reporting.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abhinag007/AgentLink/internal/auth"
)

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// Secret is the HMAC shared secret for signature verification. Empty
	// fails closed: every delivery is rejected.
	Secret string

	// SignatureHeader carries the HMAC signature ("X-Hub-Signature-256").
	SignatureHeader string

	// DeliveryHeader carries the sender-assigned delivery ID
	// ("X-GitHub-Delivery").
	DeliveryHeader string

	// MaxBodySize is the maximum allowed request body size in bytes.
	MaxBodySize int64

	// APIKey guards POST /register when non-empty.
	APIKey string
}

// IdentityRegistrar persists GitHub-to-wallet registrations.
type IdentityRegistrar interface {
	Upsert(ctx context.Context, githubUsername, walletAddress string) error
}

// LedgerInfo exposes the oracle's ledger identity for the status endpoint.
type LedgerInfo interface {
	SignerAddress() solana.PublicKey
	Endpoint() string
	ProgramID() solana.PublicKey
}

// Server represents the oracle HTTP server.
type Server struct {
	config     Config
	dispatcher *Dispatcher
	identities IdentityRegistrar
	info       LedgerInfo
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new oracle server instance.
func New(config Config, dispatcher *Dispatcher, identities IdentityRegistrar, info LedgerInfo, logger *slog.Logger) *Server {
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		identities: identities,
		info:       info,
		logger:     logger,
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: DefaultSubmitTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("oracle server starting", "listen", s.config.Listen)

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("oracle server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("oracle server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("oracle server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Post("/webhook/github", s.handleWebhook)
	r.Post("/register", s.handleRegister)

	return r
}

// loggingMiddleware logs HTTP requests (excludes payload content).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleWebhook authenticates and dispatches one GitHub delivery.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	limitedReader := io.LimitReader(r.Body, s.config.MaxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	signature := r.Header.Get(s.config.SignatureHeader)
	if err := verifySignature(body, signature, s.config.Secret); err != nil {
		s.logger.Warn("webhook signature verification failed",
			"request_id", middleware.GetReqID(r.Context()),
		)
		s.respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	ev, err := ParseEvent(body)
	if errors.Is(err, ErrMalformedEvent) {
		s.respondError(w, http.StatusBadRequest, "malformed event payload")
		return
	}

	deliveryID := r.Header.Get(s.config.DeliveryHeader)
	if deliveryID == "" {
		deliveryID = FallbackDeliveryID(body)
	}

	status, resp := s.dispatcher.Dispatch(r.Context(), ev, deliveryID)
	s.respondJSON(w, status, resp)
}

// handleRegister links a GitHub username to a wallet address.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.config.APIKey != "" {
		token, err := auth.ExtractBearerToken(r)
		if err != nil || !auth.Verify(token, s.config.APIKey) {
			s.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.GithubUsername == "" || req.WalletAddress == "" {
		s.respondError(w, http.StatusBadRequest, "missing github_username or wallet_address")
		return
	}
	if _, err := solana.PublicKeyFromBase58(req.WalletAddress); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid wallet_address")
		return
	}

	if err := s.identities.Upsert(r.Context(), req.GithubUsername, req.WalletAddress); err != nil {
		s.logger.Error("failed to save identity mapping",
			"github_username", req.GithubUsername,
			"error", err,
		)
		s.respondError(w, http.StatusInternalServerError, "failed to save mapping")
		return
	}

	s.logger.Info("identity registered",
		"github_username", req.GithubUsername,
		"wallet", req.WalletAddress,
	)
	s.respondJSON(w, http.StatusOK, RegisterResponse{Success: true, Message: "user linked successfully"})
}

// handleStatus reports liveness and the oracle's ledger identity.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, StatusResponse{
		Status:    "ok",
		Oracle:    s.info.SignerAddress().String(),
		RPCURL:    s.info.Endpoint(),
		ProgramID: s.info.ProgramID().String(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
