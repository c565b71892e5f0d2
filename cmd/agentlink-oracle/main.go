package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gagliardetto/solana-go"

	"github.com/abhinag007/AgentLink/internal/config"
	"github.com/abhinag007/AgentLink/internal/eventledger"
	"github.com/abhinag007/AgentLink/internal/identity"
	"github.com/abhinag007/AgentLink/internal/ledger"
	"github.com/abhinag007/AgentLink/internal/lock"
	"github.com/abhinag007/AgentLink/internal/log"
	"github.com/abhinag007/AgentLink/internal/storage"
	"github.com/abhinag007/AgentLink/internal/webhook"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		os.Exit(runServe(args))
	case "register-bot":
		os.Exit(runRegisterBot(args))
	case "boost":
		os.Exit(runBoost(args))
	case "version":
		fmt.Printf("agentlink-oracle version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`agentlink-oracle - GitHub-to-Solana reputation oracle bridge

Usage:
  agentlink-oracle <command> [flags]

Commands:
  serve          Run the oracle service in the foreground
  register-bot   Register the oracle's own agent account on-chain (one-time)
  boost          Manually credit reputation to a wallet's agent account
  version        Show version information
  help           Show this help message

Use 'agentlink-oracle <command> --help' for command-specific flags.
`)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("agentlink-oracle starting", "version", version, "config", *configPath)

	if cfg.Webhook.Secret == "" {
		logger.Warn("webhook secret is empty, all deliveries will be rejected")
	}

	pidLock, err := lock.AcquirePIDLock(pidLockPath(cfg))
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	client, err := newLedgerClient(cfg)
	if err != nil {
		logger.Error("failed to initialize ledger client", "error", err)
		return 1
	}
	logger.Info("ledger client ready",
		"oracle", client.SignerAddress().String(),
		"program_id", client.ProgramID().String(),
		"rpc_url", client.Endpoint(),
	)

	identities := identity.NewStore(db)
	events := eventledger.New(db)
	dispatcher := webhook.NewDispatcher(identities, events, client, log.WithComponent("dispatcher"))

	server := webhook.New(webhook.Config{
		Listen:          cfg.Server.Listen,
		Secret:          cfg.Webhook.Secret,
		SignatureHeader: cfg.Webhook.SignatureHeader,
		DeliveryHeader:  cfg.Webhook.DeliveryHeader,
		MaxBodySize:     cfg.Webhook.MaxBodySize,
		APIKey:          cfg.Server.APIKey,
	}, dispatcher, identities, client, log.WithComponent("webhook"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && err != context.Canceled {
			errCh <- err
		}
	}()

	logger.Info("agentlink-oracle running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("agentlink-oracle stopped")
	return 0
}

func runRegisterBot(args []string) int {
	fs := flag.NewFlagSet("register-bot", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	name := fs.String("name", "Oracle_Auto_Bot", "Agent display name")
	github := fs.String("github", "https://github.com/agent-link/oracle", "Agent GitHub reference")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel)

	client, err := newLedgerClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize ledger client: %v\n", err)
		return 1
	}

	agentAddr, _, err := ledger.DeriveAgentAddress(client.ProgramID(), client.SignerAddress())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Derivation failed: %v\n", err)
		return 1
	}
	fmt.Printf("Agent account: %s\n", agentAddr)
	fmt.Printf("Oracle wallet: %s\n", client.SignerAddress())

	sig, err := client.RegisterAgent(context.Background(), *name, *github)
	if ledger.IsKind(err, ledger.KindAlreadyProcessed) {
		fmt.Println("Oracle bot is already registered.")
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Registration failed: %v\n", err)
		return 1
	}

	fmt.Printf("Oracle bot registered. Transaction: %s\n", sig)
	return 0
}

func runBoost(args []string) int {
	fs := flag.NewFlagSet("boost", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	wallet := fs.String("wallet", "", "Owner wallet address to credit")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *wallet == "" {
		fmt.Fprintf(os.Stderr, "Usage: agentlink-oracle boost --wallet <address> [--config PATH]\n")
		return 1
	}

	owner, err := solana.PublicKeyFromBase58(*wallet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid wallet address: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel)

	client, err := newLedgerClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize ledger client: %v\n", err)
		return 1
	}

	sig, err := client.AddReputation(context.Background(), owner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Boost failed: %v\n", err)
		return 1
	}

	fmt.Printf("Reputation credited. Transaction: %s\n", sig)
	return 0
}

func newLedgerClient(cfg *config.Config) (*ledger.Client, error) {
	signer, err := ledger.LoadKeypair(cfg.Solana.KeypairPath)
	if err != nil {
		return nil, err
	}
	return ledger.New(cfg.Solana, signer, log.WithComponent("ledger"))
}

func pidLockPath(cfg *config.Config) string {
	dbPath := cfg.State.Path
	dbDir := filepath.Dir(dbPath)
	dbBase := filepath.Base(dbPath)
	ext := filepath.Ext(dbBase)
	return filepath.Join(dbDir, dbBase[:len(dbBase)-len(ext)]+".pid")
}
