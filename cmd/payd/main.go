package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vorpalengineering/paylink-go/engine"
	"github.com/vorpalengineering/paylink-go/ledger"
	"github.com/vorpalengineering/paylink-go/rail"
	"github.com/vorpalengineering/paylink-go/rate"
	"github.com/vorpalengineering/paylink-go/store"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "engine/config.yaml", "Path to config file")
	flag.Parse()

	// Optional .env for secrets like PAYLINK_RPC_URL
	godotenv.Load()

	// Load config
	cfg, err := engine.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v", sig)
		cancel()
	}()

	// Pick the store backend
	var backend store.Backend
	if cfg.Database.Path != "" {
		sqlBackend, err := store.NewSQLiteBackend(cfg.Database.Path)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer sqlBackend.Close()
		backend = sqlBackend
	} else {
		backend = store.NewMemoryBackend()
	}

	// Pick the rate source
	var rates rate.Source
	if cfg.Pricing.RateURL != "" {
		rates = rate.NewHTTP(cfg.Pricing.RateURL, cfg.Pricing.Timeout())
	} else {
		rates = rate.Static{Rate: cfg.Pricing.Rate}
	}

	// Connect to the ledger
	ledgerClient, err := ledger.DialEVM(ledger.EVMConfig{
		RPCURL:        cfg.Ledger.RpcUrl,
		TokenAddress:  cfg.Ledger.TokenAddress,
		TokenDecimals: cfg.Ledger.TokenDecimals,
		Confirmations: cfg.Ledger.Confirmations,
	})
	if err != nil {
		log.Fatalf("Failed to connect to ledger: %v", err)
	}

	topup := rail.NewHTTPClient(cfg.TopUp.RailURL, cfg.TopUp.Timeout())

	// Create and start the engine
	e := engine.New(cfg, store.New(backend), rates, ledgerClient, topup)
	if err := e.Run(ctx); err != nil {
		log.Fatalf("Failed to run engine: %v", err)
	}
}
