// Command server runs the AgentOS Agent API: signed agent requests against
// policy-governed smart wallets.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/agentos/agentos/internal/config"
	"github.com/agentos/agentos/internal/logging"
	"github.com/agentos/agentos/internal/server"
)

// Set with -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("agentos %s (%s, built %s)\n", Version, Commit, BuildTime)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logging.New(config.DefaultLogLevel, config.DefaultLogFormat).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("agentos starting",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
		"chain_id", cfg.ChainID,
		"demo_chain", cfg.DemoChain,
		"server_signer", cfg.HasServerSigner(),
	)

	srv, err := server.New(cfg, server.WithLogger(logger), server.WithVersion(Version))
	if err != nil {
		logger.Error("server init failed", "error", err)
		os.Exit(1)
	}
	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
