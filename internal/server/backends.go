package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/agentos/agentos/internal/agentauth"
	"github.com/agentos/agentos/internal/agents"
	"github.com/agentos/agentos/internal/audit"
	"github.com/agentos/agentos/internal/chain"
	"github.com/agentos/agentos/internal/config"
	"github.com/agentos/agentos/internal/invoices"
	"github.com/agentos/agentos/internal/policy"
	"github.com/agentos/agentos/internal/proposal"
)

// Backend is the wallet contract access the server needs: reads for policy
// and proposals plus a signer for submitted mode.
type Backend interface {
	chain.Backend
	proposal.Signer
}

var (
	_ Backend = (*chain.Client)(nil)
	_ Backend = (*chain.Simulator)(nil)
)

// stores groups the persistence layer, Postgres or in-memory.
type stores struct {
	agents   agents.Store
	audit    audit.Store
	invoices invoices.Store
}

func openDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := goose.SetDialect("postgres"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("goose dialect: %w", err)
		}
		if err := goose.UpContext(ctx, db, cfg.MigrationsDir); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("migrations applied", "dir", cfg.MigrationsDir)
	}

	logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	return db, nil
}

func newStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			agents:   agents.NewMemoryStore(),
			audit:    audit.NewMemoryStore(),
			invoices: invoices.NewMemoryStore(),
		}
	}
	return stores{
		agents:   agents.NewPostgresStore(db),
		audit:    audit.NewPostgresStore(db),
		invoices: invoices.NewPostgresStore(db),
	}
}

// replayStore picks the nonce backend. "auto" prefers redis, then postgres,
// then process memory. The returned purger is nil for stores that expire
// keys themselves.
func replayStore(cfg *config.Config, db *sql.DB, rdb *redis.Client) (agentauth.ReplayStore, agentauth.Purger, string) {
	kind := cfg.ReplayStore
	if kind == "auto" {
		switch {
		case rdb != nil:
			kind = "redis"
		case db != nil:
			kind = "postgres"
		default:
			kind = "memory"
		}
	}

	switch kind {
	case "redis":
		// Keys outlive both sides of the timestamp window.
		return agentauth.NewRedisStore(rdb, 2*cfg.TimestampSkew), nil, kind
	case "postgres":
		s := agentauth.NewPostgresStore(db)
		return s, s, kind
	default:
		s := agentauth.NewMemoryStore()
		return s, s, "memory"
	}
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// newBackend connects to the wallet contracts over RPC, or starts the
// in-memory simulator when DEMO_CHAIN is set.
func newBackend(cfg *config.Config, logger *slog.Logger) (Backend, error) {
	if cfg.DemoChain {
		var signer common.Address
		if cfg.HasServerSigner() {
			key, err := chain.ParsePrivateKey(cfg.ServerSignerKey)
			if err != nil {
				return nil, err
			}
			signer = crypto.PubkeyToAddress(key.PublicKey)
		}
		logger.Warn("using simulated wallet contracts; nothing is sent on-chain")
		return chain.NewSimulator(signer, demoWallet(cfg, signer)), nil
	}

	client, err := chain.New(chain.Config{
		RPCURL:     cfg.RPCURL,
		PrivateKey: cfg.ServerSignerKey,
		ChainID:    cfg.ChainID,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to chain", "rpc", maskURL(cfg.RPCURL), "chain_id", cfg.ChainID,
		"server_signer", client.Address().Hex())
	return client, nil
}

// demoWallet is the template for simulated wallets: the server signer acts
// as the agent and amounts are in 6-decimal token units.
func demoWallet(cfg *config.Config, agent common.Address) chain.SimWallet {
	tokens := []common.Address{{}}
	if cfg.DemoToken != "" {
		tokens = append(tokens, common.HexToAddress(cfg.DemoToken))
	}
	return chain.SimWallet{
		Agent: agent,
		Human: common.HexToAddress(cfg.DemoHuman),
		Policy: policy.Policy{
			MaxAmount:         big.NewInt(1_000_000_000),
			DailyCap:          big.NewInt(5_000_000_000),
			RequiresApproval:  true,
			ApprovalThreshold: big.NewInt(100_000_000),
			AllowedTokens:     tokens,
		},
	}
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// maskURL drops credentials and query strings, which RPC providers use for API keys.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "***"
	}
	return u.String()
}
