// Package testutil provides postgres fixtures for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	serverOnce sync.Once
	serverDSN  string
	serverErr  error
)

// PGTest returns a freshly migrated database of its own for one test.
//
// Databases are created on the server named by POSTGRES_URL, or else on a
// postgres container started once per test binary. The test is skipped when
// neither is reachable. The database is dropped when the test ends.
//
//	db := testutil.PGTest(t)
func PGTest(t *testing.T) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	base := sharedServer(ctx)
	if serverErr != nil {
		t.Skipf("pgtest: postgres unavailable: %v", serverErr)
	}

	admin, err := sql.Open("postgres", base)
	if err != nil {
		t.Fatalf("pgtest: open server: %v", err)
	}

	name := "t_" + uuid.NewString()[:8]
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+name); err != nil {
		_ = admin.Close()
		t.Fatalf("pgtest: create database: %v", err)
	}

	dsn, err := withDatabase(base, name)
	if err != nil {
		t.Fatalf("pgtest: %v", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		_, _ = admin.ExecContext(context.Background(), "DROP DATABASE IF EXISTS "+name+" WITH (FORCE)")
		_ = admin.Close()
	})

	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("pgtest: goose dialect: %v", err)
	}
	if err := goose.UpContext(ctx, db, MigrationsDir(t)); err != nil {
		t.Fatalf("pgtest: migrate: %v", err)
	}
	return db
}

// sharedServer resolves the server DSN once. A started container is left
// to the testcontainers reaper when the test binary exits.
func sharedServer(ctx context.Context) string {
	serverOnce.Do(func() {
		if dsn := os.Getenv("POSTGRES_URL"); dsn != "" {
			serverDSN = dsn
			return
		}
		ctr, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("agentos"),
			postgres.WithUsername("agentos"),
			postgres.WithPassword("agentos"),
			testcontainers.WithEnv(map[string]string{"TZ": "UTC", "PGTZ": "UTC"}),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			serverErr = err
			return
		}
		serverDSN, serverErr = ctr.ConnectionString(ctx, "sslmode=disable")
	})
	return serverDSN
}

func withDatabase(dsn, name string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("POSTGRES_URL must be a postgres:// URL")
	}
	u.Path = "/" + name
	return u.String(), nil
}

// MigrationsDir finds the nearest migrations/ directory at or above the
// working directory.
func MigrationsDir(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("pgtest: getwd: %v", err)
	}
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("pgtest: no migrations/ directory above %s", dir)
		}
		dir = parent
	}
}
