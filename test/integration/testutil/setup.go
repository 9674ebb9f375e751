//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tourneyhub/economy/internal/app"
	"github.com/tourneyhub/economy/internal/auth"
	"github.com/tourneyhub/economy/internal/handler"
	"github.com/tourneyhub/economy/internal/infra"
	"github.com/tourneyhub/economy/internal/repository"
)

const (
	TestJWTSecret           = "integration-test-secret-integration"
	TestStripeWebhookSecret = "whsec_test_integration_secret"

	// DSNEnv names the database the suite migrates and truncates.
	DSNEnv = "ECONOMY_TEST_DATABASE_URL"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server *httptest.Server
	Pool   *pgxpool.Pool
	Store  *repository.PgStore
	JWTMgr *auth.JWTManager
	Logger *slog.Logger
	t      *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func getSharedPool(t *testing.T, dsn string) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		if err := infra.RunMigrations(dsn, "", logger); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment with an httptest.Server backed by the
// real router and a Postgres store. The test is skipped when DSNEnv is unset.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", DSNEnv)
	}
	pool := getSharedPool(t, dsn)

	jwtMgr := auth.NewJWTManager(TestJWTSecret, time.Hour, time.Hour)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store := repository.NewPgStore(pool)

	router := app.NewRouter(app.RouterDeps{
		Store:               store,
		JWTMgr:              jwtMgr,
		Logger:              logger,
		StripeWebhookSecret: TestStripeWebhookSecret,
		Health:              map[string]handler.Pinger{"postgres": infra.PoolPinger{Pool: pool}},
	})

	env := &TestEnv{
		Server: httptest.NewServer(router),
		Pool:   pool,
		Store:  store,
		JWTMgr: jwtMgr,
		Logger: logger,
		t:      t,
	}

	// Clean before test to ensure isolation
	env.CleanAll()
	t.Cleanup(func() {
		env.Server.Close()
		env.CleanAll()
	})
	return env
}

// CleanAll truncates every economy table.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := env.Pool.Exec(ctx, `TRUNCATE event_outbox, prize_pools, transactions, wallets RESTART IDENTITY CASCADE`)
	if err != nil {
		env.t.Fatalf("CleanAll: %v", err)
	}
}
