package docstore

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/postgres"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	if os.Getenv("TEST_POSTGRES_HOST") == "" {
		t.Skip("skipping: TEST_POSTGRES_HOST not set")
	}
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	db, err := postgres.New(config.PostgresConfig{
		Host:            os.Getenv("TEST_POSTGRES_HOST"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "invsearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "invsearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	return db
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestPostgresStore(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	_, err := db.DB.ExecContext(ctx, `DROP TABLE IF EXISTS documents; DROP SEQUENCE IF EXISTS document_seq;`)
	require.NoError(t, err)

	s := NewPostgres(db.DB)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))
	exerciseStore(t, s)
}
