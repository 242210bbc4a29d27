//go:build integration

package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/document-review-service/internal/config"
)

// startPostgres runs a throwaway Postgres and returns a DB connected to it.
func startPostgres(t *testing.T) *DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("document_review_test"),
		tcpostgres.WithUsername("docreview"),
		tcpostgres.WithPassword("testpassword"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := New(ctx, &config.DatabaseConfig{
		Host:              host,
		Port:              port.Int(),
		Name:              "document_review_test",
		User:              "docreview",
		Password:          "testpassword",
		SSLMode:           "disable",
		MaxConns:          4,
		MinConns:          1,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestMigrator_Lifecycle(t *testing.T) {
	db := startPostgres(t)
	logger := zerolog.Nop()

	m, err := NewMigrator(db, "", logger)
	require.NoError(t, err)
	defer m.Close()

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, m.Up())
	require.NoError(t, m.Up(), "up is idempotent")

	version, dirty, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, db.Ping(context.Background()))
	var tables int
	require.NoError(t, db.QueryRow(context.Background(),
		`SELECT count(*) FROM information_schema.tables WHERE table_name IN ('job_tracking_records', 'outbox_events')`).Scan(&tables))
	assert.Equal(t, 2, tables)

	require.NoError(t, m.Steps(-1))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.Force(1))
	require.NoError(t, m.Down())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestMigrator_FilePath(t *testing.T) {
	db := startPostgres(t)

	cwd, err := os.Getwd()
	require.NoError(t, err)

	m, err := NewMigrator(db, filepath.Join(cwd, "..", "..", "migrations"), zerolog.Nop())
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Up())

	_, err = NewMigrator(db, "/nonexistent/migrations", zerolog.Nop())
	assert.ErrorContains(t, err, "migrations path validation failed")
}
