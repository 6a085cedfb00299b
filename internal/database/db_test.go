package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/apparel-order-pipeline/internal/config"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

func TestSQLiteMigrations(t *testing.T) {
	db, err := Open(config.DriverSQLite, ":memory:", logger.NewNop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.RunMigrations())
	require.NoError(t, db.RunMigrations(), "migrations are idempotent")

	var tables []string
	err = db.DB.Select(&tables, `SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('orders', 'outbox_messages') ORDER BY name`)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "outbox_messages"}, tables)
}

func TestSQLiteUsesQuestionBindvars(t *testing.T) {
	db, err := Open(config.DriverSQLite, ":memory:", logger.NewNop())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "SELECT 1 WHERE 1 = ?", db.DB.Rebind("SELECT 1 WHERE 1 = ?"))
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: config.DriverSQLite, SQLitePath: ":memory:"}}

	db, err := New(cfg, logger.NewNop())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, config.DriverSQLite, db.Driver)
}
