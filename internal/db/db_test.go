package db

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-service/internal/config"
)

func TestConnectSQLiteAndMigrate(t *testing.T) {
	gdb, err := Connect(config.Database{Driver: "sqlite", DSN: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, Migrate(gdb, zerolog.Nop()))
	require.NoError(t, Migrate(gdb, zerolog.Nop()), "migrations are idempotent")

	for _, table := range []string{"owners", "approvals", "gate_events"} {
		assert.True(t, gdb.Migrator().HasTable(table), table)
	}
}

func TestConnectUnknownDriver(t *testing.T) {
	_, err := Connect(config.Database{Driver: "mysql"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unsupported")
}
