package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.WindowHours)
	assert.Equal(t, 12, cfg.Engine.ClassifierLag)
	assert.Equal(t, 30, cfg.Engine.ContradictionBlockMins)
	assert.Equal(t, "thermal:fused-records", cfg.Ingest.Stream)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_WINDOW_HOURS", "4")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("INGEST_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Engine.WindowHours)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.False(t, cfg.Ingest.Enabled)
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres",
		Password: "secret", Database: "biosignal", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=biosignal sslmode=disable",
		c.GetDSN())
}
