package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		Host:     "db.example.com",
		Port:     5433,
		User:     "drover",
		Password: "secret",
		Database: "events",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.example.com port=5433 user=drover password=secret dbname=events sslmode=require",
		cfg.DSN())
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(1)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "drover", cfg.User)
	assert.Equal(t, "drover", cfg.Database)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, int32(10), cfg.MaxConns)
}

func TestLoadConfigFromEnvPoolFloor(t *testing.T) {
	t.Setenv("PG_MAX_POOL_SIZE", "3")

	cfg, err := LoadConfigFromEnv(7)
	require.NoError(t, err)
	assert.Equal(t, int32(7), cfg.MaxConns, "pool ceiling never drops below the worker count")
}

func TestLoadConfigFromEnvRejectsMalformedPort(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	_, err := LoadConfigFromEnv(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PORT")
}
