package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddress)
	assert.Equal(t, 3, cfg.Game.MinPlayers)
	assert.True(t, cfg.Game.RequireReady)
	assert.Equal(t, 60*time.Second, cfg.Game.NightTime)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  http_address: ":9000"
game:
  night_time: 30s
  voting_time: 0s
database:
  driver: pebble
  pebble:
    path: /tmp/mafia-records
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("MAFIA_GAME_MIN_PLAYERS", "5")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.HTTPAddress)
	assert.Equal(t, 30*time.Second, cfg.Game.NightTime)
	assert.Equal(t, time.Duration(0), cfg.Game.VotingTime)
	assert.Equal(t, 180*time.Second, cfg.Game.DayTime)
	assert.Equal(t, "pebble", cfg.Database.Driver)
	assert.Equal(t, "/tmp/mafia-records", cfg.Database.Pebble.Path)
	assert.Equal(t, 5, cfg.Game.MinPlayers)
}

func TestLoadConfig_BadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o644))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}
