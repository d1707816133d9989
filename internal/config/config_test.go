package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"space-arena/internal/rules"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1600.0, cfg.World.Width)
	assert.Equal(t, 1000.0, cfg.World.Height)
	assert.Equal(t, 128.0, cfg.Grid.CellSize)
	assert.Equal(t, 16, cfg.Grid.MaxCellsPerBody)
	assert.Equal(t, 5000, cfg.Sim.MaxDynamicBodies)
	assert.Equal(t, 30*time.Millisecond, cfg.Sim.TickInterval)
	assert.Equal(t, time.Second, cfg.Sim.ShooterImmunity)
	assert.Equal(t, 80.0, cfg.Sim.PlayerMaxThrust)
	assert.Equal(t, "die", cfg.Rules.Boundary)
	assert.Equal(t, 10, cfg.Rules.KillScore)
	assert.True(t, cfg.Generator.Enabled)
	assert.Equal(t, []string{"asteroid-1", "asteroid-2", "asteroid-3"}, cfg.Generator.AsteroidAssets)
	assert.Len(t, cfg.Generator.Statics, 2)
	assert.Len(t, cfg.Generator.Decorators, 1)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "127.0.0.1:6060", cfg.Debug.Addr)
	assert.False(t, cfg.Journal.Enabled)
	assert.False(t, cfg.Recorder.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Recorder.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	dir := writeConfig(t, `{
		"world": { "width": 800, "height": 600 },
		"sim": { "tickInterval": "10ms", "player": { "maxThrust": 120 } },
		"rules": { "boundary": "rebound" },
		"generator": {
			"players": 3,
			"statics": [ { "assetId": "planet", "size": 40, "x": 100, "y": 200 } ]
		},
		"log": { "level": "debug", "pretty": true }
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 800.0, cfg.World.Width)
	assert.Equal(t, 600.0, cfg.World.Height)
	assert.Equal(t, 10*time.Millisecond, cfg.Sim.TickInterval)
	assert.Equal(t, 120.0, cfg.Sim.PlayerMaxThrust)
	assert.Equal(t, 1000.0, cfg.Sim.PlayerMaxAngularAcceleration)
	assert.Equal(t, "rebound", cfg.Rules.Boundary)
	assert.Equal(t, 3, cfg.Generator.Players)
	require.Len(t, cfg.Generator.Statics, 1)
	assert.Equal(t, "planet", cfg.Generator.Statics[0].AssetID)
	assert.Equal(t, 200.0, cfg.Generator.Statics[0].Y)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := writeConfig(t, `{ "server": { "addr": ":4000" }, "grid": { "cellSize": 64 } }`)
	t.Setenv("ARENA_SERVER_ADDR", ":5000")
	t.Setenv("ARENA_SIM_TICKINTERVAL", "15ms")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, 64.0, cfg.Grid.CellSize)
	assert.Equal(t, 15*time.Millisecond, cfg.Sim.TickInterval)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1600.0, cfg.World.Width)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{ "world": `, "error reading config file"},
		{"unknown boundary", `{ "rules": { "boundary": "wrap" } }`, "rules.boundary"},
		{"empty addr", `{ "server": { "addr": "" } }`, "server.addr"},
		{"zero broadcast", `{ "server": { "broadcastInterval": "0s" } }`, "broadcastInterval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConversions(t *testing.T) {
	dir := writeConfig(t, `{
		"rules": { "boundary": "rebound", "killScore": 25 },
		"journal": { "path": "/tmp/j.jsonl", "maxPerBody": 5 },
		"recorder": { "path": "/tmp/r.db", "retention": 7 }
	}`)
	cfg, err := Load(dir)
	require.NoError(t, err)

	ac := cfg.Arena(zerolog.Nop())
	assert.Equal(t, cfg.World.Width, ac.WorldWidth)
	assert.Equal(t, cfg.Grid.CellSize, ac.CellSize)
	assert.Equal(t, cfg.Sim.PlayerAngularSpeed, ac.Player.AngularSpeed)
	assert.Equal(t, "trail", ac.Trail.AssetID)
	assert.Equal(t, 20.0, ac.Trail.EmissionRate)

	rc := cfg.RulesConfig()
	assert.Equal(t, rules.BoundaryRebound, rc.Boundary)
	assert.Equal(t, 25, rc.KillScore)

	gc := cfg.GeneratorConfig()
	assert.Len(t, gc.Weapons, 4)
	assert.Equal(t, cfg.Generator.MaxCreationDelay, gc.MaxCreationDelay)

	jc := cfg.JournalConfig()
	assert.Equal(t, "/tmp/j.jsonl", jc.Path)
	assert.Equal(t, 5.0, jc.MaxPerBody)
	assert.Equal(t, 64, jc.BatchSize)

	recCfg := cfg.RecorderConfig()
	assert.Equal(t, "/tmp/r.db", recCfg.Path)
	assert.Equal(t, 7, recCfg.Retention)
}
