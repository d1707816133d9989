// Package config loads the arena settings.
//
// Every key has a default. An optional arena.json in the config directory
// overrides the defaults, and ARENA_* environment variables override both
// (dots become underscores, so sim.tickInterval is ARENA_SIM_TICKINTERVAL).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"space-arena/internal/arena"
	"space-arena/internal/generator"
	"space-arena/internal/journal"
	"space-arena/internal/recorder"
	"space-arena/internal/rules"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "arena.json"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARENA"

// =============================================================================
// WORLD & GRID
// =============================================================================

// WorldConfig is the arena rectangle.
type WorldConfig struct {
	Width  float64
	Height float64
}

// GridConfig tunes the spatial index.
type GridConfig struct {
	CellSize        float64
	MaxCellsPerBody int
}

// =============================================================================
// SIMULATION
// =============================================================================

// SimConfig tunes body loops and capacities.
type SimConfig struct {
	MaxDynamicBodies int
	TickInterval     time.Duration
	ShooterImmunity  time.Duration
	SweepInterval    time.Duration
	NotifyQueueSize  int

	PlayerMaxThrust              float64
	PlayerMaxAngularAcceleration float64
	PlayerAngularSpeed           float64

	TrailAsset        string
	TrailSize         float64
	TrailMaxLife      float64
	TrailEmissionRate float64
}

// RulesConfig selects the gameplay rules.
type RulesConfig struct {
	Boundary  string
	KillScore int
}

// GeneratorConfig tunes scene seeding and asteroid spawning.
type GeneratorConfig struct {
	Enabled          bool
	AsteroidAssets   []string
	MinSize          float64
	MaxSize          float64
	MaxSpeed         float64
	MaxAcc           float64
	MaxAngularSpeed  float64
	MaxCreationDelay time.Duration
	Players          int
	PlayerAsset      string
	PlayerSize       float64
	Seed             uint64
	Statics          []generator.Placement
	Decorators       []generator.Placement
}

// =============================================================================
// SERVERS
// =============================================================================

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr              string
	AllowedOrigins    []string
	RequestsPerSecond float64
	Burst             int
	BroadcastInterval time.Duration
	PreviewWidth      int
}

// DebugConfig holds the metrics and pprof listener.
type DebugConfig struct {
	Enabled bool
	Addr    string
}

// =============================================================================
// PERSISTENCE & LOGGING
// =============================================================================

// JournalConfig holds the event journal settings.
type JournalConfig struct {
	Enabled    bool
	Path       string
	BufferSize int
	MaxPerSec  float64
	MaxPerBody float64
}

// RecorderConfig holds the sqlite diagnostics recorder settings.
type RecorderConfig struct {
	Enabled   bool
	Path      string
	Interval  time.Duration
	Retention int
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Pretty bool
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	World     WorldConfig
	Grid      GridConfig
	Sim       SimConfig
	Rules     RulesConfig
	Generator GeneratorConfig
	Server    ServerConfig
	Debug     DebugConfig
	Journal   JournalConfig
	Recorder  RecorderConfig
	Log       LogConfig
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	sim := arena.DefaultConfig()
	v.SetDefault("world.width", sim.WorldWidth)
	v.SetDefault("world.height", sim.WorldHeight)

	v.SetDefault("grid.cellSize", sim.CellSize)
	v.SetDefault("grid.maxCellsPerBody", sim.MaxCellsPerBody)

	v.SetDefault("sim.maxDynamicBodies", sim.MaxDynamicBodies)
	v.SetDefault("sim.tickInterval", sim.TickInterval)
	v.SetDefault("sim.shooterImmunity", sim.ShooterImmunity)
	v.SetDefault("sim.sweepInterval", sim.SweepInterval)
	v.SetDefault("sim.notifyQueueSize", sim.NotifyQueueSize)
	v.SetDefault("sim.player.maxThrust", sim.Player.MaxThrust)
	v.SetDefault("sim.player.maxAngularAcceleration", sim.Player.MaxAngularAcceleration)
	v.SetDefault("sim.player.angularSpeed", sim.Player.AngularSpeed)
	v.SetDefault("sim.trail.asset", sim.Trail.AssetID)
	v.SetDefault("sim.trail.size", sim.Trail.Size)
	v.SetDefault("sim.trail.maxLife", sim.Trail.MaxLife)
	v.SetDefault("sim.trail.emissionRate", sim.Trail.EmissionRate)

	r := rules.DefaultConfig()
	v.SetDefault("rules.boundary", string(r.Boundary))
	v.SetDefault("rules.killScore", r.KillScore)

	g := generator.DefaultConfig()
	v.SetDefault("generator.enabled", true)
	v.SetDefault("generator.asteroidAssets", g.AsteroidAssets)
	v.SetDefault("generator.minSize", g.MinSize)
	v.SetDefault("generator.maxSize", g.MaxSize)
	v.SetDefault("generator.maxSpeed", g.MaxSpeed)
	v.SetDefault("generator.maxAcc", g.MaxAcc)
	v.SetDefault("generator.maxAngularSpeed", g.MaxAngularSpeed)
	v.SetDefault("generator.maxCreationDelay", g.MaxCreationDelay)
	v.SetDefault("generator.players", g.Players)
	v.SetDefault("generator.playerAsset", g.PlayerAsset)
	v.SetDefault("generator.playerSize", g.PlayerSize)
	v.SetDefault("generator.seed", g.Seed)
	v.SetDefault("generator.statics", g.Statics)
	v.SetDefault("generator.decorators", g.Decorators)

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:*", "http://127.0.0.1:*"})
	v.SetDefault("server.requestsPerSecond", 20.0)
	v.SetDefault("server.burst", 40)
	v.SetDefault("server.broadcastInterval", 50*time.Millisecond)
	v.SetDefault("server.previewWidth", 800)

	v.SetDefault("debug.enabled", true)
	v.SetDefault("debug.addr", "127.0.0.1:6060")

	j := journal.DefaultConfig()
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", "./arena-journal.jsonl")
	v.SetDefault("journal.bufferSize", j.BufferSize)
	v.SetDefault("journal.maxPerSec", j.MaxPerSec)
	v.SetDefault("journal.maxPerBody", j.MaxPerBody)

	rec := recorder.DefaultConfig()
	v.SetDefault("recorder.enabled", false)
	v.SetDefault("recorder.path", "./arena-diagnostics.db")
	v.SetDefault("recorder.interval", rec.Interval)
	v.SetDefault("recorder.retention", rec.Retention)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads defaults, then configDir/arena.json when present, then the
// environment. An empty configDir skips the file.
func Load(configDir string) (AppConfig, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configDir != "" {
		v.SetConfigName(strings.TrimSuffix(FileName, ".json"))
		v.SetConfigType("json")
		v.AddConfigPath(configDir)

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return AppConfig{}, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	return FromViper(v)
}

// FromViper builds an AppConfig from a populated viper instance.
func FromViper(v *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		World: WorldConfig{
			Width:  v.GetFloat64("world.width"),
			Height: v.GetFloat64("world.height"),
		},
		Grid: GridConfig{
			CellSize:        v.GetFloat64("grid.cellSize"),
			MaxCellsPerBody: v.GetInt("grid.maxCellsPerBody"),
		},
		Sim: SimConfig{
			MaxDynamicBodies:             v.GetInt("sim.maxDynamicBodies"),
			TickInterval:                 v.GetDuration("sim.tickInterval"),
			ShooterImmunity:              v.GetDuration("sim.shooterImmunity"),
			SweepInterval:                v.GetDuration("sim.sweepInterval"),
			NotifyQueueSize:              v.GetInt("sim.notifyQueueSize"),
			PlayerMaxThrust:              v.GetFloat64("sim.player.maxThrust"),
			PlayerMaxAngularAcceleration: v.GetFloat64("sim.player.maxAngularAcceleration"),
			PlayerAngularSpeed:           v.GetFloat64("sim.player.angularSpeed"),
			TrailAsset:                   v.GetString("sim.trail.asset"),
			TrailSize:                    v.GetFloat64("sim.trail.size"),
			TrailMaxLife:                 v.GetFloat64("sim.trail.maxLife"),
			TrailEmissionRate:            v.GetFloat64("sim.trail.emissionRate"),
		},
		Rules: RulesConfig{
			Boundary:  v.GetString("rules.boundary"),
			KillScore: v.GetInt("rules.killScore"),
		},
		Generator: GeneratorConfig{
			Enabled:          v.GetBool("generator.enabled"),
			AsteroidAssets:   v.GetStringSlice("generator.asteroidAssets"),
			MinSize:          v.GetFloat64("generator.minSize"),
			MaxSize:          v.GetFloat64("generator.maxSize"),
			MaxSpeed:         v.GetFloat64("generator.maxSpeed"),
			MaxAcc:           v.GetFloat64("generator.maxAcc"),
			MaxAngularSpeed:  v.GetFloat64("generator.maxAngularSpeed"),
			MaxCreationDelay: v.GetDuration("generator.maxCreationDelay"),
			Players:          v.GetInt("generator.players"),
			PlayerAsset:      v.GetString("generator.playerAsset"),
			PlayerSize:       v.GetFloat64("generator.playerSize"),
			Seed:             v.GetUint64("generator.seed"),
		},
		Server: ServerConfig{
			Addr:              v.GetString("server.addr"),
			AllowedOrigins:    v.GetStringSlice("server.allowedOrigins"),
			RequestsPerSecond: v.GetFloat64("server.requestsPerSecond"),
			Burst:             v.GetInt("server.burst"),
			BroadcastInterval: v.GetDuration("server.broadcastInterval"),
			PreviewWidth:      v.GetInt("server.previewWidth"),
		},
		Debug: DebugConfig{
			Enabled: v.GetBool("debug.enabled"),
			Addr:    v.GetString("debug.addr"),
		},
		Journal: JournalConfig{
			Enabled:    v.GetBool("journal.enabled"),
			Path:       v.GetString("journal.path"),
			BufferSize: v.GetInt("journal.bufferSize"),
			MaxPerSec:  v.GetFloat64("journal.maxPerSec"),
			MaxPerBody: v.GetFloat64("journal.maxPerBody"),
		},
		Recorder: RecorderConfig{
			Enabled:   v.GetBool("recorder.enabled"),
			Path:      v.GetString("recorder.path"),
			Interval:  v.GetDuration("recorder.interval"),
			Retention: v.GetInt("recorder.retention"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
	}

	if err := v.UnmarshalKey("generator.statics", &cfg.Generator.Statics); err != nil {
		return AppConfig{}, fmt.Errorf("decoding generator.statics: %w", err)
	}
	if err := v.UnmarshalKey("generator.decorators", &cfg.Generator.Decorators); err != nil {
		return AppConfig{}, fmt.Errorf("decoding generator.decorators: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate checks the settings that no component validates on its own.
func (c AppConfig) Validate() error {
	if _, err := rules.ParseBoundaryMode(c.Rules.Boundary); err != nil {
		return fmt.Errorf("rules.boundary: %w", err)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Server.RequestsPerSecond <= 0 || c.Server.Burst <= 0 {
		return errors.New("server rate limit must be positive")
	}
	if c.Server.BroadcastInterval <= 0 {
		return errors.New("server.broadcastInterval must be positive")
	}
	return nil
}

// =============================================================================
// COMPONENT CONVERSIONS
// =============================================================================

// Arena returns the simulation settings.
func (c AppConfig) Arena(log zerolog.Logger) arena.Config {
	cfg := arena.DefaultConfig()
	cfg.WorldWidth = c.World.Width
	cfg.WorldHeight = c.World.Height
	cfg.CellSize = c.Grid.CellSize
	cfg.MaxCellsPerBody = c.Grid.MaxCellsPerBody
	cfg.MaxDynamicBodies = c.Sim.MaxDynamicBodies
	cfg.TickInterval = c.Sim.TickInterval
	cfg.ShooterImmunity = c.Sim.ShooterImmunity
	cfg.SweepInterval = c.Sim.SweepInterval
	cfg.NotifyQueueSize = c.Sim.NotifyQueueSize
	cfg.Player = arena.PlayerTuning{
		MaxThrust:              c.Sim.PlayerMaxThrust,
		MaxAngularAcceleration: c.Sim.PlayerMaxAngularAcceleration,
		AngularSpeed:           c.Sim.PlayerAngularSpeed,
	}
	cfg.Trail = arena.TrailConfig{
		AssetID:      c.Sim.TrailAsset,
		Size:         c.Sim.TrailSize,
		MaxLife:      c.Sim.TrailMaxLife,
		EmissionRate: c.Sim.TrailEmissionRate,
	}
	cfg.Logger = log
	return cfg
}

// RulesConfig returns the gameplay rule settings. Validate has already
// checked the boundary mode.
func (c AppConfig) RulesConfig() rules.Config {
	mode, _ := rules.ParseBoundaryMode(c.Rules.Boundary)
	return rules.Config{Boundary: mode, KillScore: c.Rules.KillScore}
}

// GeneratorConfig returns the generator settings with the stock loadout.
func (c AppConfig) GeneratorConfig() generator.Config {
	g := c.Generator
	return generator.Config{
		AsteroidAssets:   g.AsteroidAssets,
		MinSize:          g.MinSize,
		MaxSize:          g.MaxSize,
		MaxSpeed:         g.MaxSpeed,
		MaxAcc:           g.MaxAcc,
		MaxAngularSpeed:  g.MaxAngularSpeed,
		MaxCreationDelay: g.MaxCreationDelay,
		Players:          g.Players,
		PlayerAsset:      g.PlayerAsset,
		PlayerSize:       g.PlayerSize,
		Weapons:          generator.DefaultWeapons(),
		Statics:          g.Statics,
		Decorators:       g.Decorators,
		Seed:             g.Seed,
	}
}

// JournalConfig returns the journal settings.
func (c AppConfig) JournalConfig() journal.Config {
	cfg := journal.DefaultConfig()
	cfg.Path = c.Journal.Path
	cfg.BufferSize = c.Journal.BufferSize
	cfg.MaxPerSec = c.Journal.MaxPerSec
	cfg.MaxPerBody = c.Journal.MaxPerBody
	return cfg
}

// RecorderConfig returns the recorder settings.
func (c AppConfig) RecorderConfig() recorder.Config {
	return recorder.Config{
		Path:      c.Recorder.Path,
		Interval:  c.Recorder.Interval,
		Retention: c.Recorder.Retention,
	}
}
