package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Economy   EconomyConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Events    EventsConfig
	World     WorldConfig
	Log       LogConfig
}

// EconomyConfig defines the tunables of the simulation.
type EconomyConfig struct {
	DefaultSupplyThreshold float64 `mapstructure:"default_supply_threshold"`
	DefaultVolatility      float64 `mapstructure:"default_volatility"`
	Drift                  float64 `mapstructure:"drift"`
	EventInterval          int64   `mapstructure:"event_interval"`
	TaxPeriod              string  `mapstructure:"tax_period"`
	HighTaxThreshold       float64 `mapstructure:"high_tax_threshold"`
	FillerEventChance      float64 `mapstructure:"filler_event_chance"`
	RandomSeed             int64   `mapstructure:"random_seed"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	MaxConns int32 `mapstructure:"max_conns"`
}

// DSN returns the postgres connection string for the configured database.
func (d DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.DBName)
	if d.MaxConns > 0 {
		dsn += fmt.Sprintf("?pool_max_conns=%d", d.MaxConns)
	}
	return dsn
}

// SchedulerConfig defines how often ticks are triggered.
type SchedulerConfig struct {
	TickIntervalMS int   `mapstructure:"tick_interval_ms"`
	StartTick      int64 `mapstructure:"start_tick"`
	MaxTicks       int64 `mapstructure:"max_ticks"`
}

// EventsConfig defines the websocket event hub settings.
type EventsConfig struct {
	ListenAddr  string  `mapstructure:"listen_addr"`
	ClientRate  float64 `mapstructure:"client_rate"`
	ClientBurst int     `mapstructure:"client_burst"`
}

// WorldConfig points at an optional YAML world fixture.
type WorldConfig struct {
	File string
}

// LogConfig defines the logger settings.
type LogConfig struct {
	Level string
}

// Default returns the configuration used when no file or environment overrides are present.
func Default() Config {
	return Config{
		Economy: EconomyConfig{
			DefaultSupplyThreshold: 100,
			DefaultVolatility:      0.05,
			Drift:                  0.05,
			EventInterval:          5,
			TaxPeriod:              "daily",
			HighTaxThreshold:       0.25,
			FillerEventChance:      0.1,
		},
		Database: DatabaseConfig{
			Driver: "memory",
			Host:   "localhost",
			Port:   5432,
			DBName: "ecosim",
		},
		Scheduler: SchedulerConfig{TickIntervalMS: 1000},
		Events: EventsConfig{
			ListenAddr:  ":8090",
			ClientRate:  50,
			ClientBurst: 100,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment still apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v, Default())

	v.SetEnvPrefix("ecosim")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.Economy.DefaultSupplyThreshold <= 0 {
		return fmt.Errorf("economy.default_supply_threshold must be positive, got %v", c.Economy.DefaultSupplyThreshold)
	}
	if c.Economy.DefaultVolatility < 0 {
		return fmt.Errorf("economy.default_volatility must not be negative, got %v", c.Economy.DefaultVolatility)
	}
	if c.Economy.EventInterval <= 0 {
		return fmt.Errorf("economy.event_interval must be positive, got %d", c.Economy.EventInterval)
	}
	switch c.Database.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("economy.default_supply_threshold", d.Economy.DefaultSupplyThreshold)
	v.SetDefault("economy.default_volatility", d.Economy.DefaultVolatility)
	v.SetDefault("economy.drift", d.Economy.Drift)
	v.SetDefault("economy.event_interval", d.Economy.EventInterval)
	v.SetDefault("economy.tax_period", d.Economy.TaxPeriod)
	v.SetDefault("economy.high_tax_threshold", d.Economy.HighTaxThreshold)
	v.SetDefault("economy.filler_event_chance", d.Economy.FillerEventChance)
	v.SetDefault("economy.random_seed", d.Economy.RandomSeed)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.DBName)
	v.SetDefault("database.max_conns", d.Database.MaxConns)

	v.SetDefault("scheduler.tick_interval_ms", d.Scheduler.TickIntervalMS)
	v.SetDefault("scheduler.start_tick", d.Scheduler.StartTick)
	v.SetDefault("scheduler.max_ticks", d.Scheduler.MaxTicks)

	v.SetDefault("events.listen_addr", d.Events.ListenAddr)
	v.SetDefault("events.client_rate", d.Events.ClientRate)
	v.SetDefault("events.client_burst", d.Events.ClientBurst)

	v.SetDefault("world.file", d.World.File)
	v.SetDefault("log.level", d.Log.Level)
}
