package config

import (
	"os"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/util"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config provides configuration for the poker coordination server
type Config struct {
	loaded bool

	ListenAddr     string `yaml:"listenAddr" envconfig:"listen_addr"`
	PGDSN          string `yaml:"pgDsn" envconfig:"pg_dsn"`
	MigrationsPath string `yaml:"migrationsPath" envconfig:"migrations_path"`

	Redis struct {
		// Enabled switches snapshot persistence from in-process memory to Redis
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	}

	Wallet struct {
		// GuestBalance seeds the in-memory bankroll when Postgres is not configured
		GuestBalance int64 `yaml:"guestBalance" envconfig:"guest_balance"`
	}

	JWT struct {
		PublicKey  string `yaml:"publicKey" envconfig:"public_key"`
		PrivateKey string `yaml:"privateKey" envconfig:"private_key"`
	}

	Log struct {
		Level             string `yaml:"level"`
		DisableAccessLogs bool   `yaml:"disableAccessLogs" envconfig:"disable_access_logs"`
	}

	Game struct {
		// ReservationTTL is how long a seat reservation is held
		ReservationTTL time.Duration `yaml:"reservationTtl" envconfig:"reservation_ttl"`
		// ReconnectGrace is how long a disconnected player keeps their seat
		ReconnectGrace time.Duration `yaml:"reconnectGrace" envconfig:"reconnect_grace"`
		// NewHandDelay is the pause between a finished hand and the next deal
		NewHandDelay time.Duration `yaml:"newHandDelay" envconfig:"new_hand_delay"`
	}

	Lobby struct {
		BatchWindow     time.Duration `yaml:"batchWindow" envconfig:"batch_window"`
		MaxBatchSize    int           `yaml:"maxBatchSize" envconfig:"max_batch_size"`
		RefreshInterval time.Duration `yaml:"refreshInterval" envconfig:"refresh_interval"`
		CleanupInterval time.Duration `yaml:"cleanupInterval" envconfig:"cleanup_interval"`
		QueryCacheTTL   time.Duration `yaml:"queryCacheTtl" envconfig:"query_cache_ttl"`
	}
}

var config Config

// Instance returns a singleton instance
// If the config hasn't been loaded, it will be loaded
func Instance() Config {
	if !config.loaded {
		if err := Load(); err != nil {
			panic(err)
		}
	}

	return config
}

// Load will load the configuration
// A missing config file is not an error; environment variables and defaults apply
func Load() error {
	config = defaults()

	configFile := util.Getenv("POKERD_CONFIG_FILE", "config.yaml")
	file, err := os.Open(configFile)
	if err == nil {
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&config); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := envconfig.Process("pokerd", &config); err != nil {
		return err
	}

	config.loaded = true
	return nil
}

// DefaultConfig returns the built-in defaults before any file or environment
// overrides apply
func DefaultConfig() Config {
	return defaults()
}

func defaults() Config {
	var c Config
	c.ListenAddr = ":5000"
	c.MigrationsPath = "./sql"
	c.Redis.Addr = "localhost:6379"
	c.Wallet.GuestBalance = 10000
	c.Game.ReservationTTL = time.Second * 60
	c.Game.ReconnectGrace = time.Second * 30
	c.Game.NewHandDelay = time.Second * 5
	c.Lobby.BatchWindow = time.Millisecond * 100
	c.Lobby.MaxBatchSize = 50
	c.Lobby.RefreshInterval = time.Second * 5
	c.Lobby.CleanupInterval = time.Second * 60
	c.Lobby.QueryCacheTTL = time.Second * 5
	return c
}
