package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInstance(t *testing.T) {
	clear1 := setEnv("POKERD_CONFIG_FILE", "testdata/config.yaml")
	defer clear1()
	clear2 := setEnv("POKERD_LISTEN_ADDR", ":9999")
	defer clear2()

	a := assert.New(t)
	a.NoError(Load())
	cfg := Instance()
	a.Equal(":9999", cfg.ListenAddr)
	a.Equal("redis.internal:6379", cfg.Redis.Addr)
	a.Equal(time.Second*45, cfg.Game.ReconnectGrace)

	// ensure it's only loaded once and we aren't handing out a pointer
	_ = os.Setenv("POKERD_LISTEN_ADDR", ":1111")
	cfg.ListenAddr = "bad"
	cfg = Instance()
	a.Equal(":9999", cfg.ListenAddr)
}

func TestDefaults(t *testing.T) {
	clear1 := setEnv("POKERD_CONFIG_FILE", "testdata/does-not-exist.yaml")
	defer clear1()

	assert.NoError(t, Load())
	cfg := Instance()
	assert.Equal(t, time.Second*60, cfg.Game.ReservationTTL)
	assert.Equal(t, time.Millisecond*100, cfg.Lobby.BatchWindow)
	assert.Equal(t, 50, cfg.Lobby.MaxBatchSize)
}

func setEnv(key, val string) func() {
	orig := os.Getenv(key)
	_ = os.Setenv(key, val)
	return func() {
		if orig == "" {
			_ = os.Unsetenv(key)
		} else {
			_ = os.Setenv(key, orig)
		}
	}
}
