package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/auth"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/config"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/mux"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/rng"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/db"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/lobby"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/store"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/table"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/wallet"
	"github.com/gorilla/handlers"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

const readTimeout = time.Second * 5
const writeTimeout = time.Second * 10
const shutdownTimeout = time.Second * 10

// Version is the server version
var Version = "v0.0.0-dev"

var addr = flag.String("addr", "", "the listen address (overrides configuration)")

func main() {
	flag.Parse()
	setupLogger()

	cfg := config.Instance()

	// fail fast
	auth.LoadKeys()

	snapshots := newSnapshotStore(cfg)
	bankroll := newBankroll(cfg)

	directory, err := lobby.New(snapshots)
	if err != nil {
		logrus.WithError(err).Fatal("could not start table directory")
	}

	manager := table.NewManager(snapshots, bankroll, directory, rng.Crypto{})

	c := cors.New(cors.Options{
		AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	})

	listenAddr := cfg.ListenAddr
	if *addr != "" {
		listenAddr = *addr
	}

	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      loggingHandler(c.Handler(mux.NewMux(Version, manager, directory, bankroll))),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	go func() {
		logrus.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("server stopped")
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	logrus.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("could not drain connections")
	}

	manager.Stop()
	directory.Stop()
}

// newSnapshotStore picks the actor snapshot backend
func newSnapshotStore(cfg config.Config) store.Store {
	if cfg.Redis.Enabled {
		logrus.WithField("addr", cfg.Redis.Addr).Info("using redis snapshot store")
		return store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}

	logrus.Warn("using in-memory snapshot store; table state will not survive a restart")
	return store.NewMemory()
}

// newBankroll picks the wallet backend. With Postgres configured the ledger
// is durable; otherwise guests play with seeded chips.
func newBankroll(cfg config.Config) wallet.Wallet {
	if cfg.PGDSN != "" {
		db.Migrate()
		return wallet.NewPostgres(db.Instance())
	}

	logrus.Warn("using in-memory wallet; balances will not survive a restart")
	return wallet.NewMemory(cfg.Wallet.GuestBalance)
}

func loggingHandler(next http.Handler) http.Handler {
	if config.Instance().Log.DisableAccessLogs {
		return next
	}

	return handlers.CombinedLoggingHandler(os.Stdout, next)
}

func setupLogger() {
	if lvl := config.Instance().Log.Level; lvl != "" {
		level, err := logrus.ParseLevel(lvl)
		if err != nil {
			logrus.WithError(err).Fatal("could not parse level")
		}

		logrus.SetLevel(level)
	}

	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
