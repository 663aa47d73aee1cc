package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/lpfarm/internal/config"
	"github.com/elys-network/lpfarm/internal/epoch"
	"github.com/elys-network/lpfarm/internal/logger"
	"github.com/elys-network/lpfarm/internal/manager"
	"github.com/elys-network/lpfarm/internal/state"
	"github.com/elys-network/lpfarm/internal/store"
	"github.com/elys-network/lpfarm/internal/types"
	"github.com/elys-network/lpfarm/internal/web"
)

// main is the entry point of the farm engine daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.InitializeWithFormat(config.LogLevel, config.LogFormat, os.Stdout)
	log.Info().Msg("LP farm engine starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params, err := config.LoadParameters()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load engine parameters")
	}

	// --- 2. Optional receipt journal ---
	var journal *state.Journal
	if config.JournalEnabled() {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}

		if active, version, err := state.LoadActiveParameters(ctx); err == nil {
			log.Info().Int("version", version).Msg("Seeding from the journal's active parameters")
			params = active
		} else {
			log.Warn().Err(err).Msg("No journaled parameters, using the environment")
		}
		journal = state.NewJournal()
	} else {
		log.Warn().Msg("DB_HOST not set, running without a receipt journal")
	}

	// --- 3. State store and clock ---
	stateStore, err := store.Open(store.DefaultConfig(config.DataDir))
	if err != nil {
		log.Fatal().Err(err).Str("dir", config.DataDir).Msg("Failed to open state store")
	}
	defer stateStore.Close()
	go stateStore.RunGC(ctx)

	schedule, err := epoch.NewSchedule(config.EpochGenesis, config.EpochDuration)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid epoch schedule")
	}

	// --- 4. Manager with dependency injection ---
	mgrConfig := manager.Config{
		Store:  stateStore,
		Clock:  epoch.NewSystemClock(schedule),
		Params: params,
	}
	webOpts := web.Options{
		Port:              config.WebPort,
		EnableTx:          config.EnableTxEndpoint,
		SettlementAddress: config.SettlementAddress,
	}
	if journal != nil {
		mgrConfig.Journal = journal
		webOpts.Receipts = journal
		webOpts.DBHealth = state.TestDBConnection
	}

	mgr, err := manager.New(ctx, mgrConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create manager")
	}
	log.Info().Msg("Manager created successfully")

	// --- 5. Web server ---
	webServer := web.NewWebServer(mgr, webOpts)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting query API")
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Web server failed")
			stop()
		}
	}()

	// --- 6. Epoch loop, until a signal arrives ---
	mgr.RunLoop(ctx, config.LoopInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	if current, err := mgr.CurrentEpoch(shutdownCtx); err == nil {
		logEpoch(current)
	}
	log.Info().Msg("LP farm engine stopped")
}

func logEpoch(current types.Epoch) {
	log.Info().Uint64("epoch", current.ID).Time("epoch_start", current.StartTime).Msg("Stopping at epoch")
}
