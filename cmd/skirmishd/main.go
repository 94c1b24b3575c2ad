package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skirmish/engine/internal/config"
	"skirmish/engine/internal/gateway"
	"skirmish/engine/internal/replaystore"
	"skirmish/engine/internal/sim"
)

func main() {
	var configDir string
	var verifySession uint
	flag.StringVar(&configDir, "config-dir", ".", "directory holding skirmishd.cfg.json")
	flag.UintVar(&verifySession, "verify", 0, "verify a recorded session by ID and exit")
	flag.Parse()

	cfg, err := config.Load(configDir)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := cfg.Logger()

	if verifySession != 0 {
		store, err := replaystore.Open(cfg.Replay.DBPath, log)
		if err != nil {
			log.Fatal().Err(err).Msg("opening replay store")
		}
		defer store.Close()
		if err := store.Verify(verifySession, log); err != nil {
			log.Fatal().Err(err).Uint("session", verifySession).Msg("verification failed")
		}
		log.Info().Uint("session", verifySession).Msg("session verified: replay reproduced the recorded state hash")
		return
	}

	sc, err := sim.LoadScenario(cfg.ScenarioPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ScenarioPath).Msg("loading scenario")
	}
	if cfg.Seed != 0 {
		sc.Seed = cfg.Seed
	}
	eng, err := sc.BuildEngine(log)
	if err != nil {
		log.Fatal().Err(err).Msg("building engine")
	}
	log.Info().
		Str("scenario", sc.Name).
		Int64("seed", sc.Seed).
		Int("units", len(eng.Units())).
		Msg("battle ready")

	var recorder *replaystore.SessionRecorder
	if cfg.Replay.Enabled {
		store, err := replaystore.Open(cfg.Replay.DBPath, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Replay.DBPath).Msg("opening replay store")
		}
		defer store.Close()
		recorder, err = store.NewRecorder(eng, sc.Name, cfg.Replay.KeyframeInterval)
		if err != nil {
			log.Fatal().Err(err).Msg("starting session recorder")
		}
		eng.SetRecorder(recorder)
		log.Info().Str("db", cfg.Replay.DBPath).Msg("session recording enabled")
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: gateway.NewServer(eng, log).Router(),
	}

	stop := make(chan struct{})
	go eng.Run(stop)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("gateway server")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	close(stop)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown")
	}
	if recorder != nil {
		if err := recorder.Finish(); err != nil {
			log.Error().Err(err).Msg("sealing session")
		} else {
			log.Info().Msg("session sealed")
		}
	}
}
