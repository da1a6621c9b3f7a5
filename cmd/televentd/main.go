package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirilledition/televent/internal/auth"
	"github.com/kirilledition/televent/internal/bot"
	"github.com/kirilledition/televent/internal/botsurface"
	"github.com/kirilledition/televent/internal/caldav"
	"github.com/kirilledition/televent/internal/config"
	"github.com/kirilledition/televent/internal/httpserver"
	"github.com/kirilledition/televent/internal/logging"
	"github.com/kirilledition/televent/internal/notify"
	"github.com/kirilledition/televent/internal/outbox"
	"github.com/kirilledition/televent/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := postgres.New(ctx, cfg.Storage.PostgresURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()

	gate := auth.NewGate(st, cfg.Auth.MaxDevicePasswords, logger)
	engine := caldav.NewEngine(st, gate, cfg, logger)
	surface := botsurface.New(st)

	smtpAdapter := notify.NewSMTPAdapter()
	var telegramAdapter notify.Adapter = smtpAdapter
	var botListener *bot.Bot
	if cfg.Bot.Token != "" {
		ta, terr := notify.NewTelegramAdapter(cfg.Bot.Token)
		if terr != nil {
			logger.Fatal().Err(terr).Msg("telegram adapter init failed")
		}
		telegramAdapter = ta

		botListener, err = bot.New(cfg.Bot.Token, surface, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot listener init failed")
		}
	} else {
		logger.Warn().Msg("BOT_TOKEN unset: bot ingress and telegram delivery disabled")
	}
	adapter := notify.NewCompositeAdapter(telegramAdapter, smtpAdapter)

	worker := outbox.NewWorker(st, adapter, cfg.Outbox, logger)
	go worker.Run(ctx)

	if botListener != nil {
		go func() {
			if err := botListener.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("bot listener stopped")
			}
		}()
	}

	srv := httpserver.New(cfg, engine, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped with error")
		}
	}()
	logger.Info().Msgf("listening on %s", cfg.HTTP.Addr)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("bye")
}
