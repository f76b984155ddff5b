package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"golang.org/x/sync/errgroup"

	"github.com/plugmeter/plugmeter/pkg/efficiency"
	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/metrics"
	"github.com/plugmeter/plugmeter/pkg/plug"
	"github.com/plugmeter/plugmeter/pkg/rate"
	"github.com/plugmeter/plugmeter/pkg/server"
	"github.com/plugmeter/plugmeter/pkg/session"
	"github.com/plugmeter/plugmeter/pkg/storage"
)

func main() {
	// init packages
	m := metrics.New()
	s := storage.Configured()
	p := plug.Configured()
	rates := rate.Configured(s)
	engine := efficiency.Configured()
	sessions := session.Configured(p, s, rates, engine, m)
	poller := session.ConfiguredPoller(sessions, m)

	// init server
	srv := server.Configured(p, s, rates, sessions, m)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	// select the default device so the dashboard has something to show
	if _, err := sessions.Switch(ctx, ""); err != nil && !errors.Is(err, plug.ErrNotFound) {
		log.Ctx(ctx).WarnContext(ctx, "failed to select default device", slog.Any("error", err))
	}

	// the server and poller stop together when either fails
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return poller.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
