package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/fosdem/volstream/lib/api"
	"github.com/fosdem/volstream/lib/codec"
	"github.com/fosdem/volstream/lib/codec/backends"
	"github.com/fosdem/volstream/lib/config"
	vlog "github.com/fosdem/volstream/lib/log"
	"github.com/fosdem/volstream/lib/session"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <config file>", os.Args[0])
	}
	cfg, err := config.Parse(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	if err := vlog.Setup(cfg.LogLevel); err != nil {
		log.Fatal(err)
	}
	logger := vlog.Module("main")

	reg, err := codec.Init(backends.RegisterAll)
	if err != nil {
		log.Fatalf("could not register codecs: %s", err)
	}
	logger.Info("codecs registered", "devices", reg.List())

	s, err := session.New(cfg, reg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	if err := s.Start(ctx); err != nil {
		logger.Error("could not start sources", "err", err)
		_ = s.Close()
		os.Exit(1)
	}
	theApi := api.ServeInBackground(s, cfg.Api)

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case <-s.ShutdownRequested():
	}
	stop()

	if theApi != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = multierr.Append(err, theApi.Shutdown(shutdownCtx))
		cancel()
	}
	s.Wait()
	err = multierr.Append(err, s.Close())
	err = multierr.Append(err, codec.Shutdown())
	if err != nil {
		logger.Error("unclean shutdown", "err", err)
		os.Exit(1)
	}
}
