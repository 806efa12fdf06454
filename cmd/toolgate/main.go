// Command toolgate runs the multi-tenant tool gateway.
//
// Configuration is read from a YAML file (see -config) with TOOLGATE_*
// environment overrides. Logging follows observability.logging, with
// TOOLGATE_DEBUG, TOOLGATE_LOG_LEVEL and TOOLGATE_LOG_FORMAT taking
// precedence.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rhuss/toolgate/pkg/config"
	"github.com/rhuss/toolgate/pkg/debug"
	"github.com/rhuss/toolgate/pkg/gateway"
	transporthttp "github.com/rhuss/toolgate/pkg/transport/http"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("toolgate failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml (default: $TOOLGATE_CONFIG, ./config.yaml, /etc/toolgate/config.yaml)")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logging := cfg.Observability.Logging
	for _, c := range debug.Init(debug.Options{
		Categories: strings.Join(logging.Debug, ","),
		Level:      logging.Level,
		Format:     logging.Format,
	}) {
		slog.Warn("unknown debug category", "category", c, "known", debug.Known)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := gateway.Build(ctx, cfg, gateway.BuildOptions{
		Version: version,
		Logger:  slog.Default(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("closing gateway resources", "error", err)
		}
	}()

	srv := transporthttp.NewServer(app.Gateway.Handler(),
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithShutdownHook(func() { app.Gateway.Drain() }),
	)

	slog.Info("toolgate starting",
		"version", version,
		"port", cfg.Server.Port,
		"adapters", app.Registry.Len(),
	)
	return srv.Run(ctx)
}
