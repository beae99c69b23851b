// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo broker
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/destiny/mdbroker/internal/config"
	"github.com/destiny/mdbroker/internal/logging"
	"github.com/destiny/mdbroker/internal/metrics"
	"github.com/destiny/mdbroker/majordomo"
)

func main() {
	app := &cli.App{
		Name:  "mdp-broker",
		Usage: "Majordomo Protocol broker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "bind",
				Usage: "endpoint to bind, overrides the configuration file",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log and dump every message",
			},
			&cli.StringFlag{
				Name:  "metrics",
				Usage: "address of the Prometheus /metrics listener, e.g. :9102",
			},
			&cli.DurationFlag{
				Name:  "stats",
				Value: 10 * time.Second,
				Usage: "interval between stats log lines, 0 to disable",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log := logging.NewConsole(logging.LevelError)
		log.Fatal().Err(err).Msg("broker failed")
	}
}

func run(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if c.IsSet("bind") {
		cfg.Bind = c.String("bind")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	if c.IsSet("metrics") {
		cfg.MetricsAddr = c.String("metrics")
	}

	log := logging.NewConsole(cfg.Level())
	options, err := cfg.BrokerOptions()
	if err != nil {
		return err
	}
	options.Logger = &log
	options.Metrics = metrics.NewCollector(cfg.Bind)

	broker := majordomo.NewBroker(cfg.Bind, options)
	if err := broker.Bind(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return broker.Run(ctx)
	})
	if cfg.MetricsAddr != "" {
		server := metrics.NewServer(cfg.MetricsAddr)
		g.Go(func() error {
			return server.Run(ctx)
		})
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}
	if interval := c.Duration("stats"); interval > 0 {
		g.Go(func() error {
			reportStats(ctx, broker, interval, log)
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("broker stopped")
	return err
}

func reportStats(ctx context.Context, broker *majordomo.Broker, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := broker.Stats(ctx)
			if err != nil {
				return
			}
			statsJSON, _ := json.Marshal(stats)
			log.Info().RawJSON("stats", statsJSON).Msg("broker stats")
		}
	}
}
