// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo echo worker
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/destiny/mdbroker/internal/logging"
	"github.com/destiny/mdbroker/majordomo"
)

func main() {
	app := &cli.App{
		Name:  "mdp-worker",
		Usage: "Majordomo echo worker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "broker",
				Value: "tcp://localhost:5555",
				Usage: "broker endpoint",
			},
			&cli.StringFlag{
				Name:  "service",
				Value: "echo",
				Usage: "service to register for",
			},
			&cli.DurationFlag{
				Name:  "heartbeat",
				Value: majordomo.DefaultHeartbeatInterval,
				Usage: "heartbeat interval, must match the broker",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log := logging.NewConsole(logging.LevelError)
		log.Fatal().Err(err).Msg("worker failed")
	}
}

func run(c *cli.Context) error {
	level := logging.LevelInfo
	if c.Bool("verbose") {
		level = logging.LevelDebug
	}
	log := logging.NewConsole(level)

	options := majordomo.DefaultWorkerOptions()
	options.HeartbeatInterval = c.Duration("heartbeat")
	options.ReconnectInterval = c.Duration("heartbeat")
	options.Logger = &log
	options.Verbose = c.Bool("verbose")

	worker, err := majordomo.NewWorker(majordomo.ServiceName(c.String("service")), c.String("broker"),
		func(_ context.Context, request [][]byte) ([][]byte, error) {
			log.Debug().Int("frames", len(request)).Msg("echo")
			return request, nil
		}, options)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("service", c.String("service")).Msg("worker started")
	err = worker.Run(ctx)

	stats := worker.Stats()
	log.Info().Uint64("requests", stats.Requests).Uint64("replies", stats.Replies).
		Uint64("reconnects", stats.Reconnects).Msg("worker stopped")
	return err
}
