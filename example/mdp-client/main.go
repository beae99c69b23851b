// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example Majordomo client
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/destiny/mdbroker/internal/logging"
	"github.com/destiny/mdbroker/majordomo"
)

func main() {
	app := &cli.App{
		Name:      "mdp-client",
		Usage:     "send requests to a Majordomo service",
		ArgsUsage: "[body...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "broker",
				Value: "tcp://localhost:5555",
				Usage: "broker endpoint",
			},
			&cli.StringFlag{
				Name:  "service",
				Value: "echo",
				Usage: "service to call",
			},
			&cli.IntFlag{
				Name:  "count",
				Value: 1,
				Usage: "number of requests to send",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 2500 * time.Millisecond,
				Usage: "per-attempt reply timeout",
			},
			&cli.IntFlag{
				Name:  "retries",
				Value: 3,
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
		log.Fatal().Err(err).Msg("client failed")
	}
}

func run(c *cli.Context) error {
	level := logging.LevelInfo
	if c.Bool("verbose") {
		level = logging.LevelDebug
	}
	log := logging.NewConsole(level)

	client := majordomo.NewClient(c.String("broker"), &majordomo.ClientOptions{
		Timeout: c.Duration("timeout"),
		Retries: c.Int("retries"),
		Logger:  &log,
		Verbose: c.Bool("verbose"),
	})
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Disconnect()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service := majordomo.ServiceName(c.String("service"))
	code, err := client.LookupService(ctx, service)
	if err != nil {
		return fmt.Errorf("service lookup: %w", err)
	}
	log.Info().Str("service", service.String()).Str("mmi", code).Msg("service lookup")

	body := make([][]byte, 0, c.NArg())
	for _, arg := range c.Args().Slice() {
		body = append(body, []byte(arg))
	}
	if len(body) == 0 {
		body = append(body, []byte("Hello world"))
	}

	for i := 0; i < c.Int("count"); i++ {
		start := time.Now()
		reply, err := client.Request(ctx, service, body...)
		if err != nil {
			return err
		}
		for _, frame := range reply {
			fmt.Println(string(frame))
		}
		log.Debug().Int("request", i+1).Dur("rtt", time.Since(start)).Msg("reply received")
	}

	stats := client.Stats()
	log.Info().Uint64("requests", stats.Requests).Uint64("replies", stats.Replies).
		Uint64("timeouts", stats.Timeouts).Msg("done")
	return nil
}
