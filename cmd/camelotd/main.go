package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/trt-pos/camelotd/internal/broker"
)

func main() {
	app := &cli.App{
		Name:                 "camelotd",
		Usage:                "pub/sub message broker",
		ArgsUsage:            "[port]",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug-level logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := logrus.New()
	if c.Bool("debug") {
		log.SetLevel(logrus.DebugLevel)
	}

	port := broker.DefaultPort
	if c.Args().Len() > 0 {
		p, err := strconv.Atoi(c.Args().First())
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid port %q", c.Args().First()), 1)
		}
		port = p
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := broker.New(log)
	if err := s.ListenAndServe(ctx, port); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
