package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/tessera-id/ariadne/pkg/log"
)

func main() {
	cmd := &cli.Command{
		Name:                  "ariadne-orchestrator",
		Usage:                 "Start the Ariadne agent orchestration service",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewValidateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.WithModule("ariadne-orchestrator").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
