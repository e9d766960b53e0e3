package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/editthread/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "editthread",
		Usage: "Run world edits on a dedicated worker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (.jsonc, .json, .yaml)",
				Value:   config.ConfigPath(),
				Sources: cli.EnvVars("EDITTHREAD_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging and worker debug lines",
				Sources: cli.EnvVars("EDITTHREAD_DEBUG"),
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewSubmitCommand(),
			NewCancelCommand(),
			NewStatusCommand(),
			NewResultsCommand(),
			NewWatchCommand(),
			NewScheduleCommand(),
		},
	}
}
