package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewCancelCommand returns the cancel subcommand.
func NewCancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a queued or running task",
		ArgsUsage: "<task_id>",
		Flags:     []cli.Flag{gatewayFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			taskID := cmd.Args().First()
			if taskID == "" {
				return fmt.Errorf("usage: editthread cancel <task_id>")
			}
			client, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			if err := client.do(ctx, "POST", "/api/tasks/"+taskID+"/cancel", nil, nil); err != nil {
				return err
			}
			fmt.Printf("Task %s cancelling.\n", taskID)
			return nil
		},
	}
}
