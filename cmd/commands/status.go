package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/editthread/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show serve process and worker status",
		Action: func(_ context.Context, _ *cli.Command) error {
			status, hb, err := heartbeat.Read(heartbeatPath(), 3*heartbeat.DefaultInterval)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Serve: ALIVE (PID %d, uptime %s, gateway %s)\n", hb.PID, hb.Uptime(), hb.Addr)
			case heartbeat.StatusStale:
				fmt.Printf("Serve: STALE (PID %d, last heartbeat %s ago)\n",
					hb.PID, time.Since(hb.WrittenAt).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("Serve: NOT RUNNING")
				return nil
			}

			if hb.Worker != nil {
				running := hb.Worker.Running
				if running == "" {
					running = "-"
				}
				fmt.Printf("Worker: %s (running %s, %d queued)\n", hb.Worker.State, running, hb.Worker.Queued)
			}
			return nil
		},
	}
}
