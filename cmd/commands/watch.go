package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	wsclient "github.com/dohr-michael/editthread/clients/ws"
	"github.com/dohr-michael/editthread/internal/events"
	wsprotocol "github.com/dohr-michael/editthread/internal/gateway/ws"
)

// NewWatchCommand returns the watch subcommand.
func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream gateway events, optionally for one task",
		ArgsUsage: "[task_id]",
		Flags:     []cli.Flag{gatewayFlag},
		Action:    runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	addr, err := gatewayAddr(cmd)
	if err != nil {
		return err
	}
	taskID := cmd.Args().First()

	client, err := wsclient.Dial(ctx, "ws://"+addr+"/api/ws")
	if err != nil {
		return err
	}
	defer client.Close()

	if taskID != "" {
		if err := client.Watch(ctx, taskID); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-client.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("gateway connection lost: %w", client.Err())
			}
			if taskID != "" && f.TaskID != taskID {
				continue
			}
			fmt.Println(formatFrame(f))
			if taskID != "" && events.IsTaskTerminal(events.EventType(f.Event)) {
				return nil
			}
		}
	}
}

// formatFrame renders an event frame as one line.
func formatFrame(f wsprotocol.Frame) string {
	line := f.Event
	if f.TaskID != "" {
		line += " " + f.TaskID
	}

	var e events.Event
	if err := json.Unmarshal(f.Payload, &e); err != nil {
		return line + " " + string(f.Payload)
	}
	if p, ok := events.GetWorkerNotificationPayload(e); ok && e.Type == events.EventWorkerNotification {
		return line + ": " + p.Text
	}
	if len(e.Payload) > 0 {
		data, _ := json.Marshal(e.Payload)
		line += " " + string(data)
	}
	return line
}
