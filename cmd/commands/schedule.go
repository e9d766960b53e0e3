package commands

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/editthread/internal/scheduler"
)

// NewScheduleCommand returns the schedule subcommand.
func NewScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Inspect and fire scheduled edits",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List schedule entries of the running server",
				Flags:  []cli.Flag{gatewayFlag},
				Action: runScheduleList,
			},
			{
				Name:      "run",
				Usage:     "Submit an entry's edit now, ignoring its trigger and cooldown",
				ArgsUsage: "<name>",
				Flags:     []cli.Flag{gatewayFlag},
				Action:    runScheduleRun,
			},
		},
	}
}

func runScheduleList(ctx context.Context, cmd *cli.Command) error {
	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	var entries []scheduler.Entry
	if err := client.do(ctx, "GET", "/api/schedule", nil, &entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No schedule entries.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tTRIGGER\tRUNS\tLAST RUN\tNEXT RUN")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Name, e.Type, entryTrigger(e), entryRuns(e), optionalTime(e.LastRun), optionalTime(e.NextRun))
	}
	return tw.Flush()
}

func runScheduleRun(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: editthread schedule run <name>")
	}
	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := client.do(ctx, "POST", "/api/schedule/"+url.PathEscape(name)+"/trigger", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("Entry %s submitted as %s.\n", name, resp.TaskID)
	return nil
}

func entryTrigger(e scheduler.Entry) string {
	switch {
	case e.Cron != "" && e.OnEvent != nil:
		return e.Cron + " | " + e.OnEvent.Event
	case e.Cron != "":
		return e.Cron
	case e.OnEvent != nil:
		return "on " + e.OnEvent.Event
	}
	return "-"
}

func entryRuns(e scheduler.Entry) string {
	runs := fmt.Sprint(e.RunCount)
	if e.MaxRuns > 0 {
		runs += fmt.Sprintf("/%d", e.MaxRuns)
	}
	if !e.Enabled {
		runs += " (done)"
	}
	return runs
}
