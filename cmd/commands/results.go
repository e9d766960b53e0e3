package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/editthread/internal/storage"
	"github.com/dohr-michael/editthread/internal/tasks"
)

// NewResultsCommand returns the results subcommand. It reads the database
// directly, so it works while serve is down.
func NewResultsCommand() *cli.Command {
	return &cli.Command{
		Name:  "results",
		Usage: "Inspect task results",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "Filter by status"},
					&cli.StringFlag{Name: "type", Usage: "Filter by task type"},
					&cli.IntFlag{Name: "limit", Usage: "Max rows", Value: 20},
				},
				Action: runResultsList,
			},
			{
				Name:      "show",
				Usage:     "Show one task",
				ArgsUsage: "<task_id>",
				Action:    runResultsShow,
			},
		},
		DefaultCommand: "list",
	}
}

func openResults(cmd *cli.Command) (*storage.SQLite, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return storage.OpenSQLite(cfg.Storage.Path)
}

func runResultsList(_ context.Context, cmd *cli.Command) error {
	db, err := openResults(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := db.List(tasks.ListFilter{
		Status: tasks.TaskStatus(cmd.String("status")),
		Type:   cmd.String("type"),
		Limit:  int(cmd.Int("limit")),
	})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tAFFECTED\tCHUNKS\tUPDATED\tNAME")
	for _, r := range list {
		affected, chunks := "-", "-"
		if r.Result != nil {
			affected = fmt.Sprint(r.Result.Affected)
			chunks = fmt.Sprint(r.Result.Chunks)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Type, r.Status, affected, chunks, formatTime(r.UpdatedAt), r.Name)
	}
	return w.Flush()
}

func runResultsShow(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: editthread results show <task_id>")
	}

	db, err := openResults(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := db.Get(taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("ID:        %s\n", r.ID)
	fmt.Printf("Type:      %s\n", r.Type)
	if r.Name != "" {
		fmt.Printf("Name:      %s\n", r.Name)
	}
	fmt.Printf("Status:    %s\n", r.Status)
	fmt.Printf("Created:   %s\n", formatTime(r.CreatedAt))
	if r.StartedAt != nil {
		fmt.Printf("Started:   %s\n", formatTime(*r.StartedAt))
	}
	if r.FinishedAt != nil {
		fmt.Printf("Finished:  %s\n", formatTime(*r.FinishedAt))
	}
	if r.Error != "" {
		fmt.Printf("\nError: %s\n", r.Error)
	}
	if r.Result != nil {
		fmt.Println()
		printResult(r.Result)
	}

	progress, _ := db.LoadProgress(taskID)
	if len(progress) > 0 {
		fmt.Println("\nProgress:")
		for _, p := range progress {
			fmt.Printf("  [%s] %s\n", p.Ts.Local().Format("15:04:05"), p.Text)
		}
	}
	return nil
}
