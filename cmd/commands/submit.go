package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/editthread/internal/host"
	"github.com/dohr-michael/editthread/internal/tasks"
	"github.com/dohr-michael/editthread/internal/world"
)

// NewSubmitCommand returns the submit subcommand.
func NewSubmitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit an edit to a running serve process",
		ArgsUsage: "<fill|replace|count>",
		Flags: []cli.Flag{
			gatewayFlag,
			&cli.StringFlag{
				Name:     "region",
				Usage:    "Region as x0,y0,z0:x1,y1,z1 (inclusive)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Display name for the task",
			},
			&cli.IntFlag{
				Name:  "block",
				Usage: "Block id to write (fill, replace)",
			},
			&cli.IntFlag{
				Name:  "from",
				Usage: "Block id to replace (replace)",
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Wait for the task to finish",
			},
		},
		Action: runSubmit,
	}
}

func runSubmit(ctx context.Context, cmd *cli.Command) error {
	typ := cmd.Args().First()
	if typ == "" {
		return fmt.Errorf("usage: editthread submit <fill|replace|count> --region x0,y0,z0:x1,y1,z1")
	}
	region, err := parseRegion(cmd.String("region"))
	if err != nil {
		return err
	}
	block, err := blockID(int64(cmd.Int("block")))
	if err != nil {
		return err
	}
	from, err := blockID(int64(cmd.Int("from")))
	if err != nil {
		return err
	}

	client, err := newAPIClient(cmd)
	if err != nil {
		return err
	}

	path := "/api/tasks"
	if cmd.Bool("wait") {
		path += "?wait=1"
	}
	var resp struct {
		TaskID  string        `json:"task_id"`
		Outcome *host.Outcome `json:"outcome"`
	}
	sub := host.Submission{
		Type:   typ,
		Name:   cmd.String("name"),
		Params: tasks.EditParams{Region: region, Block: block, From: from},
	}
	if err := client.do(ctx, "POST", path, sub, &resp); err != nil {
		return err
	}

	if resp.Outcome == nil {
		fmt.Println(resp.TaskID)
		return nil
	}
	printOutcome(*resp.Outcome)
	return nil
}

func printOutcome(o host.Outcome) {
	fmt.Printf("Task %s %s\n", o.TaskID, o.Status)
	if o.Error != "" {
		fmt.Printf("Error: %s\n", o.Error)
	}
	if o.Result != nil {
		printResult(o.Result)
	}
}

func printResult(r *tasks.Result) {
	fmt.Printf("Affected: %d blocks in %d chunks", r.Affected, r.Chunks)
	if r.Partial {
		fmt.Print(" (partial)")
	}
	fmt.Println()
	for id, n := range r.Counts {
		fmt.Printf("  block %d: %d\n", id, n)
	}
}

// parseRegion parses "x0,y0,z0:x1,y1,z1".
func parseRegion(s string) (world.Region, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return world.Region{}, fmt.Errorf("region %q: expected min:max", s)
	}
	lo, err := parseBlockPos(a)
	if err != nil {
		return world.Region{}, fmt.Errorf("region %q: %w", s, err)
	}
	hi, err := parseBlockPos(b)
	if err != nil {
		return world.Region{}, fmt.Errorf("region %q: %w", s, err)
	}
	return world.Region{Min: lo, Max: hi}, nil
}

func parseBlockPos(s string) (world.BlockPos, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return world.BlockPos{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var v [3]int32
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return world.BlockPos{}, fmt.Errorf("coordinate %q: %w", p, err)
		}
		v[i] = int32(n)
	}
	return world.BlockPos{X: v[0], Y: v[1], Z: v[2]}, nil
}

func blockID(n int64) (uint16, error) {
	if n < 0 || n > 0xFFFF {
		return 0, fmt.Errorf("block id %d out of range", n)
	}
	return uint16(n), nil
}
