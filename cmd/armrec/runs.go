package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/armrec/pkg/catalog"
	"github.com/gwillem/armrec/pkg/teleop"
)

type RunsCommand struct {
	Limit     int    `short:"n" long:"limit" default:"20" description:"Number of runs to show, 0 for all"`
	Snapshots string `long:"snapshots" value-name:"RUN_ID" description:"List the snapshot files of one run"`
}

func (c *RunsCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Catalog.Path == "" {
		return errors.New("catalog disabled: set catalog.path")
	}
	if _, err := os.Stat(cfg.Catalog.Path); errors.Is(err, os.ErrNotExist) {
		fmt.Println(dimStyle.Render("No runs recorded yet."))
		return nil
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := context.Background()
	if c.Snapshots != "" {
		return printSnapshots(ctx, cat, c.Snapshots)
	}

	runs, err := cat.Runs(ctx, c.Limit)
	if err != nil {
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("RUN", "STARTED", "DURATION", "RECORDS", "FAILED", "FRAMES", "CONTROL", "STOP", "DIR")
	for _, r := range runs {
		t.Row(
			r.ID,
			r.StartedAt.Format(teleop.TimestampLayout),
			r.EndedAt.Sub(r.StartedAt).Round(100*time.Millisecond).String(),
			fmt.Sprint(r.Records),
			fmt.Sprint(r.Failed),
			fmt.Sprint(r.Frames),
			r.ControlSource,
			r.StopReason,
			r.SnapshotDir,
		)
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("Runs in %s", cfg.Catalog.Path)))
	fmt.Println(t)
	return nil
}

func printSnapshots(ctx context.Context, cat *catalog.Catalog, runID string) error {
	snaps, err := cat.Snapshots(ctx, runID)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return fmt.Errorf("run %s: no snapshots", runID)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("#", "PATH", "CONTROL", "ERROR")
	for _, s := range snaps {
		control := "no"
		if s.HasControl {
			control = "yes"
		}
		errText := s.Error
		if errText != "" {
			errText = errorStyle.Render(errText)
		}
		t.Row(fmt.Sprint(s.Index), s.Path, control, errText)
	}
	fmt.Println(t)
	return nil
}
