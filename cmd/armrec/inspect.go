package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/armrec/pkg/capture"
	"github.com/gwillem/armrec/pkg/pickle"
	"github.com/gwillem/armrec/pkg/robot"
	"github.com/gwillem/armrec/pkg/teleop"
)

type InspectCommand struct {
	Args struct {
		Paths []string `positional-arg-name:"path" required:"1" description:"Snapshot files or run directories"`
	} `positional-args:"yes"`
}

func (c *InspectCommand) Execute(args []string) error {
	var failed int
	for _, path := range c.Args.Paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			failed += inspectRun(path)
		} else {
			failed += inspectFiles([]string{path})
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d snapshot(s) could not be decoded", failed)
	}
	return nil
}

func inspectRun(dir string) int {
	fmt.Println(headerStyle.Render(dir))
	if m, err := teleop.ReadManifest(filepath.Join(dir, teleop.ManifestFile)); err == nil {
		fmt.Printf("  run %s  %s -> %s\n", m.RunID, m.StartedAt.Format(teleop.TimestampLayout), m.EndedAt.Format(teleop.TimestampLayout))
		fmt.Printf("  master %s  follower %s  control %s  stop %s\n", m.MasterPort, m.FollowerPort, m.ControlSource, m.StopReason)
		fmt.Printf("  records %d  written %d  failed %d  frames %d\n", m.Records, m.Written, m.Failed, m.Frames)
	} else {
		fmt.Println(dimStyle.Render("  no manifest"))
	}

	files, err := teleop.SnapshotFiles(dir)
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return 1
	}
	return inspectFiles(files)
}

func inspectFiles(paths []string) int {
	headers := []string{"FILE"}
	for _, name := range robot.AllJoints() {
		headers = append(headers, string(name))
	}
	headers = append(headers, "CONTROL")

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...)

	var failed int
	for _, path := range paths {
		rec, err := pickle.DecodeFile(path)
		if err != nil {
			failed++
			fmt.Println(errorStyle.Render(err.Error()))
			continue
		}
		t.Row(recordRow(filepath.Base(path), rec)...)
	}
	fmt.Println(t)
	return failed
}

func recordRow(name string, rec capture.Record) []string {
	row := []string{name}
	for _, v := range rec.JointPositions.Values() {
		row = append(row, fmt.Sprintf("%.6g", v))
	}
	if rec.Control == nil {
		return append(row, "-")
	}
	values := rec.Control.Values()
	control := make([]string, len(values))
	for i, v := range values {
		control[i] = fmt.Sprintf("%.6g", v)
	}
	return append(row, "["+strings.Join(control, ", ")+"]")
}
