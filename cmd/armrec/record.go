package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gwillem/armrec/pkg/catalog"
	"github.com/gwillem/armrec/pkg/config"
	"github.com/gwillem/armrec/pkg/logging"
	"github.com/gwillem/armrec/pkg/metrics"
	"github.com/gwillem/armrec/pkg/teleop"
	"github.com/gwillem/armrec/pkg/transport"
)

type RecordCommand struct {
	Master          string `long:"master" description:"Master arm device (skips the prompt)"`
	Follower        string `long:"follower" description:"Follower arm device (skips the prompt)"`
	NoPrompt        bool   `long:"no-prompt" description:"Use the configured devices without asking"`
	Plain           bool   `long:"plain" description:"No TUI: press Enter to stop"`
	NoCamera        bool   `long:"no-camera" description:"Disable the capture loop"`
	EnforceSafeZone bool   `long:"enforce-safe-zone" description:"Stop the follower when it leaves the safe zone"`
	ControlSource   string `long:"control-source" choice:"follower" choice:"command" description:"Value paired with each record as its control"`
}

func (c *RecordCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Path() != "" {
		fmt.Printf("Loaded configuration from %s\n", cfg.Path())
	}
	c.apply(cfg)

	if err := c.choosePorts(cfg); err != nil {
		return err
	}
	if cfg.Master.Port == cfg.Follower.Port {
		return fmt.Errorf("master and follower share port %s", cfg.Master.Port)
	}

	var (
		logOut io.Writer = os.Stderr
		lines  *logging.ChannelWriter
	)
	if !c.Plain {
		lines = logging.NewChannelWriter(100)
		logOut = lines
	}
	logger, err := logging.New(logOut, cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logger.Warn("metrics server", "addr", cfg.Metrics.Listen, "err", err)
			}
		}()
	}

	deps := teleop.Deps{Logger: logger, Metrics: m}
	if cfg.Catalog.Path != "" {
		cat, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			logger.Warn("open catalog, run will not be catalogued", "path", cfg.Catalog.Path, "err", err)
		} else {
			defer cat.Close()
			deps.Catalog = cat
		}
	}

	rec, err := teleop.Open(recorderConfig(cfg), deps)
	if err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan runResult, 1)
	go func() {
		sum, err := rec.Run(runCtx)
		done <- runResult{summary: sum, err: err}
	}()

	var res runResult
	if c.Plain {
		res = waitPlain(cancel, done)
	} else {
		res, err = waitTUI(rec, lines, cancel, done)
		if err != nil {
			return err
		}
	}

	printSummary(res.summary)
	if errors.Is(res.err, teleop.ErrOutsideSafeZone) {
		return res.err
	}
	if res.err != nil && !errors.Is(res.err, context.Canceled) {
		return res.err
	}
	return nil
}

// apply overrides config values with explicit flags.
func (c *RecordCommand) apply(cfg *config.Config) {
	if c.NoCamera {
		cfg.Camera.Enabled = false
	}
	if c.EnforceSafeZone {
		cfg.SafeZone.Enforce = true
	}
	if c.ControlSource != "" {
		cfg.Control.ControlSource = c.ControlSource
	}
}

func (c *RecordCommand) choosePorts(cfg *config.Config) error {
	if c.Master != "" {
		cfg.Master.Port = c.Master
	}
	if c.Follower != "" {
		cfg.Follower.Port = c.Follower
	}
	if c.NoPrompt || (c.Master != "" && c.Follower != "") {
		return nil
	}

	ports, err := transport.ListPorts()
	if err != nil {
		return fmt.Errorf("enumerate ports: %w", err)
	}
	fmt.Println(subHeaderStyle.Render("Available ports:"))
	for _, p := range ports {
		fmt.Println("  " + p)
	}

	if c.Master == "" {
		port, err := promptPort("Master arm device", defaultPort(cfg.Master.Port, transport.DefaultMasterDevice), ports)
		if err != nil {
			return err
		}
		cfg.Master.Port = port
	}
	if c.Follower == "" {
		port, err := promptPort("Follower arm device", defaultPort(cfg.Follower.Port, transport.DefaultFollowerDevice), ports)
		if err != nil {
			return err
		}
		cfg.Follower.Port = port
	}
	return nil
}

func defaultPort(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

func recorderConfig(cfg *config.Config) teleop.Config {
	tc := teleop.Config{
		MasterDevice:    cfg.Master.Port,
		FollowerDevice:  cfg.Follower.Port,
		MasterOptions:   cfg.Master.SerialOptions(),
		FollowerOptions: cfg.Follower.SerialOptions(),
		Period:          cfg.Control.Period,
		Retry:           cfg.Control.RetryPolicy(),
		ControlSource:   teleop.ControlSource(cfg.Control.ControlSource),
		CameraPeriod:    cfg.Camera.Period,
		SnapshotRoot:    cfg.Output.SnapshotRoot,
		ImageRoot:       cfg.Output.ImageRoot,
		EnforceSafeZone: cfg.SafeZone.Enforce,
		SafeZone:        cfg.SafeZone.Zone(),
	}
	if cfg.Camera.Enabled {
		opts := cfg.Camera.Options()
		tc.Camera = &opts
	}
	return tc
}

func waitPlain(cancel context.CancelFunc, done <-chan runResult) runResult {
	fmt.Println("Press Enter to stop...")
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		cancel()
	}()
	return <-done
}

func waitTUI(rec *teleop.Recorder, lines *logging.ChannelWriter, cancel context.CancelFunc, done <-chan runResult) (runResult, error) {
	p := tea.NewProgram(newRecordModel(rec, lines.Lines(), cancel), tea.WithAltScreen())

	resCh := make(chan runResult, 1)
	go func() {
		res := <-done
		resCh <- res
		p.Send(doneMsg(res))
	}()

	_, err := p.Run()
	if err != nil {
		cancel()
		err = fmt.Errorf("run tui: %w", err)
	}
	return <-resCh, err
}

func printSummary(sum teleop.Summary) {
	fmt.Println()
	if sum.StopReason == teleop.StopSafeZone {
		fmt.Println(errorStyle.Render("Follower left the safe zone, emergency stop sent."))
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Recorded %d snapshots", sum.Written)))
	if sum.Failed > 0 {
		fmt.Println(errorStyle.Render(fmt.Sprintf("%d snapshots failed to write", sum.Failed)))
	}
	fmt.Printf("  Run:       %s\n", sum.RunID)
	fmt.Printf("  Snapshots: %s\n", sum.SnapshotDir)
	if sum.ImageDir != "" {
		fmt.Printf("  Images:    %s (%d frames)\n", sum.ImageDir, sum.Frames)
	}
}
