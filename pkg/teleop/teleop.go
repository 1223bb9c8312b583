// Package teleop mirrors a master arm onto a follower arm while recording
// follower joint snapshots and camera frames.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gwillem/armrec/pkg/camera"
	"github.com/gwillem/armrec/pkg/capture"
	"github.com/gwillem/armrec/pkg/catalog"
	"github.com/gwillem/armrec/pkg/logging"
	"github.com/gwillem/armrec/pkg/metrics"
	"github.com/gwillem/armrec/pkg/protocol"
	"github.com/gwillem/armrec/pkg/robot"
	"github.com/gwillem/armrec/pkg/transport"
)

// TimestampLayout names the per-run output directories.
const TimestampLayout = "2006-01-02_15-04-05"

// DefaultPeriod is the sleep between loop iterations.
const DefaultPeriod = 40 * time.Millisecond

// ControlSource selects the value paired with the previous record.
type ControlSource string

const (
	// ControlFromFollower pairs the previous record with the current follower sample.
	ControlFromFollower ControlSource = "follower"
	// ControlFromCommand pairs it with the drive command issued after it was recorded.
	ControlFromCommand ControlSource = "command"
)

// Stop reasons recorded in the manifest and catalog.
const (
	StopRequested = "stopped"
	StopSafeZone  = "safe_zone"
)

// State is a control loop update for the UI.
type State struct {
	Positions map[robot.JointName]float64
	Iteration uint64
	Timestamp time.Time
	Err       error
}

// Config holds configuration for the recorder.
type Config struct {
	MasterDevice    string
	FollowerDevice  string
	MasterOptions   transport.Options
	FollowerOptions transport.Options

	Period        time.Duration
	Retry         protocol.RetryPolicy
	ControlSource ControlSource

	// Camera is nil when capture is disabled.
	Camera       *camera.Options
	CameraPeriod time.Duration

	SnapshotRoot string
	ImageRoot    string

	EnforceSafeZone bool
	SafeZone        robot.SafeZone
}

// RunCatalog stores finished runs.
type RunCatalog interface {
	RecordRun(ctx context.Context, run catalog.Run, snapshots []catalog.Snapshot) error
}

// Deps are the recorder's collaborators. Zero values get working defaults.
type Deps struct {
	OpenLink   transport.Opener
	OpenCamera camera.Opener
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Catalog    RunCatalog
	Now        func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.OpenLink == nil {
		d.OpenLink = transport.OpenLink
	}
	if d.OpenCamera == nil {
		d.OpenCamera = camera.Open
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Summary describes a finished run.
type Summary struct {
	RunID       string
	StartedAt   time.Time
	EndedAt     time.Time
	SnapshotDir string
	ImageDir    string
	Records     int
	Written     int
	Failed      int
	Frames      int
	StopReason  string
}

// Recorder owns the links, camera and output directories of one run.
type Recorder struct {
	cfg  Config
	deps Deps
	pc   *PipelineContext

	runID       string
	startedAt   time.Time
	snapshotDir string
	imageDir    string

	stateCh   chan State
	closeOnce sync.Once
	closeErr  error
	ran       bool
}

// Open connects both arms, opens the camera, sends the master its init
// command and creates the run's output directories. Any failure except the
// init exchange is fatal and releases what was already opened.
func Open(cfg Config, deps Deps) (*Recorder, error) {
	deps = deps.withDefaults()
	log := deps.Logger

	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.CameraPeriod <= 0 {
		cfg.CameraPeriod = DefaultPeriod
	}
	if cfg.ControlSource == "" {
		cfg.ControlSource = ControlFromFollower
	}

	master, err := robot.NewArm(robot.Master, cfg.MasterDevice, deps.OpenLink, cfg.MasterOptions)
	if err != nil {
		return nil, err
	}
	log.Info("arm connected", "role", master.Role(), "port", master.Device())

	follower, err := robot.NewArm(robot.Follower, cfg.FollowerDevice, deps.OpenLink, cfg.FollowerOptions)
	if err != nil {
		master.Close()
		return nil, err
	}
	log.Info("arm connected", "role", follower.Role(), "port", follower.Device())

	var cam camera.Source
	if cfg.Camera != nil {
		cam, err = deps.OpenCamera(*cfg.Camera)
		if err != nil {
			master.Close()
			follower.Close()
			return nil, fmt.Errorf("open camera: %w", err)
		}
		log.Info("camera opened", "device", cfg.Camera.Device)
	}

	if err := master.Send(protocol.InitCommand); err != nil {
		log.Warn("send initial command to master", "err", err)
	} else {
		resp, err := master.Receive()
		if err != nil {
			log.Warn("read master init response", "err", err)
		} else {
			log.Info("received response from master", "response", resp)
		}
	}

	startedAt := deps.Now()
	ts := startedAt.Format(TimestampLayout)
	snapshotDir := filepath.Join(cfg.SnapshotRoot, ts)
	imageDir := filepath.Join(cfg.ImageRoot, ts)

	dirs := []string{snapshotDir}
	if cam != nil {
		dirs = append(dirs, imageDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			master.Close()
			follower.Close()
			if cam != nil {
				cam.Close()
			}
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	buf := capture.NewBuffer(nil)
	pc := &PipelineContext{
		Buffer:   buf,
		Counter:  buf.Counter(),
		Master:   master,
		Follower: follower,
		Camera:   cam,
		Logger:   log,
		Metrics:  deps.Metrics,
	}
	if cam != nil {
		pc.Images = camera.NewImageStore(imageDir)
	} else {
		imageDir = ""
	}

	return &Recorder{
		cfg:         cfg,
		deps:        deps,
		pc:          pc,
		runID:       uuid.NewString(),
		startedAt:   startedAt,
		snapshotDir: snapshotDir,
		imageDir:    imageDir,
		stateCh:     make(chan State, 1),
	}, nil
}

// States returns a channel that receives control loop updates.
func (r *Recorder) States() <-chan State {
	return r.stateCh
}

// RunID returns the run's unique id.
func (r *Recorder) RunID() string {
	return r.runID
}

// SnapshotDir returns the directory snapshot files are drained into.
func (r *Recorder) SnapshotDir() string {
	return r.snapshotDir
}

// ImageDir returns the image directory, "" when the camera is disabled.
func (r *Recorder) ImageDir() string {
	return r.imageDir
}

// Pipeline exposes the shared loop state.
func (r *Recorder) Pipeline() *PipelineContext {
	return r.pc
}

func (r *Recorder) sendState(s State) {
	select {
	case r.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-r.stateCh:
		default:
		}
		select {
		case r.stateCh <- s:
		default:
		}
	}
}

// Run records until ctx is done or the follower leaves the safe zone, then
// closes the devices and drains the buffer to disk. The returned error is
// ErrOutsideSafeZone for a violation; drain failures are counted in the
// summary instead.
func (r *Recorder) Run(ctx context.Context) (Summary, error) {
	if r.ran {
		return Summary{}, errors.New("recorder already ran")
	}
	r.ran = true

	log := r.pc.Logger
	log.Info("recording started", "run", r.runID, "snapshots", r.snapshotDir, "images", r.imageDir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return controlLoop(gctx, r.pc, controlSettings{
			period:   r.cfg.Period,
			retry:    r.cfg.Retry,
			source:   r.cfg.ControlSource,
			enforce:  r.cfg.EnforceSafeZone,
			safeZone: r.cfg.SafeZone,
		}, r.sendState)
	})
	if r.pc.Camera != nil {
		g.Go(func() error {
			return captureLoop(gctx, r.pc, r.cfg.CameraPeriod)
		})
	}
	runErr := g.Wait()

	stopReason := StopRequested
	if errors.Is(runErr, ErrOutsideSafeZone) {
		stopReason = StopSafeZone
	}

	if err := r.Close(); err != nil {
		log.Warn("close devices", "err", err)
	}

	endedAt := r.deps.Now()
	snaps := r.drain()

	sum := Summary{
		RunID:       r.runID,
		StartedAt:   r.startedAt,
		EndedAt:     endedAt,
		SnapshotDir: r.snapshotDir,
		ImageDir:    r.imageDir,
		Records:     len(snaps),
		Frames:      r.pc.Frames(),
		StopReason:  stopReason,
	}
	for _, s := range snaps {
		if s.Error != "" {
			sum.Failed++
		} else {
			sum.Written++
		}
	}

	if err := writeManifest(filepath.Join(r.snapshotDir, ManifestFile), r.manifest(sum)); err != nil {
		log.Warn("write manifest", "err", err)
	}

	if r.deps.Catalog != nil {
		run := catalog.Run{
			ID:            sum.RunID,
			StartedAt:     sum.StartedAt,
			EndedAt:       sum.EndedAt,
			MasterPort:    r.cfg.MasterDevice,
			FollowerPort:  r.cfg.FollowerDevice,
			SnapshotDir:   sum.SnapshotDir,
			ImageDir:      sum.ImageDir,
			ControlSource: string(r.cfg.ControlSource),
			Records:       sum.Records,
			Written:       sum.Written,
			Failed:        sum.Failed,
			Frames:        sum.Frames,
			StopReason:    sum.StopReason,
		}
		if err := r.deps.Catalog.RecordRun(context.WithoutCancel(ctx), run, snaps); err != nil {
			log.Warn("record run in catalog", "err", err)
		}
	}

	log.Info("recording finished", "records", sum.Records, "written", sum.Written,
		"failed", sum.Failed, "frames", sum.Frames, "reason", sum.StopReason)
	return sum, runErr
}

// Close closes both links and the camera. It is called by Run and is safe to
// call again, or instead of Run when recording never starts.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		if err := r.pc.Master.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := r.pc.Follower.Close(); err != nil {
			errs = append(errs, err)
		}
		if r.pc.Camera != nil {
			if err := r.pc.Camera.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
