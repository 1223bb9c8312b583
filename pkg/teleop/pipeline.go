package teleop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gwillem/armrec/pkg/camera"
	"github.com/gwillem/armrec/pkg/capture"
	"github.com/gwillem/armrec/pkg/metrics"
	"github.com/gwillem/armrec/pkg/protocol"
	"github.com/gwillem/armrec/pkg/robot"
)

// ErrOutsideSafeZone ends a run when the follower leaves the safe zone and
// enforcement is on.
var ErrOutsideSafeZone = errors.New("follower outside safe zone")

// PipelineContext is the state shared by the control and capture loops.
type PipelineContext struct {
	Buffer   *capture.Buffer
	Counter  *capture.FrameCounter
	Master   *robot.Arm
	Follower *robot.Arm
	Camera   camera.Source
	Images   *camera.ImageStore
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	frames atomic.Int64
}

// Frames returns the number of images saved so far.
func (pc *PipelineContext) Frames() int {
	return int(pc.frames.Load())
}

// controlSettings is the part of Config the control loop reads.
type controlSettings struct {
	period   time.Duration
	retry    protocol.RetryPolicy
	source   ControlSource
	enforce  bool
	safeZone robot.SafeZone
}

// controlLoop mirrors the master onto the follower and records follower
// samples until ctx is done. It only returns an error for a safe zone violation.
func controlLoop(ctx context.Context, pc *PipelineContext, s controlSettings, emit func(State)) error {
	var lastCommand robot.JointSample
	for {
		if ctx.Err() != nil {
			return nil
		}

		cmd, err := controlStep(pc, s, lastCommand, emit)
		if err != nil {
			return err
		}
		if cmd != nil {
			lastCommand = *cmd
		}

		if sleepCtx(ctx, s.period) != nil {
			return nil
		}
	}
}

// controlStep runs one iteration. It returns the drive command the follower
// accepted, or nil when none was sent.
func controlStep(pc *PipelineContext, s controlSettings, lastCommand robot.JointSample, emit func(State)) (*robot.JointSample, error) {
	res, err := protocol.Exchange(pc.Master, pc.Follower, s.retry)
	if err != nil {
		result := metrics.ResultSendError
		switch {
		case errors.Is(err, protocol.ErrNoData):
			result = metrics.ResultNoData
			pc.Logger.Warn("no data received, skipping iteration", "attempts", res.Attempts)
		case errors.Is(err, protocol.ErrFieldNotFound), errors.Is(err, protocol.ErrMalformedNumber):
			result = metrics.ResultParseError
			pc.Logger.Warn("parse response", "err", err)
		default:
			pc.Logger.Error("exchange", "err", err)
		}
		pc.Metrics.Iterations.WithLabelValues(result).Inc()
		emit(State{Err: err, Timestamp: time.Now()})
		return nil, nil
	}
	pc.Metrics.ExchangeAttempts.Observe(float64(res.Attempts))

	if s.enforce {
		pose, err := protocol.ParsePose(res.FollowerRaw)
		if err != nil {
			pc.Metrics.Iterations.WithLabelValues(metrics.ResultParseError).Inc()
			pc.Logger.Warn("parse follower pose", "err", err)
			emit(State{Err: err, Timestamp: time.Now()})
			return nil, nil
		}
		if !s.safeZone.Contains(pose) {
			pc.Metrics.Iterations.WithLabelValues(metrics.ResultSafeZone).Inc()
			if err := pc.Follower.Send(protocol.EmergencyStop); err != nil {
				pc.Logger.Error("send emergency stop", "err", err)
			}
			err := fmt.Errorf("%w: x=%g y=%g z=%g", ErrOutsideSafeZone, pose.X, pose.Y, pose.Z)
			pc.Logger.Error("arm is out of the safe zone, stopping", "x", pose.X, "y", pose.Y, "z", pose.Z)
			emit(State{Err: err, Timestamp: time.Now()})
			return nil, err
		}
	}

	link := res.Follower
	if s.source == ControlFromCommand {
		link = lastCommand
	}
	iteration := pc.Buffer.AppendAndLinkPrevious(res.Follower, link)
	pc.Metrics.Buffered.Set(float64(pc.Buffer.Len()))
	pc.Logger.Debug("processed iteration", "iteration", iteration, "master", res.MasterRaw)

	target := res.Master
	sent := &target
	if err := pc.Follower.Send(protocol.DriveCommand(target)); err != nil {
		sent = nil
		pc.Metrics.DriveErrors.Inc()
		pc.Logger.Error("drive follower", "err", err)
	}
	pc.Metrics.Iterations.WithLabelValues(metrics.ResultOK).Inc()

	emit(State{
		Positions: res.Follower.Positions(),
		Iteration: iteration,
		Timestamp: time.Now(),
	})
	return sent, nil
}

// captureLoop saves one camera frame per period, tagged with the current
// frame counter, until ctx is done.
func captureLoop(ctx context.Context, pc *PipelineContext, period time.Duration) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		captureStep(pc)

		if sleepCtx(ctx, period) != nil {
			return nil
		}
	}
}

func captureStep(pc *PipelineContext) {
	frame, err := pc.Camera.Capture()
	if err != nil {
		pc.Metrics.Frames.WithLabelValues(metrics.ResultCaptureError).Inc()
		pc.Logger.Warn("capture frame", "err", err)
		return
	}

	idx := pc.Counter.Load()
	path, err := pc.Images.Save(idx, frame)
	if err != nil {
		pc.Metrics.Frames.WithLabelValues(metrics.ResultSaveError).Inc()
		pc.Logger.Warn("save frame", "err", err)
		return
	}
	pc.frames.Add(1)
	pc.Metrics.Frames.WithLabelValues(metrics.ResultSaved).Inc()
	pc.Logger.Debug("saved image", "path", path)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
