// Package robot provides the joint model and arm endpoints for leader/follower arms.
package robot

import "fmt"

// JointName identifies a joint in the arm.
type JointName string

// Joint names for the four-axis arm, in telemetry order.
const (
	Shoulder JointName = "shoulder"
	Base     JointName = "base"
	Elbow    JointName = "elbow"
	Hand     JointName = "hand"
)

// AllJoints returns all joint names in sample order.
func AllJoints() []JointName {
	return []JointName{
		Shoulder,
		Base,
		Elbow,
		Hand,
	}
}

// Key returns the telemetry field name reported by the arm for this joint.
func (n JointName) Key() string {
	switch n {
	case Shoulder:
		return "s"
	case Base:
		return "b"
	case Elbow:
		return "e"
	case Hand:
		return "t"
	}
	return ""
}

// JointSample holds one reading (or command) for all four joints.
type JointSample struct {
	Shoulder float32
	Base     float32
	Elbow    float32
	Hand     float32
}

// Values returns the joint values in sample order: shoulder, base, elbow, hand.
func (s JointSample) Values() []float32 {
	return []float32{s.Shoulder, s.Base, s.Elbow, s.Hand}
}

// Get returns the value of a single joint.
func (s JointSample) Get(name JointName) float32 {
	switch name {
	case Shoulder:
		return s.Shoulder
	case Base:
		return s.Base
	case Elbow:
		return s.Elbow
	case Hand:
		return s.Hand
	}
	return 0
}

// Set assigns the value of a single joint.
func (s *JointSample) Set(name JointName, v float32) {
	switch name {
	case Shoulder:
		s.Shoulder = v
	case Base:
		s.Base = v
	case Elbow:
		s.Elbow = v
	case Hand:
		s.Hand = v
	}
}

// Positions returns the sample as a map, widened to float64 for display.
func (s JointSample) Positions() map[JointName]float64 {
	positions := make(map[JointName]float64, 4)
	for _, name := range AllJoints() {
		positions[name] = float64(s.Get(name))
	}
	return positions
}

// SampleFromValues builds a sample from values in sample order.
func SampleFromValues(values []float32) (JointSample, error) {
	joints := AllJoints()
	if len(values) != len(joints) {
		return JointSample{}, fmt.Errorf("expected %d joint values, got %d", len(joints), len(values))
	}
	var s JointSample
	for i, name := range joints {
		s.Set(name, values[i])
	}
	return s, nil
}

// Pose is the end-effector position reported by the follower.
type Pose struct {
	X float32
	Y float32
	Z float32
}
