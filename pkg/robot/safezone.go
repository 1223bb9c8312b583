package robot

// Bounds is a closed range on one axis.
type Bounds struct {
	Min float32
	Max float32
}

// Contains reports whether v lies within [Min, Max].
func (b Bounds) Contains(v float32) bool {
	return v >= b.Min && v <= b.Max
}

// SafeZone is an axis-aligned box the follower end effector should stay inside.
// It is a bounds comparison only, not a kinematic check.
type SafeZone struct {
	X Bounds
	Y Bounds
	Z Bounds
}

// DefaultSafeZone returns the workspace box measured for the follower arm.
func DefaultSafeZone() SafeZone {
	return SafeZone{
		X: Bounds{Min: -50.0, Max: 381.7},
		Y: Bounds{Min: -50.0, Max: 8.245916},
		Z: Bounds{Min: 0.0, Max: 330.0},
	}
}

// Contains reports whether the pose lies inside the box on all three axes.
func (z SafeZone) Contains(p Pose) bool {
	return z.X.Contains(p.X) && z.Y.Contains(p.Y) && z.Z.Contains(p.Z)
}
