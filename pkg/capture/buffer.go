// Package capture holds the per-timestep records produced by the control loop.
//
// Records and camera frames are correlated through FrameCounter only loosely:
// the camera loop reads the counter without coordinating with the control loop,
// so an image tagged K may be taken slightly before or after record K is
// appended. The counter never goes backwards, but frame K and record K are not
// guaranteed to describe the same instant.
package capture

import (
	"sync"
	"sync/atomic"

	"github.com/gwillem/armrec/pkg/robot"
)

// Snapshot keys.
const (
	KeyJointPositions = "joint_positions"
	KeyControl        = "control"
)

// FrameCounter is the shared ordinal used to tag camera frames.
// It starts at 0 and is only advanced by Buffer.AppendAndLinkPrevious.
type FrameCounter struct {
	v atomic.Uint64
}

// Load returns the current value.
func (c *FrameCounter) Load() uint64 {
	return c.v.Load()
}

func (c *FrameCounter) inc() uint64 {
	return c.v.Add(1)
}

// Record is one timestep: the follower's observed joints and, once the next
// iteration has run, the control value paired with them.
type Record struct {
	JointPositions robot.JointSample
	Control        *robot.JointSample
}

// Fields returns the record as the key to float list mapping that is persisted.
func (r Record) Fields() map[string][]float32 {
	fields := map[string][]float32{
		KeyJointPositions: r.JointPositions.Values(),
	}
	if r.Control != nil {
		fields[KeyControl] = r.Control.Values()
	}
	return fields
}

// Buffer is the append-only capture sequence.
type Buffer struct {
	mu      sync.Mutex
	records []Record
	counter *FrameCounter
}

// NewBuffer creates an empty buffer that advances counter on every append.
func NewBuffer(counter *FrameCounter) *Buffer {
	if counter == nil {
		counter = &FrameCounter{}
	}
	return &Buffer{counter: counter}
}

// Counter returns the frame counter advanced by this buffer.
func (b *Buffer) Counter() *FrameCounter {
	return b.counter
}

// AppendAndLinkPrevious sets the previous record's control to link, appends a
// new record observing sample, and advances the frame counter, all under one
// lock. It returns the counter's new value.
func (b *Buffer) AppendAndLinkPrevious(sample, link robot.JointSample) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.records); n > 0 {
		control := link
		b.records[n-1].Control = &control
	}
	b.records = append(b.records, Record{JointPositions: sample})
	return b.counter.inc()
}

// Len returns the number of records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.records)
}

// Records returns a deep copy of the sequence in insertion order.
func (b *Buffer) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Record, len(b.records))
	for i, r := range b.records {
		out[i] = Record{JointPositions: r.JointPositions}
		if r.Control != nil {
			control := *r.Control
			out[i].Control = &control
		}
	}
	return out
}
