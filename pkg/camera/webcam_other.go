//go:build !linux

package camera

import "fmt"

// Open reports the camera as unavailable: capture needs V4L2.
func Open(opts Options) (Source, error) {
	return nil, fmt.Errorf("open camera %s: %w", opts.Device, ErrUnavailable)
}
