// Package camera captures still frames for the recorder and stores them as
// JPEG files tagged with the frame counter.
package camera

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrUnavailable is returned when no camera can be opened on this platform.
var ErrUnavailable = errors.New("camera unavailable")

// Source yields one encoded JPEG frame per call.
type Source interface {
	Capture() ([]byte, error)
	Close() error
}

// Opener opens a Source.
type Opener func(opts Options) (Source, error)

// Options configures a capture device.
type Options struct {
	Device  string
	Width   uint32
	Height  uint32
	Timeout time.Duration
}

// DefaultOptions returns a 640x480 capture from /dev/video0.
func DefaultOptions() Options {
	return Options{
		Device:  "/dev/video0",
		Width:   640,
		Height:  480,
		Timeout: time.Second,
	}
}

// ImageStore writes frames into one directory.
type ImageStore struct {
	dir string
}

// NewImageStore returns a store writing into dir. The directory must exist.
func NewImageStore(dir string) *ImageStore {
	return &ImageStore{dir: dir}
}

// Path returns the file path for frame idx.
func (s *ImageStore) Path(idx uint64) string {
	return filepath.Join(s.dir, "frame_"+strconv.FormatUint(idx, 10)+".jpg")
}

// Save writes frame as frame_<idx>.jpg, replacing any earlier frame with the same index.
func (s *ImageStore) Save(idx uint64, frame []byte) (string, error) {
	path := s.Path(idx)
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return "", fmt.Errorf("save frame %d: %w", idx, err)
	}
	return path, nil
}
