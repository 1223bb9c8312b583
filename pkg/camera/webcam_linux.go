package camera

import (
	"errors"
	"fmt"

	"github.com/blackjack/webcam"
)

// V4L2 fourcc codes.
const (
	formatMJPEG webcam.PixelFormat = 0x47504A4D // MJPG
	formatYUYV  webcam.PixelFormat = 0x56595559 // YUYV
)

// Webcam is a V4L2 capture device.
type Webcam struct {
	cam     *webcam.Webcam
	format  webcam.PixelFormat
	width   int
	height  int
	timeout uint32
}

// Open starts streaming from a V4L2 device, preferring MJPEG and falling back
// to YUYV with software JPEG encoding.
func Open(opts Options) (Source, error) {
	cam, err := webcam.Open(opts.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", opts.Device, err)
	}

	supported := cam.GetSupportedFormats()
	var format webcam.PixelFormat
	switch {
	case supported[formatMJPEG] != "":
		format = formatMJPEG
	case supported[formatYUYV] != "":
		format = formatYUYV
	default:
		cam.Close()
		return nil, fmt.Errorf("camera %s: no MJPEG or YUYV format: %w", opts.Device, ErrUnavailable)
	}

	got, w, h, err := cam.SetImageFormat(format, opts.Width, opts.Height)
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("set camera format: %w", err)
	}
	if got != format {
		cam.Close()
		return nil, fmt.Errorf("camera %s: driver chose format %#x: %w", opts.Device, uint32(got), ErrUnavailable)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("start camera stream: %w", err)
	}

	timeout := uint32(opts.Timeout.Seconds())
	if timeout == 0 {
		timeout = 1
	}
	return &Webcam{
		cam:     cam,
		format:  format,
		width:   int(w),
		height:  int(h),
		timeout: timeout,
	}, nil
}

// Capture waits for the next frame and returns it as JPEG.
func (c *Webcam) Capture() ([]byte, error) {
	if err := c.cam.WaitForFrame(c.timeout); err != nil {
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			return nil, fmt.Errorf("wait for frame: timed out after %ds", c.timeout)
		}
		return nil, fmt.Errorf("wait for frame: %w", err)
	}

	frame, err := c.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if len(frame) == 0 {
		return nil, errors.New("read frame: empty frame")
	}

	if c.format == formatYUYV {
		return yuyvToJPEG(frame, c.width, c.height)
	}
	// The driver reuses the mmap buffer for the next frame.
	out := make([]byte, len(frame))
	copy(out, frame)
	return out, nil
}

// Close stops streaming and releases the device.
func (c *Webcam) Close() error {
	return c.cam.Close()
}
