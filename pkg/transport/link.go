// Package transport provides line-oriented serial links to the arms.
package transport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the rate both arms are configured for.
const DefaultBaudRate = 115200

// receiveBufferSize bounds a single Receive call.
const receiveBufferSize = 1024

// ErrClosed is returned when a link is used after Close.
var ErrClosed = errors.New("link closed")

// Link is a line-oriented request/response endpoint.
type Link interface {
	// Send writes text, appending a line terminator if it has none.
	Send(text string) error
	// Receive returns the text currently available, without its trailing
	// line terminator. It returns "" when nothing arrived within the read timeout.
	Receive() (string, error)
	Close() error
}

// Opener opens a link to a device. It lets callers swap in test links.
type Opener func(device string, opts Options) (Link, error)

// Options holds serial parameters for a link.
type Options struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// DefaultOptions returns 115200 baud with a short read timeout.
func DefaultOptions() Options {
	return Options{
		BaudRate:    DefaultBaudRate,
		ReadTimeout: 50 * time.Millisecond,
	}
}

// Normalize applies defaults for unset values.
func (o Options) Normalize() Options {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultOptions().ReadTimeout
	}
	return o
}

// SerialMode converts the options into an 8N1 serial.Mode.
func (o Options) SerialMode() *serial.Mode {
	o = o.Normalize()
	return &serial.Mode{
		BaudRate: o.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Error describes a failed operation on a link.
type Error struct {
	Op     string // open, send, receive, close
	Device string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SerialLink is a Link over a serial port.
type SerialLink struct {
	device string

	mu     sync.Mutex
	port   io.ReadWriteCloser
	buf    []byte
	closed bool
}

// Open opens and configures the serial device. Pending input is discarded.
func Open(device string, opts Options) (*SerialLink, error) {
	opts = opts.Normalize()

	port, err := serial.Open(device, opts.SerialMode())
	if err != nil {
		return nil, &Error{Op: "open", Device: device, Err: err}
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, &Error{Op: "open", Device: device, Err: fmt.Errorf("set read timeout: %w", err)}
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, &Error{Op: "open", Device: device, Err: fmt.Errorf("flush input: %w", err)}
	}

	return NewLink(device, port), nil
}

// OpenLink is an Opener backed by Open.
func OpenLink(device string, opts Options) (Link, error) {
	return Open(device, opts)
}

// NewLink wraps an already configured port.
func NewLink(device string, port io.ReadWriteCloser) *SerialLink {
	return &SerialLink{
		device: device,
		port:   port,
		buf:    make([]byte, receiveBufferSize),
	}
}

// Send writes text followed by a newline if it does not already end in one.
func (l *SerialLink) Send(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return &Error{Op: "send", Device: l.device, Err: ErrClosed}
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := io.WriteString(l.port, text); err != nil {
		return &Error{Op: "send", Device: l.device, Err: err}
	}
	return nil
}

// Receive reads whatever is available and strips one trailing line terminator.
func (l *SerialLink) Receive() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return "", &Error{Op: "receive", Device: l.device, Err: ErrClosed}
	}
	n, err := l.port.Read(l.buf)
	if err != nil && !(errors.Is(err, io.EOF) && n == 0) {
		return "", &Error{Op: "receive", Device: l.device, Err: err}
	}
	return trimTerminator(string(l.buf[:n])), nil
}

// Close closes the port. Closing twice is a no-op.
func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.port.Close(); err != nil {
		return &Error{Op: "close", Device: l.device, Err: err}
	}
	return nil
}

func trimTerminator(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}
