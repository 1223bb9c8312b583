package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// fakePort is an in-memory serial port: reads drain chunks, writes accumulate.
type fakePort struct {
	chunks   [][]byte
	written  bytes.Buffer
	readErr  error
	writeErr error
	closed   bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.chunks) == 0 {
		return 0, nil // read timeout
	}
	n := copy(b, p.chunks[0])
	p.chunks = p.chunks[1:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestSerialLink_SendAppendsNewline(t *testing.T) {
	port := &fakePort{}
	link := NewLink("/dev/ttyTEST", port)

	require.NoError(t, link.Send(`{"T":105}`))
	require.NoError(t, link.Send("{\"T\":210,\"cmd\":0}\n"))

	assert.Equal(t, "{\"T\":105}\n{\"T\":210,\"cmd\":0}\n", port.written.String())
}

func TestSerialLink_ReceiveStripsTerminator(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  string
	}{
		{"crlf", "{\"s\":1}\r\n", "{\"s\":1}"},
		{"lf", "{\"s\":1}\n", "{\"s\":1}"},
		{"none", "{\"s\":1}", "{\"s\":1}"},
		{"only one terminator stripped", "a\r\n\r\n", "a\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := NewLink("/dev/ttyTEST", &fakePort{chunks: [][]byte{[]byte(tt.chunk)}})
			got, err := link.Receive()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerialLink_ReceiveTimeoutIsEmpty(t *testing.T) {
	link := NewLink("/dev/ttyTEST", &fakePort{})

	got, err := link.Receive()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSerialLink_Errors(t *testing.T) {
	boom := errors.New("boom")
	port := &fakePort{readErr: boom, writeErr: boom}
	link := NewLink("/dev/ttyTEST", port)

	err := link.Send("x")
	var linkErr *Error
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, "send", linkErr.Op)
	assert.Equal(t, "/dev/ttyTEST", linkErr.Device)
	assert.ErrorIs(t, err, boom)

	_, err = link.Receive()
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, "receive", linkErr.Op)
}

func TestSerialLink_EOFWithoutDataIsEmpty(t *testing.T) {
	link := NewLink("/dev/ttyTEST", &fakePort{readErr: io.EOF})

	got, err := link.Receive()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSerialLink_Close(t *testing.T) {
	port := &fakePort{}
	link := NewLink("/dev/ttyTEST", port)

	require.NoError(t, link.Close())
	require.NoError(t, link.Close())
	assert.True(t, port.closed)

	assert.ErrorIs(t, link.Send("x"), ErrClosed)
	_, err := link.Receive()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOptions_SerialMode(t *testing.T) {
	mode := Options{}.SerialMode()

	assert.Equal(t, DefaultBaudRate, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)

	opts := Options{BaudRate: 9600}.Normalize()
	assert.Equal(t, 9600, opts.BaudRate)
	assert.Equal(t, DefaultOptions().ReadTimeout, opts.ReadTimeout)
}

func TestListPorts(t *testing.T) {
	orig := portLister
	t.Cleanup(func() { portLister = orig })

	portLister = func() ([]string, error) {
		return []string{"/dev/ttyUSB1", "/dev/cu.Bluetooth-Incoming-Port", "/dev/ttyUSB0"}, nil
	}
	ports, err := ListPorts()
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, ports)

	portLister = func() ([]string, error) { return []string{"/dev/cu.Bluetooth-Incoming-Port"}, nil }
	_, err = ListPorts()
	assert.ErrorIs(t, err, ErrNoPorts)

	boom := errors.New("permission denied")
	portLister = func() ([]string, error) { return nil, boom }
	_, err = ListPorts()
	assert.ErrorIs(t, err, boom)
}

func TestMockLink_Responder(t *testing.T) {
	link := NewMockLink(func(text string) string {
		if text == "ping" {
			return "pong"
		}
		return ""
	})

	require.NoError(t, link.Send("ping"))
	require.NoError(t, link.Send("other"))

	got, err := link.Receive()
	require.NoError(t, err)
	assert.Equal(t, "pong", got)

	got, err = link.Receive()
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Equal(t, []string{"ping", "other"}, link.Sent())
	assert.Equal(t, 2, link.ReceiveCalls())

	require.NoError(t, link.Close())
	assert.True(t, link.Closed())
	assert.ErrorIs(t, link.Send("ping"), ErrClosed)
}
