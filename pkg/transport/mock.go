package transport

import (
	"sync"
)

// MockLink implements Link for tests. Sent text is recorded and Receive
// drains a queue of responses, returning "" when the queue is empty.
type MockLink struct {
	mu sync.Mutex

	// Responder, if set, is called for every successful Send and a non-empty
	// return value is queued for Receive. It models a request/response device.
	Responder func(text string) string

	// SendErr is returned by every Send while set.
	SendErr error

	// ReceiveErr is returned by every Receive while set.
	ReceiveErr error

	// CloseErr is returned by Close if set.
	CloseErr error

	sent         []string
	queue        []string
	receiveCalls int
	closed       bool
}

// NewMockLink creates a MockLink that answers every Send with responder.
func NewMockLink(responder func(text string) string) *MockLink {
	return &MockLink{Responder: responder}
}

// Send records the text and queues the responder's answer.
func (m *MockLink) Send(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &Error{Op: "send", Device: "mock", Err: ErrClosed}
	}
	if m.SendErr != nil {
		return &Error{Op: "send", Device: "mock", Err: m.SendErr}
	}
	m.sent = append(m.sent, text)
	if m.Responder != nil {
		if resp := m.Responder(text); resp != "" {
			m.queue = append(m.queue, resp)
		}
	}
	return nil
}

// Receive pops the next queued response.
func (m *MockLink) Receive() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.receiveCalls++
	if m.closed {
		return "", &Error{Op: "receive", Device: "mock", Err: ErrClosed}
	}
	if m.ReceiveErr != nil {
		return "", &Error{Op: "receive", Device: "mock", Err: m.ReceiveErr}
	}
	if len(m.queue) == 0 {
		return "", nil
	}
	resp := m.queue[0]
	m.queue = m.queue[1:]
	return resp, nil
}

// Close marks the link closed.
func (m *MockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return m.CloseErr
}

// Queue adds responses to be returned by subsequent Receive calls.
func (m *MockLink) Queue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, responses...)
}

// Sent returns a copy of everything sent so far.
func (m *MockLink) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

// ReceiveCalls returns the number of Receive calls.
func (m *MockLink) ReceiveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.receiveCalls
}

// Closed reports whether Close was called.
func (m *MockLink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}
