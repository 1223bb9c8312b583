package camera

import "sync"

// MockSource returns canned frames for tests.
type MockSource struct {
	mu     sync.Mutex
	frames [][]byte
	errs   []error
	calls  int
	closed bool

	// Frame is returned once the queued frames are used up.
	Frame []byte
}

// NewMockSource returns a source that yields frame on every capture.
func NewMockSource(frame []byte) *MockSource {
	return &MockSource{Frame: frame}
}

// Queue adds frames returned before Frame. A nil frame paired with a non-nil
// error makes that capture fail.
func (m *MockSource) Queue(frame []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
	m.errs = append(m.errs, err)
}

func (m *MockSource) Capture() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if len(m.frames) > 0 {
		frame, err := m.frames[0], m.errs[0]
		m.frames, m.errs = m.frames[1:], m.errs[1:]
		return frame, err
	}
	return m.Frame, nil
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns the number of Capture calls.
func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
