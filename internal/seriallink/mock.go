package seriallink

import (
	"errors"
	"io"
	"sync"
)

// ErrLinkClosed is returned by reads on a closed MockLink.
var ErrLinkClosed = errors.New("serial link closed")

// MockLink implements Link over an in-memory buffer for testing. Reads drain
// the queued data and then return ReadErr (io.EOF by default), mimicking a
// peripheral that stops talking.
type MockLink struct {
	mu sync.Mutex

	data []byte

	// ReadErr is returned once the queued data is exhausted.
	ReadErr error

	// DTRStates records every level driven onto the DTR line, in order. A
	// reset pulse shows up as [false, true].
	DTRStates []bool

	// FlushCalls counts ResetInputBuffer invocations.
	FlushCalls int

	// FlushDrops, when set, makes ResetInputBuffer discard queued data,
	// like a real driver dropping pre-reset bytes.
	FlushDrops bool

	Closed bool
}

// NewMockLink returns a mock link that will serve the given bytes.
func NewMockLink(data []byte) *MockLink {
	return &MockLink{data: append([]byte(nil), data...)}
}

// Queue appends more bytes for subsequent reads.
func (m *MockLink) Queue(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, p...)
}

func (m *MockLink) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Closed {
		return 0, ErrLinkClosed
	}
	if len(m.data) == 0 {
		if m.ReadErr != nil {
			return 0, m.ReadErr
		}
		return 0, io.EOF
	}
	n := copy(p, m.data)
	m.data = m.data[n:]
	return n, nil
}

func (m *MockLink) SetDTR(high bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DTRStates = append(m.DTRStates, high)
	return nil
}

func (m *MockLink) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FlushCalls++
	if m.FlushDrops {
		m.data = nil
	}
	return nil
}

func (m *MockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
