package nfc

import (
	"context"
	"errors"
	"sync"
)

// Tag is the handle of a tag that came into range. It is only valid for the
// duration of one presence event.
type Tag interface {
	Connect(ctx context.Context) error
	Close() error
	SupportsNDEF() bool
	IsWritable() bool
	MaxSize() int
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, msg []byte) error
}

var errTagNotConnected = errors.New("nfc: tag not connected")

// MemoryTag is an in-memory Tag. The HTTP tag bridge uses it to replay tags
// reported by an external reader agent.
type MemoryTag struct {
	UID      string
	NDEF     bool
	Writable bool
	Capacity int

	// ConnectErr and WriteErr simulate transport faults
	ConnectErr error
	WriteErr   error

	mu        sync.Mutex
	data      []byte
	connected bool
	connects  int
	closes    int
}

// NewMemoryTag creates a writable NDEF tag holding data
func NewMemoryTag(uid string, capacity int, data []byte) *MemoryTag {
	return &MemoryTag{
		UID:      uid,
		NDEF:     true,
		Writable: true,
		Capacity: capacity,
		data:     append([]byte(nil), data...),
	}
}

func (t *MemoryTag) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.connected = true
	t.connects++
	return nil
}

func (t *MemoryTag) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		t.connected = false
		t.closes++
	}
	return nil
}

func (t *MemoryTag) SupportsNDEF() bool { return t.NDEF }

func (t *MemoryTag) IsWritable() bool { return t.Writable }

func (t *MemoryTag) MaxSize() int { return t.Capacity }

func (t *MemoryTag) ReadMessage(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil, errTagNotConnected
	}
	return append([]byte(nil), t.data...), nil
}

func (t *MemoryTag) WriteMessage(ctx context.Context, msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return errTagNotConnected
	}
	if t.WriteErr != nil {
		return t.WriteErr
	}
	t.data = append([]byte(nil), msg...)
	return nil
}

// Data returns a copy of the bytes currently on the tag
func (t *MemoryTag) Data() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.data...)
}

// Open reports whether the tag channel is still held
func (t *MemoryTag) Open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Connections returns how many times the channel was opened and released
func (t *MemoryTag) Connections() (opened, released int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects, t.closes
}
