package nfc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

// Intent is what the next tag contact should do
type Intent int

const (
	IntentNone Intent = iota
	IntentRead
	IntentWrite
	IntentWipe
)

var intentLabels = map[Intent]string{
	IntentNone:  "none",
	IntentRead:  "read",
	IntentWrite: "write",
	IntentWipe:  "wipe",
}

func (i Intent) String() string {
	if label, ok := intentLabels[i]; ok {
		return label
	}
	return intentLabels[IntentNone]
}

// StateKind enumerates the session states
type StateKind string

const (
	StateIdle        StateKind = "idle"
	StateAwaitingTag StateKind = "awaiting_tag"
	StateProcessing  StateKind = "processing"
)

// State is the session state; Intent is set for AwaitingTag and Processing
type State struct {
	Kind   StateKind `json:"kind"`
	Intent Intent    `json:"-"`
}

func (s State) String() string {
	if s.Kind == StateIdle {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Intent)
}

// User-facing status messages
const (
	StatusReady                = "Ready"
	StatusAwaitingRead         = "Approach an NFC tag to read"
	StatusAwaitingWrite        = "Approach an NFC tag to write the prescription"
	StatusAwaitingWipe         = "Approach an NFC tag to wipe"
	StatusReadingStopped       = "Reading stopped"
	StatusReadSucceeded        = "read succeeded"
	StatusWriteSucceeded       = "write succeeded"
	StatusWipeSucceeded        = "wipe succeeded"
	StatusInvalidFormat        = "empty or invalid format"
	StatusReadOnly             = "read-only tag"
	StatusInsufficientCapacity = "insufficient capacity"
	StatusUnsupported          = "unsupported tag"
	StatusWriteFailed          = "write failed"
)

var failureStatuses = []struct {
	err    error
	status string
}{
	{ErrReadOnlyTag, StatusReadOnly},
	{ErrInsufficientCapacity, StatusInsufficientCapacity},
	{ErrUnsupportedTag, StatusUnsupported},
	{ErrMalformedPayload, StatusInvalidFormat},
}

func failureStatus(err error, fallback string) string {
	for _, f := range failureStatuses {
		if errors.Is(err, f.err) {
			return f.status
		}
	}
	return fallback
}

// EventRecorder receives one call per handled tag contact
type EventRecorder interface {
	RecordTagEvent(intent, result string)
}

// Outcome describes how a tag contact was handled
type Outcome struct {
	Intent  Intent
	Status  string
	Ignored bool
	Payload *model.PrescriptionPayload
	Err     error
}

// Snapshot is a consistent view of the session
type Snapshot struct {
	State    State
	Status   string
	Reading  bool
	LastRead *model.PrescriptionPayload
}

// Session serializes tag contacts and the read/write/wipe requests that drive them
type Session struct {
	mimeType string
	recorder EventRecorder
	logger   *zap.Logger

	mu             sync.Mutex
	reading        bool
	pending        Intent
	pendingPayload string
	pendingGen     uint64
	processing     bool
	active         Intent
	status         string
	lastRead       *model.PrescriptionPayload
	readGen        uint64
}

// NewSession creates an idle session writing records of the given MIME type
func NewSession(mimeType string, recorder EventRecorder, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		mimeType: mimeType,
		recorder: recorder,
		logger:   logger,
		status:   StatusReady,
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.processing:
		return State{Kind: StateProcessing, Intent: s.active}
	case s.pending != IntentNone:
		return State{Kind: StateAwaitingTag, Intent: s.pending}
	case s.reading:
		return State{Kind: StateAwaitingTag, Intent: IntentRead}
	default:
		return State{Kind: StateIdle}
	}
}

// Snapshot returns state, status and the last read payload together
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:   s.stateLocked(),
		Status:  s.status,
		Reading: s.reading,
	}
	if s.lastRead != nil {
		p := *s.lastRead
		snap.LastRead = &p
	}
	return snap
}

// StartReading arms passive reading. It only has an effect from Idle.
func (s *Session) StartReading() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stateLocked().Kind == StateIdle {
		s.reading = true
		s.status = StatusAwaitingRead
		s.logger.Debug("tag reading started")
	}
	return s.stateLocked()
}

// StopReading disarms passive reading
func (s *Session) StopReading() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reading {
		s.reading = false
		if s.pending == IntentNone {
			s.status = StatusReadingStopped
		}
		s.logger.Debug("tag reading stopped")
	}
	return s.stateLocked()
}

// PrepareToWrite makes the next tag contact write payloadJSON. It replaces any
// pending write or wipe.
func (s *Session) PrepareToWrite(payloadJSON string) State {
	return s.prepare(IntentWrite, payloadJSON, StatusAwaitingWrite)
}

// PrepareToWipe makes the next tag contact overwrite the tag with an empty object
func (s *Session) PrepareToWipe() State {
	return s.prepare(IntentWipe, "{}", StatusAwaitingWipe)
}

func (s *Session) prepare(intent Intent, payload, status string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != IntentNone {
		s.logger.Debug("replacing pending tag intent",
			zap.Stringer("previous", s.pending),
			zap.Stringer("next", intent),
		)
	}
	s.pending = intent
	s.pendingPayload = payload
	s.pendingGen++
	s.status = status
	return s.stateLocked()
}

// LastRead returns the payload of the last successful read
func (s *Session) LastRead() (model.PrescriptionPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRead == nil {
		return model.PrescriptionPayload{}, false
	}
	return *s.lastRead, true
}

// LastReadGen is LastRead plus a generation that changes with every
// successful read
func (s *Session) LastReadGen() (model.PrescriptionPayload, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRead == nil {
		return model.PrescriptionPayload{}, s.readGen, false
	}
	return *s.lastRead, s.readGen, true
}

// DiscardLastRead drops the last read payload
func (s *Session) DiscardLastRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRead = nil
}

// DiscardLastReadIf drops the last read payload only if no read has completed
// since gen was observed. It reports whether the payload was dropped.
func (s *Session) DiscardLastReadIf(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRead == nil || s.readGen != gen {
		return false
	}
	s.lastRead = nil
	return true
}

// OnTagPresence handles one tag contact. A pending write or wipe wins over
// passive reading. Contacts that arrive while another one is being processed
// are ignored.
func (s *Session) OnTagPresence(ctx context.Context, tag Tag) Outcome {
	s.mu.Lock()
	if s.processing {
		active := s.active
		s.mu.Unlock()
		s.logger.Debug("tag contact ignored while processing", zap.Stringer("active_intent", active))
		s.record(IntentNone, "ignored")
		return Outcome{Ignored: true, Status: s.currentStatus()}
	}

	intent := IntentNone
	payload := ""
	gen := s.pendingGen
	switch {
	case s.pending != IntentNone:
		intent, payload = s.pending, s.pendingPayload
	case s.reading:
		intent = IntentRead
	}
	if intent == IntentNone {
		status := s.status
		s.mu.Unlock()
		s.record(IntentNone, "ignored")
		return Outcome{Ignored: true, Status: status}
	}
	s.processing = true
	s.active = intent
	s.mu.Unlock()

	var out Outcome
	switch intent {
	case IntentRead:
		out = s.read(ctx, tag)
	default:
		out = s.write(ctx, tag, intent, payload)
	}

	s.mu.Lock()
	s.processing = false
	s.active = IntentNone
	s.status = out.Status
	if intent == IntentRead {
		s.reading = false
		if out.Payload != nil {
			p := *out.Payload
			s.lastRead = &p
			s.readGen++
		}
	} else if s.pendingGen == gen {
		s.pending = IntentNone
		s.pendingPayload = ""
	}
	s.mu.Unlock()

	result := "ok"
	if out.Err != nil {
		result = "failed"
		s.logger.Warn("tag operation failed",
			zap.Stringer("intent", intent),
			zap.String("status", out.Status),
			zap.Error(out.Err),
		)
	} else {
		s.logger.Info("tag operation completed",
			zap.Stringer("intent", intent),
			zap.String("status", out.Status),
		)
	}
	s.record(intent, result)

	return out
}

func (s *Session) read(ctx context.Context, tag Tag) Outcome {
	out := Outcome{Intent: IntentRead}

	if !tag.SupportsNDEF() {
		out.Err = ErrUnsupportedTag
		out.Status = StatusUnsupported
		return out
	}

	var raw []byte
	err := withTag(ctx, tag, func() error {
		var err error
		raw, err = tag.ReadMessage(ctx)
		return err
	})
	if err != nil {
		out.Err = fmt.Errorf("failed to read tag: %w", err)
		out.Status = StatusInvalidFormat
		return out
	}

	p, err := Decode(raw)
	if err != nil {
		out.Err = err
		out.Status = StatusInvalidFormat
		return out
	}

	out.Payload = &p
	out.Status = StatusReadSucceeded
	return out
}

func (s *Session) write(ctx context.Context, tag Tag, intent Intent, doc string) Outcome {
	out := Outcome{Intent: intent}

	if !tag.SupportsNDEF() {
		out.Err = ErrUnsupportedTag
		out.Status = StatusUnsupported
		return out
	}

	msg := Encode(doc, s.mimeType)
	err := withTag(ctx, tag, func() error {
		if !tag.IsWritable() {
			return ErrReadOnlyTag
		}
		if len(msg) > tag.MaxSize() {
			return fmt.Errorf("%w: record needs %d bytes, tag holds %d",
				ErrInsufficientCapacity, len(msg), tag.MaxSize())
		}
		return tag.WriteMessage(ctx, msg)
	})
	if err != nil {
		out.Err = err
		out.Status = failureStatus(err, StatusWriteFailed)
		return out
	}

	out.Status = StatusWriteSucceeded
	if intent == IntentWipe {
		out.Status = StatusWipeSucceeded
	}
	return out
}

// withTag holds the tag channel for the duration of fn and always releases it
func withTag(ctx context.Context, tag Tag, fn func() error) (err error) {
	if err := tag.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to tag: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tag operation panicked: %v", r)
		}
		if cerr := tag.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close tag: %w", cerr)
		}
	}()

	return fn()
}

func (s *Session) currentStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) record(intent Intent, result string) {
	if s.recorder != nil {
		s.recorder.RecordTagEvent(intent.String(), result)
	}
}
