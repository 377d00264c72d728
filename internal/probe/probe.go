package probe

import (
	"strings"
	"sync"
	"time"
)

// State is the lifecycle state of a probe
type State int

const (
	StateWaiting State = iota
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state can no longer change
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateError
}

// UpdatedMarker appears in responses served by a relaunched backend
const UpdatedMarker = "(updated)"

// Probe is one HTTP request and its outcome
type Probe struct {
	Seq     int
	created time.Time

	mu       sync.RWMutex
	state    State
	response string
	elapsed  time.Duration
	err      error
}

// Snapshot is a consistent copy of a probe's fields
type Snapshot struct {
	Seq      int
	State    State
	Response string
	Elapsed  time.Duration
	Err      error
}

// New creates a waiting probe whose clock starts now
func New(seq int) *Probe {
	return &Probe{Seq: seq, created: time.Now()}
}

// Succeed records a response. It returns false if the probe was already terminal.
func (p *Probe) Succeed(response string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Terminal() {
		return false
	}
	p.state = StateSuccess
	p.response = response
	p.elapsed = time.Since(p.created)
	return true
}

// Fail records a transport error. It returns false if the probe was already terminal.
func (p *Probe) Fail(err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Terminal() {
		return false
	}
	p.state = StateError
	p.err = err
	p.elapsed = time.Since(p.created)
	return true
}

// Snapshot returns a copy of the probe taken under its lock
func (p *Probe) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		Seq:      p.Seq,
		State:    p.state,
		Response: p.response,
		Elapsed:  p.elapsed,
		Err:      p.err,
	}
}

// ElapsedMs is the elapsed time floored to whole milliseconds
func (s Snapshot) ElapsedMs() int64 {
	return s.Elapsed.Milliseconds()
}

// Updated reports whether the response came from a relaunched process
func (s Snapshot) Updated() bool {
	return s.State == StateSuccess && strings.Contains(s.Response, UpdatedMarker)
}

// Sequence is the append-only, ordered list of probes of a run
type Sequence struct {
	mu     sync.RWMutex
	probes []*Probe
}

// NewSequence creates an empty sequence
func NewSequence() *Sequence {
	return &Sequence{}
}

// Append adds a probe at the end
func (s *Sequence) Append(p *Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes = append(s.probes, p)
}

// Len returns the number of probes issued so far
func (s *Sequence) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.probes)
}

// Snapshot returns a copy of every probe in sequence order
func (s *Sequence) Snapshot() []Snapshot {
	s.mu.RLock()
	probes := make([]*Probe, len(s.probes))
	copy(probes, s.probes)
	s.mu.RUnlock()

	out := make([]Snapshot, len(probes))
	for i, p := range probes {
		out[i] = p.Snapshot()
	}
	return out
}
