// Package session models the gateway's per-call session context: the
// caller's profile, long-term memory and the short conversation buffer
// fed to the LLM, plus an unbounded full transcript kept for the
// session-end output spec.md names as the gateway's only outward-facing
// artifact besides audio. Grounded on the teacher's
// pkg/orchestrator/types.go ConversationSession, split into the
// read-only (Profile/Memory) and mutable (short buffer/full transcript)
// halves spec.md's §3 data model calls for, which the teacher's single
// flat Context slice does not distinguish.
package session

import (
	"strings"
	"sync"
	"time"
)

// Role identifies which side of the conversation produced a turn.
type Role string

const (
	RoleCaller Role = "caller"
	RoleAgent  Role = "agent"
)

// Profile is the caller's static profile, read-only for the life of the
// session.
type Profile struct {
	DisplayName string
	Age         *int
	// Fields holds free-text profile attributes: interests, important
	// people, sensitive topics, routines, preferred topics, a short
	// description — the exact key set is not fixed by spec.md, so callers
	// may populate whichever of these keys they have.
	Fields map[string]string
}

// FirstName returns the caller's given name only, derived by splitting on
// whitespace, per the original greeting generator's convention
// (realtime_gateway.py::send_initial_greeting). Returns "" if unknown.
func (p Profile) FirstName() string {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		return ""
	}
	parts := strings.Fields(name)
	return parts[0]
}

// Memory is the long-term memory mapping recognized by spec.md §3,
// read-only for the life of the session.
type Memory struct {
	Facts           []string
	Preferences     []string
	ImportantPeople []string
	RecentTopics    []string
	MoodIndicator   string
	HealthNotes     []string
}

// Turn is one entry in the short buffer or full transcript.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// Session is the gateway's per-call session context. It is created when
// the media stream opens and destroyed when it closes; it is owned
// exclusively by the gateway instance for that call.
type Session struct {
	CallID  string
	Profile Profile
	Memory  Memory

	mu             sync.RWMutex
	shortBuffer    []Turn
	maxShortTurns  int
	fullConversation []Turn
}

// New constructs a Session. maxShortTurns bounds the short buffer
// (spec.md default N=6); the full transcript is never bounded.
func New(callID string, profile Profile, memory Memory, maxShortTurns int) *Session {
	if maxShortTurns <= 0 {
		maxShortTurns = 6
	}
	return &Session{
		CallID:        callID,
		Profile:       profile,
		Memory:        memory,
		maxShortTurns: maxShortTurns,
	}
}

// AppendTurn records a completed turn's text into both the short buffer
// (bounded, overflow drops the oldest turn) and the unbounded full
// transcript. Per invariant I4, callers must only invoke this for turns
// that were not cancelled.
func (s *Session) AppendTurn(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := Turn{Role: role, Content: content, Timestamp: time.Now()}
	s.fullConversation = append(s.fullConversation, turn)

	s.shortBuffer = append(s.shortBuffer, turn)
	if len(s.shortBuffer) > s.maxShortTurns {
		s.shortBuffer = s.shortBuffer[len(s.shortBuffer)-s.maxShortTurns:]
	}
}

// ShortBuffer returns a copy of the current bounded conversation history,
// in chronological order, suitable for handing to the LLM client.
func (s *Session) ShortBuffer() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.shortBuffer))
	copy(out, s.shortBuffer)
	return out
}

// ShortBufferLen reports the current length of the bounded short buffer,
// used by tests asserting the "grows by exactly two entries per turn"
// round-trip law.
func (s *Session) ShortBufferLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shortBuffer)
}

// FullTranscript renders the complete, unbounded conversation as plain
// text lines, the session-end artifact spec.md names as the gateway's
// only textual output.
func (s *Session) FullTranscript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]string, 0, len(s.fullConversation))
	for _, turn := range s.fullConversation {
		lines = append(lines, string(turn.Role)+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}

// FullConversation returns a copy of every recorded turn, for callers
// that want structured access instead of the rendered transcript.
func (s *Session) FullConversation() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.fullConversation))
	copy(out, s.fullConversation)
	return out
}
