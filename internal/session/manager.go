// Package session manages in-memory collaborative sessions between developers
// and Mama Bear. Sessions are not persisted and are lost on restart.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrDuplicateParticipant = errors.New("participant already in session")
	ErrParticipantNotFound  = errors.New("participant not in session")
	ErrInvalidMode          = errors.New("invalid session mode")
	ErrInvalidRole          = errors.New("invalid participant role")
	ErrInvalidTakeoverLevel = errors.New("invalid takeover level")
	ErrInvalidParticipantID = errors.New("participant id is required")
)

// Mode is the purpose of a session.
type Mode string

const (
	ModePairProgramming Mode = "pair_programming"
	ModeCodeReview      Mode = "code_review"
	ModeBrainstorming   Mode = "brainstorming"
	ModeDebugging       Mode = "debugging"
	ModeLearning        Mode = "learning"
	ModeResearch        Mode = "research"
	ModeDesign          Mode = "design"
	ModeAgenticTakeover Mode = "agentic_takeover"
)

var validModes = map[Mode]bool{
	ModePairProgramming: true, ModeCodeReview: true, ModeBrainstorming: true, ModeDebugging: true,
	ModeLearning: true, ModeResearch: true, ModeDesign: true, ModeAgenticTakeover: true,
}

// Role is a participant's role within a session.
type Role string

const (
	RoleDeveloper         Role = "developer"
	RoleMamaBear          Role = "mama_bear"
	RoleScout             Role = "scout"
	RoleMentor            Role = "mentor"
	RoleObserver          Role = "observer"
	RoleAgenticController Role = "agentic_controller"
)

var validRoles = map[Role]bool{
	RoleDeveloper: true, RoleMamaBear: true, RoleScout: true,
	RoleMentor: true, RoleObserver: true, RoleAgenticController: true,
}

// MamaBearID is the participant id used when Mama Bear takes control.
const MamaBearID = "mama_bear_ai"

// autoControlThreshold is the agentic level above which Mama Bear joins a
// new session as controller.
const autoControlThreshold = 0.7

// TakeoverLevels maps takeover names to agentic control levels.
var TakeoverLevels = map[string]float64{
	"collaborative": 0.6,
	"leadership":    0.8,
	"autonomous":    0.95,
}

// Participant is a member of a session.
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Session is a collaborative workspace.
type Session struct {
	ID                  string                 `json:"id"`
	Name                string                 `json:"name"`
	Mode                Mode                   `json:"mode"`
	Participants        map[string]Participant `json:"participants"`
	CreatedAt           time.Time              `json:"created_at"`
	LastActivity        time.Time              `json:"last_activity"`
	AgenticControlLevel float64                `json:"agentic_control_level"`
}

func (s *Session) clone() *Session {
	c := *s
	c.Participants = make(map[string]Participant, len(s.Participants))
	for k, v := range s.Participants {
		c.Participants[k] = v
	}
	return &c
}

// Event types published on session changes.
const (
	EventCreated  = "session_created"
	EventJoined   = "participant_joined"
	EventLeft     = "participant_left"
	EventTakeover = "agentic_takeover"
)

// Event describes a session change.
type Event struct {
	Type        string       `json:"type"`
	SessionID   string       `json:"session_id"`
	Participant *Participant `json:"participant,omitempty"`
	Session     *Session     `json:"session"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Publisher receives session events.
type Publisher interface {
	Publish(Event)
}

// Manager owns all sessions. All methods are safe for concurrent use and
// return copies.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	pub   Publisher
	gauge prometheus.Gauge
	now   func() time.Time
}

// NewManager creates a Manager. pub and gauge may be nil.
func NewManager(pub Publisher, gauge prometheus.Gauge) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		pub:      pub,
		gauge:    gauge,
		now:      time.Now,
	}
}

// Create starts a session with creator as its first participant. When
// agenticLevel exceeds 0.7 Mama Bear joins as agentic controller.
func (m *Manager) Create(name string, mode Mode, creator Participant, agenticLevel float64) (*Session, error) {
	if !validModes[mode] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if creator.ID == "" {
		return nil, ErrInvalidParticipantID
	}
	if creator.Role == "" {
		creator.Role = RoleDeveloper
	}
	if !validRoles[creator.Role] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, creator.Role)
	}
	if agenticLevel < 0 {
		agenticLevel = 0
	} else if agenticLevel > 1 {
		agenticLevel = 1
	}

	now := m.now()
	s := &Session{
		ID:                  uuid.New().String(),
		Name:                name,
		Mode:                mode,
		Participants:        make(map[string]Participant),
		CreatedAt:           now,
		LastActivity:        now,
		AgenticControlLevel: agenticLevel,
	}
	creator.JoinedAt = now
	s.Participants[creator.ID] = creator
	if agenticLevel > autoControlThreshold && creator.ID != MamaBearID {
		s.Participants[MamaBearID] = mamaBear(now)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	out := s.clone()
	count := len(m.sessions)
	m.mu.Unlock()

	m.setGauge(count)
	m.publish(EventCreated, out, &creator)
	return out, nil
}

// Join adds p to the session.
func (m *Manager) Join(id string, p Participant) (*Session, error) {
	if p.ID == "" {
		return nil, ErrInvalidParticipantID
	}
	if p.Role == "" {
		p.Role = RoleDeveloper
	}
	if !validRoles[p.Role] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if _, exists := s.Participants[p.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, p.ID)
	}
	now := m.now()
	p.JoinedAt = now
	s.Participants[p.ID] = p
	s.LastActivity = now
	out := s.clone()
	m.mu.Unlock()

	m.publish(EventJoined, out, &p)
	return out, nil
}

// Leave removes a participant. The session stays open even when empty.
func (m *Manager) Leave(id, participantID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	p, exists := s.Participants[participantID]
	if !exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrParticipantNotFound, participantID)
	}
	delete(s.Participants, participantID)
	s.LastActivity = m.now()
	out := s.clone()
	m.mu.Unlock()

	m.publish(EventLeft, out, &p)
	return out, nil
}

// Takeover hands control to Mama Bear at the named level and switches the
// session to agentic_takeover mode.
func (m *Manager) Takeover(id, level string) (*Session, error) {
	control, ok := TakeoverLevels[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTakeoverLevel, level)
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	now := m.now()
	s.Mode = ModeAgenticTakeover
	s.AgenticControlLevel = control
	s.LastActivity = now
	mb, exists := s.Participants[MamaBearID]
	if !exists {
		mb = mamaBear(now)
	}
	mb.Role = RoleAgenticController
	s.Participants[MamaBearID] = mb
	out := s.clone()
	m.mu.Unlock()

	m.publish(EventTakeover, out, &mb)
	return out, nil
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.clone(), nil
}

// List returns all sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) publish(kind string, s *Session, p *Participant) {
	if m.pub == nil {
		return
	}
	m.pub.Publish(Event{Type: kind, SessionID: s.ID, Participant: p, Session: s, Timestamp: m.now()})
}

func (m *Manager) setGauge(n int) {
	if m.gauge != nil {
		m.gauge.Set(float64(n))
	}
}

func mamaBear(now time.Time) Participant {
	return Participant{ID: MamaBearID, Name: "Mama Bear", Role: RoleAgenticController, JoinedAt: now}
}
