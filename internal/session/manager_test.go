package session

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestCreate(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_sessions"})
	pub := &recordingPublisher{}
	m := NewManager(pub, gauge)

	s, err := m.Create("refactor auth", ModePairProgramming, Participant{ID: "dev1", Name: "Sam"}, 0.5)
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, ModePairProgramming, s.Mode)
	require.Len(t, s.Participants, 1)
	assert.Equal(t, RoleDeveloper, s.Participants["dev1"].Role)
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
	assert.Equal(t, []string{EventCreated}, pub.types())
}

func TestCreate_HighAgenticLevelAddsMamaBear(t *testing.T) {
	m := NewManager(nil, nil)

	s, err := m.Create("autopilot", ModeResearch, Participant{ID: "dev1"}, 0.8)
	require.NoError(t, err)

	mb, ok := s.Participants[MamaBearID]
	require.True(t, ok)
	assert.Equal(t, RoleAgenticController, mb.Role)

	s, err = m.Create("manual", ModeResearch, Participant{ID: "dev1"}, 0.7)
	require.NoError(t, err)
	assert.NotContains(t, s.Participants, MamaBearID)
}

func TestCreate_Validation(t *testing.T) {
	m := NewManager(nil, nil)

	_, err := m.Create("x", "karaoke", Participant{ID: "dev1"}, 0)
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = m.Create("x", ModeDesign, Participant{}, 0)
	assert.ErrorIs(t, err, ErrInvalidParticipantID)

	_, err = m.Create("x", ModeDesign, Participant{ID: "dev1", Role: "boss"}, 0)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestJoinLeave(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewManager(pub, nil)
	s, err := m.Create("review", ModeCodeReview, Participant{ID: "dev1"}, 0)
	require.NoError(t, err)

	s, err = m.Join(s.ID, Participant{ID: "dev2", Role: RoleMentor})
	require.NoError(t, err)
	assert.Len(t, s.Participants, 2)

	_, err = m.Join(s.ID, Participant{ID: "dev2"})
	assert.ErrorIs(t, err, ErrDuplicateParticipant)

	_, err = m.Join("missing", Participant{ID: "dev3"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	s, err = m.Leave(s.ID, "dev1")
	require.NoError(t, err)
	assert.NotContains(t, s.Participants, "dev1")

	_, err = m.Leave(s.ID, "dev1")
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	_, err = m.Leave("missing", "dev1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Equal(t, []string{EventCreated, EventJoined, EventLeft}, pub.types())
}

func TestTakeover(t *testing.T) {
	m := NewManager(nil, nil)
	s, err := m.Create("debug", ModeDebugging, Participant{ID: "dev1"}, 0.2)
	require.NoError(t, err)

	s, err = m.Takeover(s.ID, "leadership")
	require.NoError(t, err)
	assert.Equal(t, ModeAgenticTakeover, s.Mode)
	assert.Equal(t, 0.8, s.AgenticControlLevel)
	assert.Equal(t, RoleAgenticController, s.Participants[MamaBearID].Role)

	_, err = m.Takeover(s.ID, "total")
	assert.ErrorIs(t, err, ErrInvalidTakeoverLevel)

	_, err = m.Takeover("missing", "autonomous")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewManager(nil, nil)
	s, err := m.Create("x", ModeLearning, Participant{ID: "dev1"}, 0)
	require.NoError(t, err)

	s.Participants["intruder"] = Participant{ID: "intruder"}

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Participants, "intruder")

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestList(t *testing.T) {
	m := NewManager(nil, nil)
	for i := 0; i < 3; i++ {
		_, err := m.Create("s", ModeBrainstorming, Participant{ID: "dev1"}, 0)
		require.NoError(t, err)
	}
	assert.Len(t, m.List(), 3)
	assert.Equal(t, 3, m.Count())
}

func TestConcurrentJoins(t *testing.T) {
	m := NewManager(nil, nil)
	s, err := m.Create("party", ModeBrainstorming, Participant{ID: "host"}, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every goroutine races to add the same participant.
			if _, err := m.Join(s.ID, Participant{ID: "same"}); err == nil {
				mu.Lock()
				joined++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, joined, "duplicate participants are rejected under concurrency")
	got, _ := m.Get(s.ID)
	assert.Len(t, got.Participants, 2)
}
