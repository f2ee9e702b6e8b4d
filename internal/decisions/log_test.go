package decisions

import (
	"fmt"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	l := NewLog(10)

	d := l.Record(Decision{Type: ModelSelection, Reasoning: "express", Action: "route to gemini-2.0-flash-lite-001"})
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.Timestamp.IsZero())
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, int64(1), l.Total())
}

func TestRing_EvictsOldest(t *testing.T) {
	l := NewLog(3)
	base := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		l.Record(Decision{ID: fmt.Sprintf("d%d", i), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, int64(5), l.Total())

	recent := l.Recent(time.Time{}, 0)
	require.Len(t, recent, 3)
	assert.Equal(t, "d4", recent[0].ID)
	assert.Equal(t, "d2", recent[2].ID)
}

func TestRecent_FiltersAndLimits(t *testing.T) {
	l := NewLog(100)
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

	l.Record(Decision{ID: "old", Timestamp: now.Add(-48 * time.Hour)})
	for i := 0; i < 15; i++ {
		l.Record(Decision{ID: fmt.Sprintf("new%d", i), Timestamp: now.Add(time.Duration(i) * time.Second)})
	}

	recent := l.Recent(now.Add(-24*time.Hour), 10)
	require.Len(t, recent, 10)
	assert.Equal(t, "new14", recent[0].ID)
	for _, d := range recent {
		assert.NotEqual(t, "old", d.ID)
	}

	assert.Len(t, l.Recent(now.Add(-24*time.Hour), 0), 15)
	assert.Empty(t, NewLog(5).Recent(time.Time{}, 10))
}

func TestExport(t *testing.T) {
	l := NewLog(5)
	ok := true
	l.Record(Decision{ID: "a", Type: CostOptimization, Success: &ok})
	l.Record(Decision{ID: "b", Type: RoutingOptimization})

	data, err := l.Export()
	require.NoError(t, err)

	var out []Decision
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.True(t, *out[0].Success)
	assert.Nil(t, out[1].Success)
}

func TestRecord_Concurrent(t *testing.T) {
	l := NewLog(50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				l.Record(Decision{Type: ModelSelection})
				_ = l.Recent(time.Time{}, 10)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, l.Len())
	assert.Equal(t, int64(200), l.Total())
}
