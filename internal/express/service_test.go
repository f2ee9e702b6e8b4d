package express

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gemini-Podplai/mumabear/internal/budget"
	"github.com/Gemini-Podplai/mumabear/internal/decisions"
	"github.com/Gemini-Podplai/mumabear/internal/metrics"
	"github.com/Gemini-Podplai/mumabear/internal/provider"
	"github.com/Gemini-Podplai/mumabear/internal/router"
	"github.com/Gemini-Podplai/mumabear/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type stubClient struct {
	content string
	err     error
	block   chan struct{}
	calls   atomic.Int32
}

func (c *stubClient) Generate(ctx context.Context, call provider.Call) (*provider.Completion, error) {
	c.calls.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &provider.Completion{Content: c.content, InputTokens: 40, OutputTokens: 60}, nil
}

type memStore struct {
	mu      sync.Mutex
	records []*models.RequestRecord
	err     error
}

func (m *memStore) InsertRequest(_ context.Context, r *models.RequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return m.err
}

func (m *memStore) all() []*models.RequestRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.RequestRecord(nil), m.records...)
}

type fixture struct {
	svc       *Service
	vertex    *stubClient
	geminiAPI *stubClient
	claude    *stubClient
	store     *memStore
	decisions *decisions.Log
}

func newFixture(t *testing.T, tweak func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		vertex:    &stubClient{content: "Hello from Vertex Gemini"},
		geminiAPI: &stubClient{content: "Hello from the Gemini API"},
		claude:    &stubClient{content: "Hello from Claude"},
		store:     &memStore{},
		decisions: decisions.NewLog(100),
	}

	reg := provider.NewRegistry()
	reg.Register(models.ProviderVertexGemini, f.vertex)
	reg.Register(models.ProviderGeminiAPI, f.geminiAPI)
	reg.Register(models.ProviderVertexClaude, f.claude)

	catalog := router.DefaultCatalog()
	fallback, ok := catalog.Get(router.ModelGeminiAPIFlash)
	require.True(t, ok)

	opts := Options{
		Router:    router.NewRouter(catalog, nil),
		Executor:  provider.NewExecutor(reg, fallback, time.Second),
		Registry:  reg,
		Recorder:  metrics.NewRecorder(nil),
		Decisions: f.decisions,
		Store:     f.store,
	}
	if tweak != nil {
		tweak(&opts)
	}
	f.svc = NewService(opts)
	t.Cleanup(f.svc.Close)
	return f
}

func TestChat_MessageRequired(t *testing.T) {
	f := newFixture(t, nil)

	for _, msg := range []string{"", "   \n\t"} {
		_, err := f.svc.Chat(context.Background(), ChatRequest{Message: msg})
		assert.ErrorIs(t, err, ErrMessageRequired)
	}
	assert.Zero(t, f.vertex.calls.Load())
}

func TestChat_ExplicitExpressModel(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.svc.Chat(context.Background(), ChatRequest{
		Message: "Hello! How are you today?",
		Model:   router.ModelFlashLite,
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello from Vertex Gemini", resp.Response)
	assert.Equal(t, router.ModelFlashLite, resp.ModelUsed)
	assert.Equal(t, models.ProviderVertexGemini, resp.Provider)
	assert.False(t, resp.FallbackUsed)
	assert.Equal(t, router.KindExplicitModel.String(), resp.Decision.Kind)
	assert.NotEmpty(t, resp.Decision.ID)
	assert.NotEmpty(t, resp.RequestID)
	assert.Less(t, resp.Latency, 30*time.Second)
	assert.Equal(t, "express", resp.PerformanceTier)
	assert.Equal(t, int64(40), resp.InputTokens)
	assert.InDelta(t, 0.1*0.00002, resp.CostUSD, 1e-12)
}

func TestChat_UrgentRoutesToExpress(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.svc.Chat(context.Background(), ChatRequest{Message: "URGENT: production is down, fix asap"})
	require.NoError(t, err)
	assert.Equal(t, router.KindExpress.String(), resp.Decision.Kind)
	assert.Equal(t, router.ModelFlashLite, resp.ModelUsed)
}

func TestChat_PrimaryFailureFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.vertex.err = errors.New("quota exhausted")

	resp, err := f.svc.Chat(context.Background(), ChatRequest{Message: "hi", Mode: router.ModeExpress})
	require.NoError(t, err)

	assert.True(t, resp.FallbackUsed)
	assert.Contains(t, resp.FallbackReason, "quota exhausted")
	assert.Equal(t, router.ModelGeminiAPIFlash, resp.ModelUsed)
	assert.Equal(t, "Hello from the Gemini API", resp.Response)
	assert.Equal(t, "fallback", resp.PerformanceTier)

	snap := f.svc.Status().PerformanceMetrics
	assert.Equal(t, int64(1), snap.FallbackCount)
	assert.Equal(t, int64(1), snap.ErrorCount)
	assert.Equal(t, map[string]int64{string(models.ProviderGeminiAPI): 1}, snap.ProviderCounts)
	assert.InDelta(t, metrics.BaselineCostPer1K-0.0001, snap.CostSavingsToday, 1e-12)

	// Health is still charged to the model that failed.
	stats, ok := f.svc.recorder.ModelStats(resp.Decision.ModelID)
	require.True(t, ok)
	assert.Equal(t, 1, stats.ConsecutiveErrors)
}

func TestChat_EverythingFailsReturnsNotice(t *testing.T) {
	f := newFixture(t, nil)
	f.vertex.err = errors.New("down")
	f.geminiAPI.err = errors.New("also down")

	resp, err := f.svc.Chat(context.Background(), ChatRequest{Message: "quick question", Mode: router.ModeExpress})
	require.NoError(t, err)
	assert.True(t, resp.FallbackUsed)
	assert.Contains(t, resp.Response, "Mama Bear System Notice")
	assert.Equal(t, "system_notice", resp.ModelUsed)
}

func TestChat_PersistsRecord(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.svc.Chat(context.Background(), ChatRequest{
		Message: "hello", UserID: "u1", Variant: "creative_bear", Mode: router.ModeExpress,
	})
	require.NoError(t, err)
	f.svc.Close()

	recs := f.store.all()
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, resp.RequestID, r.ID)
	assert.Equal(t, "u1", r.UserID)
	assert.Equal(t, "creative_bear", r.Variant)
	assert.Equal(t, router.ModeExpress, r.Mode)
	assert.Equal(t, router.KindExpress.String(), r.RoutingKind)
	assert.Equal(t, int64(100), r.TotalTokens)
	assert.Greater(t, r.SavingsUSD, 0.0)
}

func TestChat_StoreErrorDoesNotFailRequest(t *testing.T) {
	f := newFixture(t, nil)
	f.store.err = errors.New("db unavailable")

	resp, err := f.svc.Chat(context.Background(), ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Response)
}

func TestChat_UnknownVariantUsesDefault(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.svc.Chat(context.Background(), ChatRequest{Message: "hello", Variant: "grizzly"})
	require.NoError(t, err)
	assert.Equal(t, "scout_commander", resp.Variant)
}

func TestAgenticModes(t *testing.T) {
	tests := []struct {
		mode          string
		wantKind      string
		wantDecisions int
		wantHistory   bool
	}{
		{"full", router.KindExpress.String(), 1, true},
		{"routing_only", router.KindExpress.String(), 0, false},
		{"disabled", router.KindManual.String(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			f := newFixture(t, nil)
			cfg, err := f.svc.Configure(tt.mode)
			require.NoError(t, err)
			assert.Equal(t, AgenticMode(tt.mode), cfg.Mode)
			assert.NotEmpty(t, cfg.Message)
			before := f.decisions.Total()

			resp, err := f.svc.Chat(context.Background(), ChatRequest{Message: "urgent help", Mode: router.ModeExpress})
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, resp.Decision.Kind)

			assert.Equal(t, int64(tt.wantDecisions), f.decisions.Total()-before)
			_, tracked := f.svc.Status().ModelPerformance[resp.ModelUsed]
			assert.Equal(t, tt.wantHistory, tracked)
		})
	}
}

func TestConfigure(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Configure("turbo")
	assert.ErrorIs(t, err, ErrInvalidAgenticMode)
	assert.Equal(t, AgenticFull, f.svc.AgenticMode())

	cfg, err := f.svc.Configure("routing_only")
	require.NoError(t, err)
	assert.True(t, cfg.AutonomousMode)
	assert.False(t, cfg.LearningEnabled)

	recent := f.decisions.Recent(time.Time{}, 1)
	require.Len(t, recent, 1)
	assert.Equal(t, decisions.InfrastructureScaling, recent[0].Type)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Chat(context.Background(), ChatRequest{Message: "hi", Mode: router.ModeExpress})
		require.NoError(t, err)
	}

	st := f.svc.Status()
	assert.True(t, st.AutonomousModeEnabled)
	assert.True(t, st.LearningEnabled)
	assert.Equal(t, int64(3), st.PerformanceMetrics.RequestsProcessed)
	assert.Equal(t, int64(3), st.PerformanceMetrics.ExpressModeUsage)
	assert.Len(t, st.RecentDecisions, 3)
	assert.Contains(t, st.AvailableModels, router.ModelFlashLite)
	require.Contains(t, st.ModelPerformance, router.ModelFlashVertex)
	assert.Equal(t, 1.0, st.ModelPerformance[router.ModelFlashVertex].SuccessRate)
}

func TestStatus_RecentDecisionsCapped(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 15; i++ {
		_, err := f.svc.Chat(context.Background(), ChatRequest{Message: "hi"})
		require.NoError(t, err)
	}
	assert.Len(t, f.svc.Status().RecentDecisions, recentDecisionLimit)
}

func TestModels(t *testing.T) {
	f := newFixture(t, nil)
	ms := f.svc.Models()

	require.Contains(t, ms, router.ModelGPT4o)
	assert.False(t, ms[router.ModelGPT4o].Configured)
	assert.True(t, ms[router.ModelFlashLite].Configured)
	assert.True(t, ms[router.ModelFlashLite].ExpressMode)
	assert.True(t, ms[router.ModelFlashLite].Healthy)
}

func TestRoute_DryRun(t *testing.T) {
	f := newFixture(t, nil)

	d, a := f.svc.Route(ChatRequest{Message: "please review this architecture design", Mode: router.ModePremium})
	assert.NotEmpty(t, d.ModelID)
	assert.GreaterOrEqual(t, a.Complexity, 3)
	assert.Zero(t, f.vertex.calls.Load()+f.claude.calls.Load()+f.geminiAPI.calls.Load())
	assert.Zero(t, f.decisions.Total())
}

func TestChat_BudgetFailClosed(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Budget = budget.NewEnforcer(nil, false)
	})

	_, err := f.svc.Chat(context.Background(), ChatRequest{Message: "hi", UserID: "u1"})
	assert.ErrorIs(t, err, ErrBudgetExceeded)

	// Anonymous requests are not budgeted.
	_, err = f.svc.Chat(context.Background(), ChatRequest{Message: "hi"})
	assert.NoError(t, err)
}

func TestChat_AdmissionRespectsContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t, func(o *Options) { o.MaxConcurrent = 1; o.Store = nil })
	f.vertex.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.svc.Chat(context.Background(), ChatRequest{Message: "hi", Mode: router.ModeExpress})
	}()
	require.Eventually(t, func() bool { return f.vertex.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.svc.Chat(ctx, ChatRequest{Message: "hi", Mode: router.ModeExpress})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(f.vertex.block)
	<-done
}

func TestChat_Concurrent(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxConcurrent = 4 })

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Chat(context.Background(), ChatRequest{Message: "hello there"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	f.svc.Close()

	assert.Equal(t, int64(40), f.svc.Status().PerformanceMetrics.RequestsProcessed)
	assert.Len(t, f.store.all(), 40)
}

func TestParseAgenticMode(t *testing.T) {
	for _, m := range []string{"full", "routing_only", "disabled"} {
		got, err := ParseAgenticMode(m)
		require.NoError(t, err)
		assert.Equal(t, AgenticMode(m), got)
	}
	_, err := ParseAgenticMode("")
	assert.ErrorIs(t, err, ErrInvalidAgenticMode)
}
