package prefetch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eldopolis/portal-core/types"
)

type nopLogger struct{}

func (nopLogger) Error(msg string, fields ...zap.Field)                  {}
func (nopLogger) Warn(msg string, fields ...zap.Field)                   {}
func (nopLogger) Info(msg string, fields ...zap.Field)                   {}
func (nopLogger) Debug(msg string, fields ...zap.Field)                  {}
func (nopLogger) Log(lvl zapcore.Level, msg string, fields ...zap.Field) {}

// fakeContent records which pages were fetched in the background.
type fakeContent struct {
	pageCalls     int64
	categoryCalls []string
	tagCalls      []string
}

func (f *fakeContent) GetNewsPage(ctx context.Context, pageSize int, cursor int64) types.NewsPage {
	atomic.AddInt64(&f.pageCalls, 1)
	return types.NewsPage{Records: []types.NewsRecord{{ID: "latest"}}, HasMore: true}
}

func (f *fakeContent) GetNewsByCategory(ctx context.Context, category string, pageSize int, cursor int64) types.NewsPage {
	f.categoryCalls = append(f.categoryCalls, category)
	return types.NewsPage{Records: []types.NewsRecord{{ID: "c-" + category}}, HasMore: true}
}

func (f *fakeContent) GetNewsByTag(ctx context.Context, tag string, pageSize int, cursor int64) types.NewsPage {
	f.tagCalls = append(f.tagCalls, tag)
	return types.NewsPage{Records: []types.NewsRecord{{ID: "t-" + tag}}, HasMore: true}
}

type fakeNetwork struct {
	slow  bool
	saver bool
}

func (f *fakeNetwork) SlowConnection() bool   { return f.slow }
func (f *fakeNetwork) DataSaverEnabled() bool { return f.saver }

func newTestEngine(t *testing.T, network NetworkMonitor, config *types.PrefetchConfig) (*Engine, *fakeContent, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	content := &fakeContent{}
	engine := NewEngine(content, network, nopLogger{}, nil, clock, config)
	return engine, content, clock
}

func TestPredict_CategoryAffinity(t *testing.T) {
	engine, content, clock := newTestEngine(t, nil, nil)
	session := NewSession(engine)

	session.Track(ActionVisitCategory, Event{Category: "Política"})

	// Trailing 10s debounce, then the 5s scheduling batch window.
	clock.Advance(10 * time.Second)
	clock.Advance(5 * time.Second)

	keys := engine.Queue().Keys()
	want := map[string]bool{"category_Economía": false, "category_Sociedad": false}
	for _, key := range keys {
		if _, ok := want[key]; !ok {
			t.Fatalf("unrelated prediction queued: %s", key)
		}
		want[key] = true
	}
	for key, seen := range want {
		if !seen {
			t.Fatalf("expected prediction %s", key)
		}
	}

	// Medium priority executes after its 15s delay.
	clock.Advance(15 * time.Second)
	if len(content.categoryCalls) != 2 {
		t.Fatalf("expected 2 category prefetches, got %v", content.categoryCalls)
	}

	if _, ok := engine.GetPrefetched("category_Economía"); !ok {
		t.Fatal("prefetched page should be readable")
	}
}

func TestPredict_VisitedCategoryNotRefetched(t *testing.T) {
	engine, content, clock := newTestEngine(t, nil, nil)
	session := NewSession(engine)

	session.Track(ActionVisitCategory, Event{Category: "Política"})
	session.Track(ActionVisitCategory, Event{Category: "Economía"})

	clock.Advance(10 * time.Second)
	clock.Advance(5 * time.Second)

	for _, key := range engine.Queue().Keys() {
		if key == "category_Economía" || key == "category_Política" {
			t.Fatalf("already-visited section must not be predicted: %s", key)
		}
	}

	clock.Advance(20 * time.Second)
	for _, category := range content.categoryCalls {
		if category == "Economía" || category == "Política" {
			t.Fatalf("already-visited section was prefetched: %s", category)
		}
	}
}

func TestTrack_DebounceCollapsesBursts(t *testing.T) {
	engine, _, clock := newTestEngine(t, nil, nil)
	session := NewSession(engine)

	session.Track(ActionVisitCategory, Event{Category: "Deportes"})
	clock.Advance(5 * time.Second)
	if engine.Queue().Len() != 0 {
		t.Fatal("prediction must wait for the trailing debounce")
	}

	session.Track(ActionScroll, Event{Depth: 0.8})
	clock.Advance(9 * time.Second)
	if engine.Queue().Len() != 0 {
		t.Fatal("debounce must restart on every event")
	}

	clock.Advance(1 * time.Second)
	clock.Advance(5 * time.Second)
	if engine.Queue().Len() == 0 {
		t.Fatal("trailing call must trigger prediction")
	}
}

func TestPredict_AbortsForIdleSession(t *testing.T) {
	engine, _, clock := newTestEngine(t, nil, &types.PrefetchConfig{
		Enabled:            true,
		PredictionDebounce: 10 * time.Second,
		ScheduleDebounce:   5 * time.Second,
		PredictionIdle:     8 * time.Second,
		ExecutionIdle:      90 * time.Second,
	})
	session := NewSession(engine)

	session.Track(ActionVisitCategory, Event{Category: "Política"})

	// The debounce outlives the idle window, so by the time prediction runs
	// the session no longer qualifies.
	clock.Advance(10 * time.Second)
	clock.Advance(5 * time.Second)

	if engine.Queue().Len() != 0 {
		t.Fatal("idle session must not produce predictions")
	}
}

func TestExecute_SkipsAfterExecutionIdleWindow(t *testing.T) {
	engine, content, clock := newTestEngine(t, nil, &types.PrefetchConfig{
		Enabled:            true,
		PredictionDebounce: 10 * time.Second,
		ScheduleDebounce:   5 * time.Second,
		PredictionIdle:     120 * time.Second,
		ExecutionIdle:      20 * time.Second,
	})
	session := NewSession(engine)

	session.Track(ActionVisitCategory, Event{Category: "Deportes"})

	// 10s debounce + 5s batch + 15s medium delay = 30s since last activity,
	// past the 20s execution window.
	clock.Advance(30 * time.Second)

	if len(content.categoryCalls) != 0 {
		t.Fatalf("idle execution must be skipped, got %v", content.categoryCalls)
	}
	if engine.Queue().Len() != 0 {
		t.Fatal("skipped item must be discarded")
	}
}

func TestExecute_SkipsOnConstrainedNetwork(t *testing.T) {
	engine, content, clock := newTestEngine(t, &fakeNetwork{saver: true}, nil)
	session := NewSession(engine)

	session.Track(ActionVisitCategory, Event{Category: "Deportes"})
	session.Track(ActionScroll, Event{Depth: 0.5})
	clock.Advance(10 * time.Second)
	clock.Advance(5 * time.Second)
	clock.Advance(15 * time.Second)

	if len(content.categoryCalls) != 0 {
		t.Fatalf("data-saver must suppress prefetching, got %v", content.categoryCalls)
	}
}

func TestExecute_AdmissionGateLimitsConcurrency(t *testing.T) {
	engine, content, clock := newTestEngine(t, nil, nil)
	session := NewSession(engine)

	session.Track(ActionVisitCategory, Event{Category: "Deportes"})
	clock.Advance(10 * time.Second)
	clock.Advance(5 * time.Second)

	// Occupy the single admission slot before the delayed execution fires.
	engine.gate <- struct{}{}
	clock.Advance(15 * time.Second)

	if len(content.categoryCalls) != 0 {
		t.Fatalf("gate-busy execution must be skipped, got %v", content.categoryCalls)
	}

	<-engine.gate
}

func TestReadingTime_QueuesLatestNews(t *testing.T) {
	engine, content, clock := newTestEngine(t, nil, nil)
	session := NewSession(engine)

	session.Track(ActionReadingTime, Event{Elapsed: 130 * time.Second})
	clock.Advance(10 * time.Second)
	clock.Advance(5 * time.Second)

	found := false
	for _, key := range engine.Queue().Keys() {
		if key == "latest_news" {
			found = true
		}
	}
	if !found {
		t.Fatal("long reading time must queue a latest-news prefetch")
	}

	// High priority runs after 10s.
	clock.Advance(10 * time.Second)
	if atomic.LoadInt64(&content.pageCalls) != 1 {
		t.Fatalf("expected one latest-news fetch, got %d", content.pageCalls)
	}
}

func TestGetPrefetched_LazyMaxAgeExpiry(t *testing.T) {
	engine, _, clock := newTestEngine(t, nil, nil)
	session := NewSession(engine)

	session.Track(ActionVisitTag, Event{Tag: "sequía"})
	clock.Advance(10 * time.Second)
	clock.Advance(5 * time.Second)
	clock.Advance(20 * time.Second)

	key := "tag_" + tagPool[0]
	if _, ok := engine.GetPrefetched(key); !ok {
		t.Fatal("fresh prefetched item should be readable")
	}

	clock.Advance(31 * time.Minute)
	if _, ok := engine.GetPrefetched(key); ok {
		t.Fatal("item past maxAge must expire on read")
	}
	if _, ok := engine.Queue().GetPrefetched(key, clock.Now()); ok {
		t.Fatal("expired item must be removed")
	}
}

func TestSweepExpired_RemovesStaleItems(t *testing.T) {
	engine, _, clock := newTestEngine(t, nil, nil)
	session := NewSession(engine)

	session.Track(ActionVisitTag, Event{Tag: "sequía"})
	clock.Advance(10 * time.Second)
	clock.Advance(5 * time.Second)
	clock.Advance(20 * time.Second)

	if engine.Queue().Len() == 0 {
		t.Fatal("expected populated queue before the sweep")
	}

	clock.Advance(31 * time.Minute)
	if err := engine.SweepExpired(); err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if engine.Queue().Len() != 0 {
		t.Fatalf("expected empty queue after sweep, have %d items", engine.Queue().Len())
	}
}
