package prefetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
)

const (
	DefaultPredictionDebounce = 10 * time.Second
	DefaultScheduleDebounce   = 5 * time.Second
	DefaultPredictionIdle     = 120 * time.Second
	DefaultExecutionIdle      = 90 * time.Second

	fetchTimeout    = 10 * time.Second
	readingTrigger  = 120 * time.Second
	prefetchedLimit = 10
)

// Fixed category affinity table: a reader of the key section is likely to
// open the listed sections next.
var categoryAffinity = map[string][]string{
	"Política":        {"Economía", "Sociedad"},
	"Economía":        {"Política", "Internacionales"},
	"Sociedad":        {"Política", "Cultura"},
	"Deportes":        {"Sociedad"},
	"Internacionales": {"Política", "Economía"},
	"Cultura":         {"Sociedad", "Espectáculos"},
}

// Candidate pool for tag predictions, ordered by editorial interest.
var tagPool = []string{"elecciones", "dólar", "inflación", "congreso", "fútbol", "mercados"}

// ContentFetcher is the slice of the content service the engine warms the
// cache through. The service writes fetched pages into the shared cache
// itself, so a later real navigation hits.
type ContentFetcher interface {
	GetNewsPage(ctx context.Context, pageSize int, cursor int64) types.NewsPage
	GetNewsByCategory(ctx context.Context, category string, pageSize int, cursor int64) types.NewsPage
	GetNewsByTag(ctx context.Context, tag string, pageSize int, cursor int64) types.NewsPage
}

// NetworkMonitor reports runtime network constraints. A nil monitor means
// no signal is available and prefetching proceeds unrestricted.
type NetworkMonitor interface {
	SlowConnection() bool
	DataSaverEnabled() bool
}

type prediction struct {
	key      string
	priority Priority
	fetch    func(ctx context.Context) (interface{}, error)
}

// Engine derives predictions from session behavior and executes them as
// delayed background fetches, at most one in flight process-wide.
type Engine struct {
	content ContentFetcher
	queue   *Queue
	network NetworkMonitor
	logger  types.Logger
	metrics types.MetricsManager
	clock   Clock
	config  types.PrefetchConfig

	gate chan struct{}

	mu       sync.Mutex
	pending  []prediction
	schedule Timer
}

func NewEngine(content ContentFetcher, network NetworkMonitor, logger types.Logger, metrics types.MetricsManager, clock Clock, config *types.PrefetchConfig) *Engine {
	cfg := types.PrefetchConfig{
		Enabled:            true,
		PredictionDebounce: DefaultPredictionDebounce,
		ScheduleDebounce:   DefaultScheduleDebounce,
		PredictionIdle:     DefaultPredictionIdle,
		ExecutionIdle:      DefaultExecutionIdle,
	}
	if config != nil {
		cfg.Enabled = config.Enabled
		if config.PredictionDebounce > 0 {
			cfg.PredictionDebounce = config.PredictionDebounce
		}
		if config.ScheduleDebounce > 0 {
			cfg.ScheduleDebounce = config.ScheduleDebounce
		}
		if config.PredictionIdle > 0 {
			cfg.PredictionIdle = config.PredictionIdle
		}
		if config.ExecutionIdle > 0 {
			cfg.ExecutionIdle = config.ExecutionIdle
		}
	}

	if clock == nil {
		clock = NewClock()
	}

	return &Engine{
		content: content,
		queue:   NewQueue(),
		network: network,
		logger:  logger,
		metrics: metrics,
		clock:   clock,
		config:  cfg,
		gate:    make(chan struct{}, 1),
	}
}

func (e *Engine) Queue() *Queue { return e.queue }

func (e *Engine) predictionDebounce() time.Duration {
	return e.config.PredictionDebounce
}

// Predict derives candidates from the session's profile. Aborts for idle
// sessions; predictions only pay off for an engaged reader.
func (e *Engine) Predict(session *Session) {
	if !e.config.Enabled {
		return
	}

	now := e.clock.Now()
	if now.Sub(session.LastActivity()) > e.config.PredictionIdle {
		e.logger.Debug("Skipping prediction for idle session")
		return
	}

	profile := session.Profile()
	candidates := e.derive(profile)
	if len(candidates) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = append(e.pending, candidates...)

	// Rapid successive predictions batch into one scheduling pass.
	window := e.config.ScheduleDebounce
	if e.schedule == nil {
		e.schedule = e.clock.AfterFunc(window, func() {
			e.schedulePending(session)
		})
	} else {
		e.schedule.Reset(window)
	}
}

func (e *Engine) derive(profile BehaviorProfile) []prediction {
	var out []prediction

	for visited := range profile.VisitedCategories {
		for _, related := range categoryAffinity[visited] {
			if profile.VisitedCategories[related] {
				continue
			}
			out = append(out, e.categoryPrediction(related))
		}
	}

	if len(profile.VisitedTags) > 0 {
		proposed := 0
		for _, candidate := range tagPool {
			if profile.VisitedTags[candidate] {
				continue
			}
			out = append(out, e.tagPrediction(candidate))
			proposed++
			if proposed == 2 {
				break
			}
		}
	}

	if profile.ReadingTime > readingTrigger {
		out = append(out, prediction{
			key:      "latest_news",
			priority: PriorityHigh,
			fetch: func(ctx context.Context) (interface{}, error) {
				return e.content.GetNewsPage(ctx, prefetchedLimit, 0), nil
			},
		})
	}

	return out
}

func (e *Engine) categoryPrediction(category string) prediction {
	return prediction{
		key:      "category_" + category,
		priority: PriorityMedium,
		fetch: func(ctx context.Context) (interface{}, error) {
			return e.content.GetNewsByCategory(ctx, category, prefetchedLimit, 0), nil
		},
	}
}

func (e *Engine) tagPrediction(tag string) prediction {
	return prediction{
		key:      "tag_" + tag,
		priority: PriorityLow,
		fetch: func(ctx context.Context) (interface{}, error) {
			return e.content.GetNewsByTag(ctx, tag, prefetchedLimit, 0), nil
		},
	}
}

// schedulePending drains the batched candidates into the queue, arming one
// delayed execution per newly accepted item.
func (e *Engine) schedulePending(session *Session) {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.schedule = nil
	e.mu.Unlock()

	now := e.clock.Now()
	for _, candidate := range pending {
		item := &Item{
			Key:       candidate.key,
			Fetch:     candidate.fetch,
			Priority:  candidate.priority,
			Timestamp: now,
		}
		if !e.queue.Add(item) {
			continue
		}

		key := candidate.key
		e.clock.AfterFunc(candidate.priority.Delay(), func() {
			e.execute(key, session)
		})
	}
}

// execute runs one queued prefetch, applying the conservative guards:
// in-flight dedup, execution idle window, network constraints and the
// global one-slot admission gate. Failures discard the item silently.
func (e *Engine) execute(key string, session *Session) {
	now := e.clock.Now()

	if now.Sub(session.LastActivity()) > e.config.ExecutionIdle {
		e.discard(key, "session_idle")
		return
	}

	if e.network != nil && (e.network.SlowConnection() || e.network.DataSaverEnabled()) {
		e.discard(key, "network_constrained")
		return
	}

	item := e.queue.take(key)
	if item == nil {
		return
	}

	select {
	case e.gate <- struct{}{}:
	default:
		e.queue.complete(key, nil, now, false)
		e.recordSkip("gate_busy")
		return
	}
	defer func() { <-e.gate }()

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	data, err := item.Fetch(ctx)
	if err != nil {
		e.queue.complete(key, nil, e.clock.Now(), false)
		e.recordSkip("fetch_failed")
		e.logger.Debug("Prefetch failed", zap.String("key", key), zap.Error(err))
		return
	}

	e.queue.complete(key, data, e.clock.Now(), true)

	if e.metrics != nil {
		e.metrics.Counter("prefetch_executed_total", nil).Inc()
	}
	e.logger.Debug("Prefetch completed", zap.String("key", key))
}

func (e *Engine) discard(key, reason string) {
	e.queue.complete(key, nil, e.clock.Now(), false)
	e.recordSkip(reason)
}

func (e *Engine) recordSkip(reason string) {
	if e.metrics != nil {
		e.metrics.Counter("prefetch_skipped_total", map[string]string{"reason": reason}).Inc()
	}
}

// GetPrefetched exposes queue reads with lazy expiry.
func (e *Engine) GetPrefetched(key string) (interface{}, bool) {
	return e.queue.GetPrefetched(key, e.clock.Now())
}

// SweepExpired drops stale queue items; scheduled every 30 minutes by the
// cron manager.
func (e *Engine) SweepExpired() error {
	removed := e.queue.Sweep(e.clock.Now())
	if removed > 0 {
		e.logger.Debug("Prefetch queue swept", zap.Int("removed", removed))
	}
	return nil
}
