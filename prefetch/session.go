package prefetch

import (
	"sync"
	"time"
)

type Action string

const (
	ActionVisitCategory Action = "visit_category"
	ActionVisitTag      Action = "visit_tag"
	ActionScroll        Action = "scroll"
	ActionReadingTime   Action = "reading_time"
)

// Event carries the payload for one tracked action; only the field
// matching the action is read.
type Event struct {
	Category string
	Tag      string
	Depth    float64
	Elapsed  time.Duration
}

// BehaviorProfile accumulates one session's observed behavior. It is
// mutated by every tracked event and read, never reset, by prediction.
type BehaviorProfile struct {
	VisitedCategories map[string]bool
	VisitedTags       map[string]bool
	ReadingTime       time.Duration
	ScrollDepth       float64
	LastActivity      time.Time
}

func (p BehaviorProfile) clone() BehaviorProfile {
	categories := make(map[string]bool, len(p.VisitedCategories))
	for k, v := range p.VisitedCategories {
		categories[k] = v
	}
	tags := make(map[string]bool, len(p.VisitedTags))
	for k, v := range p.VisitedTags {
		tags[k] = v
	}
	p.VisitedCategories = categories
	p.VisitedTags = tags
	return p
}

// Session scopes a behavior profile and its prediction debounce to one
// reader session. Constructed at session start, closed at session end;
// nothing persists across sessions.
type Session struct {
	engine *Engine
	clock  Clock

	mu       sync.Mutex
	profile  BehaviorProfile
	debounce Timer
	closed   bool
}

func NewSession(engine *Engine) *Session {
	return &Session{
		engine: engine,
		clock:  engine.clock,
		profile: BehaviorProfile{
			VisitedCategories: make(map[string]bool),
			VisitedTags:       make(map[string]bool),
			LastActivity:      engine.clock.Now(),
		},
	}
}

// Track mutates the profile synchronously, then restarts the trailing
// prediction debounce; only the final event of a burst triggers prediction.
func (s *Session) Track(action Action, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	now := s.clock.Now()
	s.profile.LastActivity = now

	switch action {
	case ActionVisitCategory:
		if event.Category != "" {
			s.profile.VisitedCategories[event.Category] = true
		}
	case ActionVisitTag:
		if event.Tag != "" {
			s.profile.VisitedTags[event.Tag] = true
		}
	case ActionScroll:
		if event.Depth > s.profile.ScrollDepth {
			s.profile.ScrollDepth = event.Depth
		}
	case ActionReadingTime:
		if event.Elapsed > 0 {
			s.profile.ReadingTime += event.Elapsed
		}
	default:
		return
	}

	window := s.engine.predictionDebounce()
	if s.debounce == nil {
		s.debounce = s.clock.AfterFunc(window, func() {
			s.engine.Predict(s)
		})
	} else {
		s.debounce.Reset(window)
	}
}

// Profile returns a copy safe to read after the lock is released.
func (s *Session) Profile() BehaviorProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.clone()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.LastActivity
}

// Close stops the session's timers. Tracked events after Close are
// ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.debounce != nil {
		s.debounce.Stop()
	}
}
