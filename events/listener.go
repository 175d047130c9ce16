package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
	"github.com/eldopolis/portal-core/utils"
)

type ListenerState int32

const (
	StateStopped ListenerState = iota
	StateStarting
	StateRunning
	StateStopping
	StateReconnecting
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultMaxRetries     = 10
	defaultPingInterval   = 54 * time.Second
	pongWait              = 60 * time.Second
	writeWait             = 10 * time.Second
	dialTimeout           = 10 * time.Second
)

// UpdateMessage is a CMS change notification pushed over the socket.
type UpdateMessage struct {
	Event      string    `json:"event"`
	Collection string    `json:"collection,omitempty"`
	IDs        []string  `json:"ids,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

type Handler func(message *UpdateMessage) error

// Listener keeps a websocket subscription to the CMS update feed and
// dispatches notifications to registered handlers. The connection is
// read-only; nothing is ever published back.
type Listener struct {
	ctx               context.Context
	cancel            context.CancelFunc
	logger            types.Logger
	metrics           types.MetricsManager
	config            *types.EventsConfig
	conn              *websocket.Conn
	connMu            sync.RWMutex
	handlers          map[string][]Handler
	subsMu            sync.RWMutex
	reconnectCh       chan struct{}
	state             atomic.Value
	reconnectAttempts int32
}

func NewListener(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.EventsConfig) (*Listener, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrEventsIsDisabled
	}
	if config.URL == "" {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "events.url is required")
	}

	merged := *config
	if merged.ReconnectDelay <= 0 {
		merged.ReconnectDelay = defaultReconnectDelay
	}
	if merged.MaxRetries <= 0 {
		merged.MaxRetries = defaultMaxRetries
	}
	if merged.PingInterval <= 0 {
		merged.PingInterval = defaultPingInterval
	}

	listenerCtx, cancel := context.WithCancel(ctx)

	listener := &Listener{
		ctx:         listenerCtx,
		cancel:      cancel,
		logger:      logger,
		metrics:     metrics,
		config:      &merged,
		handlers:    make(map[string][]Handler),
		reconnectCh: make(chan struct{}, 1),
	}

	listener.state.Store(StateStopped)

	return listener, nil
}

// Subscribe registers a handler for an event name. Registration is only
// allowed before Start.
func (l *Listener) Subscribe(event string, handler Handler) error {
	if event == "" || handler == nil {
		return types.Errorf(types.ErrInvalidParameter, "event and handler are required")
	}
	if l.IsRunning() {
		return types.ErrInvalidState
	}

	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	l.handlers[event] = append(l.handlers[event], handler)

	return nil
}

func (l *Listener) Start() error {
	if !l.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if l.getState() == StateStarting {
			l.setState(StateRunning)
		}
	}()

	if err := l.connect(); err != nil {
		l.setState(StateStopped)
		return types.WrapError(err, "failed to establish initial connection")
	}

	go l.readPump()
	go l.pingLoop()
	go l.reconnectLoop()

	l.logger.Info("Events listener started",
		zap.String("url", l.config.URL))

	return nil
}

func (l *Listener) Stop() error {
	if !l.transitionState(StateRunning, StateStopping) &&
		!l.transitionState(StateReconnecting, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		l.setState(StateStopped)
		l.cancel()
	}()

	l.connMu.Lock()
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			l.logger.Debug("Events connection close failed", zap.Error(err))
		}
		l.conn = nil
	}
	l.connMu.Unlock()

	l.logger.Info("Events listener stopped")

	return nil
}

func (l *Listener) IsRunning() bool {
	state := l.getState()
	return state == StateRunning || state == StateReconnecting
}

func (l *Listener) getState() ListenerState {
	return l.state.Load().(ListenerState)
}

func (l *Listener) setState(newState ListenerState) bool {
	return l.state.CompareAndSwap(l.getState(), newState)
}

func (l *Listener) transitionState(from, to ListenerState) bool {
	return l.state.CompareAndSwap(from, to)
}

func (l *Listener) connect() error {
	dialCtx, cancel := context.WithTimeout(l.ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, l.config.URL, nil)
	if err != nil {
		return types.WrapError(err, "failed to dial events feed")
	}

	l.connMu.Lock()
	if l.conn != nil {
		_ = l.conn.Close()
	}
	l.conn = conn
	l.connMu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	atomic.StoreInt32(&l.reconnectAttempts, 0)

	l.logger.Info("Connected to events feed",
		zap.String("url", l.config.URL))

	return nil
}

func (l *Listener) readPump() {
	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		if !l.IsRunning() {
			return
		}

		l.connMu.RLock()
		conn := l.conn
		l.connMu.RUnlock()

		if conn == nil {
			l.safeReconnectTrigger()
			return
		}

		_, messageData, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l.logger.Debug("Events connection closed", zap.Error(err))
			}
			if l.IsRunning() {
				l.safeReconnectTrigger()
			}
			return
		}

		var message UpdateMessage
		if err := utils.Unmarshal(messageData, &message); err != nil {
			l.logger.Warn("Malformed event message dropped", zap.Error(err))
			l.recordMetric("unparseable", "error")
			continue
		}

		l.dispatch(&message)
	}
}

func (l *Listener) pingLoop() {
	ticker := time.NewTicker(l.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if !l.IsRunning() {
				return
			}

			l.connMu.RLock()
			conn := l.conn
			l.connMu.RUnlock()

			if conn == nil {
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.logger.Debug("Events ping failed", zap.Error(err))
				l.safeReconnectTrigger()
			}
		}
	}
}

func (l *Listener) reconnectLoop() {
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.reconnectCh:
			if !l.IsRunning() {
				return
			}

			if l.getState() == StateRunning {
				l.setState(StateReconnecting)
			}

			attempts := atomic.LoadInt32(&l.reconnectAttempts)
			if int(attempts) >= l.config.MaxRetries {
				l.logger.Error("Max reconnection attempts reached, stopping events listener",
					zap.Int32("attempts", attempts))
				if l.transitionState(StateReconnecting, StateStopping) {
					l.setState(StateStopped)
					l.cancel()
				}
				return
			}

			select {
			case <-time.After(l.config.ReconnectDelay):
			case <-l.ctx.Done():
				return
			}

			atomic.AddInt32(&l.reconnectAttempts, 1)

			if err := l.connect(); err != nil {
				l.logger.Warn("Events reconnection attempt failed",
					zap.Int32("attempt", atomic.LoadInt32(&l.reconnectAttempts)),
					zap.Error(err))
				l.safeReconnectTrigger()
				continue
			}

			l.setState(StateRunning)
			go l.readPump()
		}
	}
}

func (l *Listener) safeReconnectTrigger() {
	select {
	case l.reconnectCh <- struct{}{}:
	default:
	}
}

func (l *Listener) dispatch(message *UpdateMessage) {
	l.subsMu.RLock()
	handlers := make([]Handler, len(l.handlers[message.Event]))
	copy(handlers, l.handlers[message.Event])
	l.subsMu.RUnlock()

	if len(handlers) == 0 {
		l.logger.Debug("No handlers for event",
			zap.String("event", message.Event))
		l.recordMetric(message.Event, "no_handlers")
		return
	}

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error("Event handler panicked",
						zap.String("event", message.Event),
						zap.Any("panic", r))
					l.recordMetric(message.Event, "panic")
				}
			}()

			if err := handler(message); err != nil {
				l.logger.Warn("Event handler failed",
					zap.String("event", message.Event),
					zap.Error(err))
				l.recordMetric(message.Event, "error")
				return
			}
			l.recordMetric(message.Event, "success")
		}()
	}
}

func (l *Listener) recordMetric(event, result string) {
	if l.metrics == nil {
		return
	}

	l.metrics.Counter("events_messages_total", map[string]string{
		"event":  event,
		"result": result,
	}).Inc()
}
