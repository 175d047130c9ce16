package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eldopolis/portal-core/cache"
	"github.com/eldopolis/portal-core/types"
)

type nopLogger struct{}

func (nopLogger) Error(string, ...zap.Field)              {}
func (nopLogger) Warn(string, ...zap.Field)               {}
func (nopLogger) Info(string, ...zap.Field)               {}
func (nopLogger) Debug(string, ...zap.Field)              {}
func (nopLogger) Log(zapcore.Level, string, ...zap.Field) {}

var upgrader = websocket.Upgrader{}

// startFeed runs a websocket server that pushes the given payloads to
// every client that connects.
func startFeed(t *testing.T, payloads []string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, payload := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				return
			}
		}

		time.Sleep(time.Second)
	}))
	t.Cleanup(server.Close)

	return server
}

func feedURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newTestListener(t *testing.T, url string) *Listener {
	t.Helper()

	listener, err := NewListener(context.Background(), nopLogger{}, nil, &types.EventsConfig{
		Enabled:        true,
		URL:            url,
		ReconnectDelay: 50 * time.Millisecond,
		MaxRetries:     2,
		PingInterval:   time.Minute,
	})
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	return listener
}

func TestListener_DisabledConfigRejected(t *testing.T) {
	_, err := NewListener(context.Background(), nopLogger{}, nil, &types.EventsConfig{Enabled: false})
	if !types.IsError(err, types.ErrEventsIsDisabled) {
		t.Fatalf("err = %v, want ErrEventsIsDisabled", err)
	}
}

func TestListener_DispatchesToSubscribedHandler(t *testing.T) {
	server := startFeed(t, []string{
		`{"event": "news_updated", "collection": "news", "ids": ["n1", "n2"]}`,
	})

	listener := newTestListener(t, feedURL(server))

	received := make(chan *UpdateMessage, 1)
	if err := listener.Subscribe(EventNewsUpdated, func(message *UpdateMessage) error {
		received <- message
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := listener.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer listener.Stop()

	select {
	case message := <-received:
		if message.Collection != "news" || len(message.IDs) != 2 {
			t.Fatalf("message = %+v", message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the update")
	}
}

func TestListener_MalformedMessageSkipped(t *testing.T) {
	server := startFeed(t, []string{
		`{not json`,
		`{"event": "news_updated"}`,
	})

	listener := newTestListener(t, feedURL(server))

	received := make(chan struct{}, 1)
	listener.Subscribe(EventNewsUpdated, func(*UpdateMessage) error {
		received <- struct{}{}
		return nil
	})

	if err := listener.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer listener.Stop()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("valid message after a malformed one was not dispatched")
	}
}

func TestListener_SubscribeAfterStartRejected(t *testing.T) {
	server := startFeed(t, nil)

	listener := newTestListener(t, feedURL(server))
	if err := listener.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer listener.Stop()

	err := listener.Subscribe(EventNewsUpdated, func(*UpdateMessage) error { return nil })
	if !types.IsError(err, types.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestListener_InitialConnectFailure(t *testing.T) {
	listener := newTestListener(t, "ws://127.0.0.1:1/feed")

	if err := listener.Start(); err == nil {
		t.Fatal("Start must fail when the feed is unreachable")
	}
	if listener.IsRunning() {
		t.Fatal("listener must stay stopped after a failed start")
	}
}

func TestCacheInvalidation_NewsUpdateSweepsKeys(t *testing.T) {
	tiered := cache.NewTieredStore(nopLogger{}, cache.NewPolicyTable(nil), cache.NewMemoryTier(50), nil)

	tiered.Set("news_page_10_first", "payload", types.ContentNews)
	tiered.Set("article_n1", "payload", types.ContentNews)
	tiered.Set("batch_initial", "payload", types.ContentNews)
	tiered.Set("ads_all", "payload", types.ContentAds)
	tiered.Set("currency_rates", "payload", types.ContentCurrency)

	server := startFeed(t, nil)
	listener := newTestListener(t, feedURL(server))

	if err := RegisterCacheInvalidation(listener, tiered, nopLogger{}); err != nil {
		t.Fatalf("RegisterCacheInvalidation: %v", err)
	}

	listener.dispatch(&UpdateMessage{Event: EventNewsUpdated, IDs: []string{"n1"}})

	var value string
	if tiered.Get("news_page_10_first", types.ContentNews, &value) {
		t.Fatal("news page survived a news_updated event")
	}
	if tiered.Get("article_n1", types.ContentNews, &value) {
		t.Fatal("article survived a news_updated event")
	}
	if tiered.Get("batch_initial", types.ContentNews, &value) {
		t.Fatal("batch payload survived a news_updated event")
	}
	if !tiered.Get("ads_all", types.ContentAds, &value) {
		t.Fatal("ads bucket must survive a news_updated event")
	}
	if !tiered.Get("currency_rates", types.ContentCurrency, &value) {
		t.Fatal("currency rates must survive a news_updated event")
	}
}

func TestCacheInvalidation_AdsUpdate(t *testing.T) {
	tiered := cache.NewTieredStore(nopLogger{}, cache.NewPolicyTable(nil), cache.NewMemoryTier(50), nil)

	tiered.Set("ads_all", "payload", types.ContentAds)
	tiered.Set("news_page_10_first", "payload", types.ContentNews)

	server := startFeed(t, nil)
	listener := newTestListener(t, feedURL(server))

	if err := RegisterCacheInvalidation(listener, tiered, nopLogger{}); err != nil {
		t.Fatalf("RegisterCacheInvalidation: %v", err)
	}

	listener.dispatch(&UpdateMessage{Event: EventAdsUpdated})

	var value string
	if tiered.Get("ads_all", types.ContentAds, &value) {
		t.Fatal("ads bucket survived an ads_updated event")
	}
	if !tiered.Get("news_page_10_first", types.ContentNews, &value) {
		t.Fatal("news page must survive an ads_updated event")
	}
}
