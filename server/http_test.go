package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eldopolis/portal-core/types"
)

type nopLogger struct{}

func (nopLogger) Error(string, ...zap.Field)              {}
func (nopLogger) Warn(string, ...zap.Field)               {}
func (nopLogger) Info(string, ...zap.Field)               {}
func (nopLogger) Debug(string, ...zap.Field)              {}
func (nopLogger) Log(zapcore.Level, string, ...zap.Field) {}

type fakeRates struct {
	rates []types.CurrencyRate
	live  bool
}

func (f *fakeRates) GetRates(context.Context) ([]types.CurrencyRate, bool) {
	return f.rates, f.live
}

type fakeHealth struct {
	status types.HealthStatus
}

func (f *fakeHealth) Start() error    { return nil }
func (f *fakeHealth) Stop() error     { return nil }
func (f *fakeHealth) IsRunning() bool { return true }

func (f *fakeHealth) RegisterChecker(string, types.HealthChecker) {}

func (f *fakeHealth) Check(context.Context) types.HealthReport {
	return types.HealthReport{
		Status:    f.status,
		Timestamp: time.Now(),
	}
}

func newTestServer(t *testing.T, rates RateProvider, health types.HealthManager) *FastHTTPServer {
	t.Helper()

	server, err := NewHTTPServer(context.Background(), nopLogger{}, nil, health, rates, &types.HTTPConfig{
		Host:        "127.0.0.1",
		Port:        8080,
		Compression: true,
	})
	if err != nil {
		t.Fatalf("NewHTTPServer: %v", err)
	}
	return server
}

func serve(server *FastHTTPServer, method, path string, headers map[string]string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.SetRequestURI("http://portal.test" + path)
	req.Header.SetMethod(method)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)

	server.mainHandler()(&ctx)

	return &ctx
}

func TestCurrencyEndpoint_LiveRates(t *testing.T) {
	rates := &fakeRates{
		rates: []types.CurrencyRate{{Name: "Dólar Oficial", Buy: 987.5, Sell: 1027.5, Change: 0.3}},
		live:  true,
	}
	server := newTestServer(t, rates, &fakeHealth{status: types.StatusHealthy})

	ctx := serve(server, fasthttp.MethodGet, "/api/currency", nil)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d, want 200", ctx.Response.StatusCode())
	}
	cacheControl := string(ctx.Response.Header.Peek(fasthttp.HeaderCacheControl))
	if !strings.Contains(cacheControl, "max-age=900") || !strings.Contains(cacheControl, "stale-while-revalidate=1800") {
		t.Fatalf("Cache-Control = %q, want 15m max-age with 30m stale window", cacheControl)
	}
	if !bytes.Contains(ctx.Response.Body(), []byte("Dólar Oficial")) {
		t.Fatalf("body missing rate name: %s", ctx.Response.Body())
	}
}

func TestCurrencyEndpoint_FallbackIsNotCacheable(t *testing.T) {
	rates := &fakeRates{
		rates: []types.CurrencyRate{{Name: "Dólar Oficial"}},
		live:  false,
	}
	server := newTestServer(t, rates, &fakeHealth{status: types.StatusHealthy})

	ctx := serve(server, fasthttp.MethodGet, "/api/currency", nil)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", ctx.Response.StatusCode())
	}
	if got := string(ctx.Response.Header.Peek(fasthttp.HeaderCacheControl)); got != "no-store" {
		t.Fatalf("Cache-Control = %q, want no-store", got)
	}
	if !bytes.Contains(ctx.Response.Body(), []byte("Dólar Oficial")) {
		t.Fatal("fallback body must still carry the fixed rate set")
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeRates{live: true}, &fakeHealth{status: types.StatusHealthy})

	ctx := serve(server, fasthttp.MethodGet, "/health", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("healthy status = %d, want 200", ctx.Response.StatusCode())
	}

	server = newTestServer(t, &fakeRates{live: true}, &fakeHealth{status: types.StatusUnhealthy})

	ctx = serve(server, fasthttp.MethodGet, "/health", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d, want 503", ctx.Response.StatusCode())
	}
}

func TestUnknownPathAndMethod(t *testing.T) {
	server := newTestServer(t, &fakeRates{live: true}, &fakeHealth{status: types.StatusHealthy})

	ctx := serve(server, fasthttp.MethodGet, "/api/unknown", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("status = %d, want 404", ctx.Response.StatusCode())
	}

	ctx = serve(server, fasthttp.MethodPost, "/api/currency", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", ctx.Response.StatusCode())
	}
}

func TestCompression_GzipNegotiated(t *testing.T) {
	var big []types.CurrencyRate
	for i := 0; i < 100; i++ {
		big = append(big, types.CurrencyRate{Name: "Dólar Oficial", Buy: 987.5, Sell: 1027.5})
	}
	server := newTestServer(t, &fakeRates{rates: big, live: true}, &fakeHealth{status: types.StatusHealthy})

	ctx := serve(server, fasthttp.MethodGet, "/api/currency", map[string]string{
		fasthttp.HeaderAcceptEncoding: "gzip, deflate",
	})

	if got := string(ctx.Response.Header.ContentEncoding()); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}

	reader, err := gzip.NewReader(bytes.NewReader(ctx.Response.Body()))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("gzip decode: %v", err)
	}
	if !bytes.Contains(decoded, []byte("Dólar Oficial")) {
		t.Fatal("decompressed body lost the payload")
	}
}

func TestCompression_BrotliPreferred(t *testing.T) {
	var big []types.CurrencyRate
	for i := 0; i < 100; i++ {
		big = append(big, types.CurrencyRate{Name: "Euro", Buy: 1110.4, Sell: 1165.9})
	}
	server := newTestServer(t, &fakeRates{rates: big, live: true}, &fakeHealth{status: types.StatusHealthy})

	ctx := serve(server, fasthttp.MethodGet, "/api/currency", map[string]string{
		fasthttp.HeaderAcceptEncoding: "gzip, br",
	})

	if got := string(ctx.Response.Header.ContentEncoding()); got != "br" {
		t.Fatalf("Content-Encoding = %q, want br", got)
	}
}

func TestCompression_SmallBodyPassthrough(t *testing.T) {
	server := newTestServer(t, &fakeRates{rates: []types.CurrencyRate{{Name: "Euro"}}, live: true}, &fakeHealth{status: types.StatusHealthy})

	ctx := serve(server, fasthttp.MethodGet, "/api/currency", map[string]string{
		fasthttp.HeaderAcceptEncoding: "gzip, br",
	})

	if got := string(ctx.Response.Header.ContentEncoding()); got != "" {
		t.Fatalf("Content-Encoding = %q, want empty for small bodies", got)
	}
}
