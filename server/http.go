package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/currency"
	"github.com/eldopolis/portal-core/types"
	"github.com/eldopolis/portal-core/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	pathCurrency = "/api/currency"
	pathHealth   = "/health"
	pathMetrics  = "/metrics"
)

// RateProvider is the currency proxy consumed by the rates endpoint.
type RateProvider interface {
	GetRates(ctx context.Context) ([]types.CurrencyRate, bool)
}

// FastHTTPServer exposes the portal's thin HTTP surface: the currency
// proxy, the health report, and the Prometheus scrape endpoint.
type FastHTTPServer struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	health          types.HealthManager
	rates           RateProvider
	compressor      *Compressor
	httpConfig      *types.HTTPConfig
	server          *fasthttp.Server
	listener        net.Listener
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewHTTPServer(
	ctx context.Context,
	logger types.Logger,
	metrics types.MetricsManager,
	health types.HealthManager,
	rates RateProvider,
	httpConfig *types.HTTPConfig) (*FastHTTPServer, error) {
	if httpConfig == nil {
		return nil, types.Errorf(types.ErrConfigIsNil, "server.http")
	}

	serverCtx, cancel := context.WithCancel(ctx)

	server := &FastHTTPServer{
		ctx:             serverCtx,
		cancel:          cancel,
		logger:          logger,
		metrics:         metrics,
		health:          health,
		rates:           rates,
		httpConfig:      httpConfig,
		shutdownTimeout: 5 * time.Second,
	}

	if httpConfig.Compression {
		server.compressor = NewCompressor()
	}

	server.state.Store(StateStopped)

	return server, nil
}

func (h *FastHTTPServer) Start() error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if h.getState() == StateStarting {
			h.setState(StateRunning)
		}
	}()

	h.server = &fasthttp.Server{
		Handler:      h.mainHandler(),
		ReadTimeout:  time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		TCPKeepalive: true,
	}

	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		h.setState(StateStopped)
		return types.WrapError(err, "HTTP listener failed")
	}
	h.listener = listener

	go func() {
		if err := h.server.Serve(h.listener); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
			h.setState(StateStopped)
		}
	}()

	h.logger.Info("HTTP server started successfully",
		zap.String("address", addr))

	return nil
}

func (h *FastHTTPServer) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		h.setState(StateStopped)
		h.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	if h.server != nil {
		if err := h.server.ShutdownWithContext(ctx); err != nil {
			h.logger.Warn("Server stop timeout, some connections may have been dropped",
				zap.Error(err))
			return nil
		}
	}

	h.logger.Info("HTTP server stopped gracefully")

	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.getState() == StateRunning
}

func (h *FastHTTPServer) getState() State {
	return h.state.Load().(State)
}

func (h *FastHTTPServer) setState(newState State) bool {
	return h.state.CompareAndSwap(h.getState(), newState)
}

func (h *FastHTTPServer) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}

func (h *FastHTTPServer) mainHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()

		if !ctx.IsGet() && !ctx.IsHead() {
			ctx.Error("Method not allowed", fasthttp.StatusMethodNotAllowed)
			h.recordRequest(ctx, start)
			return
		}

		switch utils.BytesToString(ctx.Path()) {
		case pathCurrency:
			h.handleCurrency(ctx)
		case pathHealth:
			h.handleHealth(ctx)
		case pathMetrics:
			h.handleMetrics(ctx)
		default:
			ctx.Error("Not found", fasthttp.StatusNotFound)
		}

		if h.compressor != nil {
			h.compressor.Compress(ctx)
		}

		h.recordRequest(ctx, start)
	}
}

// handleCurrency serves the reshaped rate set. Live rates are HTTP-cached
// for 15 minutes with a 30 minute stale-serve window; the zero-valued
// fallback goes out as a 500 with caching disabled.
func (h *FastHTTPServer) handleCurrency(ctx *fasthttp.RequestCtx) {
	rates, live := h.rates.GetRates(ctx)

	body, err := utils.Marshal(rates)
	if err != nil {
		ctx.Error("Internal server error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json; charset=utf-8")

	if live {
		ctx.Response.Header.Set(fasthttp.HeaderCacheControl, currency.CacheControl())
		ctx.SetStatusCode(fasthttp.StatusOK)
	} else {
		ctx.Response.Header.Set(fasthttp.HeaderCacheControl, "no-store")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	}

	ctx.SetBody(body)
}

func (h *FastHTTPServer) handleHealth(ctx *fasthttp.RequestCtx) {
	if h.health == nil {
		ctx.Error("Not found", fasthttp.StatusNotFound)
		return
	}

	report := h.health.Check(ctx)

	body, err := utils.Marshal(report)
	if err != nil {
		ctx.Error("Internal server error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json; charset=utf-8")
	if report.Status == types.StatusHealthy {
		ctx.SetStatusCode(fasthttp.StatusOK)
	} else {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	}
	ctx.SetBody(body)
}

func (h *FastHTTPServer) handleMetrics(ctx *fasthttp.RequestCtx) {
	if h.metrics == nil {
		ctx.Error("Not found", fasthttp.StatusNotFound)
		return
	}

	body, err := h.metrics.GetMetrics()
	if err != nil {
		ctx.Error("Internal server error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("text/plain; version=0.0.4; charset=utf-8")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)
}

func (h *FastHTTPServer) recordRequest(ctx *fasthttp.RequestCtx, start time.Time) {
	if h.metrics == nil {
		return
	}

	labels := map[string]string{
		"path":   string(ctx.Path()),
		"status": strconv.Itoa(ctx.Response.StatusCode()),
	}

	h.metrics.Counter("http_requests_total", labels).Inc()
	h.metrics.Histogram("http_request_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1.0, 10.0}, labels).Observe(time.Since(start).Seconds())
}
