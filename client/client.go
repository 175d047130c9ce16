package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
)

type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

const (
	defaultTimeout = 5 * time.Second
	defaultRetries = 2
)

// HTTPClient wraps the upstream currency feed behind a circuit breaker.
// The feed is read-only, so the client only issues GET requests.
type HTTPClient struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         types.Logger
	name           string
	client         *fasthttp.Client
	breaker        *CircuitBreaker
	state          atomic.Value
	requestTimeout time.Duration
	retries        int
}

func NewHTTPClient(ctx context.Context, logger types.Logger, serviceName string, timeout time.Duration, breakerConfig *types.CircuitBreakerConfig) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	clientCtx, cancel := context.WithCancel(ctx)

	client := &HTTPClient{
		ctx:    clientCtx,
		cancel: cancel,
		logger: logger,
		name:   serviceName,
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		breaker:        NewCircuitBreaker(breakerConfig, logger, serviceName),
		requestTimeout: timeout,
		retries:        defaultRetries,
	}

	client.state.Store(StateRunning)

	return client
}

// Get fetches url and returns the response body and status code. The
// call respects ctx, the configured timeout, and the circuit breaker.
func (c *HTTPClient) Get(ctx context.Context, url string) ([]byte, int, error) {
	if !c.IsRunning() {
		return nil, fasthttp.StatusInternalServerError, types.ErrServerNotRunning
	}

	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	var responseBody []byte
	var statusCode int
	var err error

	done := make(chan struct{})
	go func() {
		defer close(done)
		responseBody, statusCode, err = c.executeWithRetries(req, resp)
	}()

	select {
	case <-done:
	case <-callCtx.Done():
		return nil, fasthttp.StatusInternalServerError,
			types.Errorf(types.ErrClientTimeout, "call timeout for service %s", c.name)
	case <-c.ctx.Done():
		return nil, fasthttp.StatusInternalServerError,
			types.NewErrorf("client shutting down, aborting call to service %s", c.name)
	}

	return responseBody, statusCode, err
}

func (c *HTTPClient) BreakerState() string {
	return c.breaker.GetStateString()
}

func (c *HTTPClient) Close() {
	if !c.transitionClientState(StateRunning, StateStopping) {
		return
	}

	c.setClientState(StateStopped)
	c.cancel()

	c.logger.Debug("HTTP client closed",
		zap.String("service", c.name))
}

func (c *HTTPClient) IsRunning() bool {
	return c.getClientState() == StateRunning
}

func (c *HTTPClient) getClientState() State {
	return c.state.Load().(State)
}

func (c *HTTPClient) setClientState(newState State) bool {
	return c.state.CompareAndSwap(c.getClientState(), newState)
}

func (c *HTTPClient) transitionClientState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}

func (c *HTTPClient) executeWithRetries(req *fasthttp.Request, resp *fasthttp.Response) ([]byte, int, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if !c.IsRunning() {
			return nil, fasthttp.StatusInternalServerError, types.ErrServerNotRunning
		}

		if !c.breaker.CanExecute() {
			return nil, fasthttp.StatusInternalServerError, types.ErrCircuitBreakerOpen
		}

		err := c.client.DoTimeout(req, resp, c.requestTimeout)
		statusCode := resp.StatusCode()

		if IsSuccessfulResponse(statusCode, err) {
			c.breaker.RecordSuccess()

			responseBody := make([]byte, len(resp.Body()))
			copy(responseBody, resp.Body())

			return responseBody, statusCode, nil
		}

		if IsCircuitBreakerFailure(statusCode, err) {
			c.breaker.RecordFailure()
		}

		lastErr = err
		if err == nil {
			lastErr = types.Errorf(types.ErrClientResponseInvalid, "HTTP %d", statusCode)
		}

		if attempt < c.retries {
			if statusCode >= 400 && statusCode < 500 &&
				statusCode != fasthttp.StatusTooManyRequests &&
				statusCode != fasthttp.StatusRequestTimeout {
				c.logger.Debug("Not retrying client error",
					zap.String("service", c.name),
					zap.Int("status_code", statusCode))
				break
			}

			backoff := time.Duration(attempt+1) * time.Second

			select {
			case <-time.After(backoff):
				c.logger.Debug("Retrying request",
					zap.String("service", c.name),
					zap.Duration("backoff", backoff),
					zap.Error(lastErr))
			case <-c.ctx.Done():
				return nil, fasthttp.StatusInternalServerError,
					types.NewErrorf("client shutting down during retry for service %s", c.name)
			}
		}
	}

	return nil, fasthttp.StatusInternalServerError,
		types.Errorf(types.ErrClientRequestFailed, "all %d attempts failed for service %s: %v", c.retries+1, c.name, lastErr)
}
