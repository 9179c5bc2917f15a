package client

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
)

// Manager performs outbound HTTP calls with retries and one circuit
// breaker per target host.
type Manager struct {
	logger   types.Logger
	metrics  types.MetricsManager
	config   types.ClientConfig
	client   *fasthttp.Client
	breakers map[string]*CircuitBreaker
	mu       sync.Mutex
	state    atomic.Value
	backoff  func(attempt int) time.Duration
}

func NewManager(config *types.ClientConfig, logger types.Logger, metrics types.MetricsManager) *Manager {
	clientConfig := types.ClientConfig{
		DefaultTimeout:     10 * time.Second,
		MaxIdleConnections: 100,
		IdleConnTimeout:    90 * time.Second,
		DefaultRetries:     2,
	}

	if config != nil {
		clientConfig = *config
		if clientConfig.DefaultTimeout <= 0 {
			clientConfig.DefaultTimeout = 10 * time.Second
		}
	}

	m := &Manager{
		logger:   logger,
		metrics:  metrics,
		config:   clientConfig,
		breakers: make(map[string]*CircuitBreaker),
		client: &fasthttp.Client{
			Name:                     "sai-cache",
			MaxConnsPerHost:          clientConfig.MaxIdleConnections,
			MaxIdleConnDuration:      clientConfig.IdleConnTimeout,
			ReadTimeout:              clientConfig.DefaultTimeout,
			WriteTimeout:             clientConfig.DefaultTimeout,
			NoDefaultUserAgentHeader: false,
		},
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * 200 * time.Millisecond
		},
	}

	m.state.Store(StateStopped)

	return m
}

func (m *Manager) Start() error {
	if !m.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}

	m.logger.Info("Client manager started",
		zap.Duration("default_timeout", m.config.DefaultTimeout),
		zap.Int("default_retries", m.config.DefaultRetries))
	return nil
}

func (m *Manager) Stop() error {
	if !m.state.CompareAndSwap(StateRunning, StateStopped) {
		return types.ErrServerNotRunning
	}

	m.client.CloseIdleConnections()
	m.logger.Info("Client manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.state.Load().(State) == StateRunning
}

// Call sends data to rawURL and returns the response body and status.
// []byte and string payloads are sent as is, anything else as JSON.
func (m *Manager) Call(ctx context.Context, method, rawURL string, data interface{}, opts *types.CallOptions) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	req.SetRequestURI(rawURL)
	req.Header.SetMethod(method)

	switch body := data.(type) {
	case nil:
	case []byte:
		req.SetBody(body)
	case string:
		req.SetBodyString(body)
	default:
		encoded, err := utils.Marshal(body)
		if err != nil {
			return nil, 0, types.WrapError(err, "failed to marshal request data")
		}
		req.SetBody(encoded)
		req.Header.SetContentType("application/json")
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if err := m.do(ctx, req, resp, opts); err != nil {
		return nil, resp.StatusCode(), err
	}

	return append([]byte(nil), resp.Body()...), resp.StatusCode(), nil
}

// Resolve follows up to maxRedirects redirects starting at rawURL and
// returns the final location.
func (m *Manager) Resolve(ctx context.Context, rawURL string, maxRedirects int) (string, error) {
	current := rawURL

	for i := 0; i <= maxRedirects; i++ {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()

		req.SetRequestURI(current)
		req.Header.SetMethod(fasthttp.MethodGet)

		err := m.do(ctx, req, resp, nil)
		status := resp.StatusCode()
		location := string(resp.Header.Peek(fasthttp.HeaderLocation))

		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)

		if err != nil {
			return "", err
		}

		if !fasthttp.StatusCodeIsRedirect(status) || location == "" {
			return current, nil
		}

		next, err := resolveReference(current, location)
		if err != nil {
			return "", types.Errorf(types.ErrClientResponseInvalid, "bad redirect location %q: %v", location, err)
		}
		current = next
	}

	return "", types.Errorf(types.ErrClientRequestFailed, "too many redirects for %s", rawURL)
}

func (m *Manager) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response, opts *types.CallOptions) error {
	if !m.IsRunning() {
		return types.Errorf(types.ErrInvalidState, "client manager is not running")
	}

	timeout := m.config.DefaultTimeout
	retries := m.config.DefaultRetries

	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.Retry > 0 {
			retries = opts.Retry
		}
		for key, value := range opts.Headers {
			req.Header.Set(key, value)
		}
	}

	host := string(req.URI().Host())
	breaker := m.breakerFor(host)

	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return types.WrapError(err, "call cancelled")
		}

		if !breaker.CanExecute() {
			m.record(host, "breaker_open")
			return types.Errorf(types.ErrCircuitBreakerOpen, "host %s", host)
		}

		callTimeout := timeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < callTimeout {
				callTimeout = remaining
			}
		}

		resp.Reset()
		err := m.client.DoTimeout(req, resp, callTimeout)
		status := resp.StatusCode()

		if IsSuccessfulResponse(status, err) {
			breaker.RecordSuccess()
			m.record(host, strconv.Itoa(status))
			return nil
		}

		if IsCircuitBreakerFailure(status, err) {
			breaker.RecordFailure()
		}

		lastErr = err
		if err == nil {
			lastErr = types.Errorf(types.ErrClientResponseInvalid, "HTTP %d", status)
			m.record(host, strconv.Itoa(status))
		} else {
			m.record(host, "error")
		}

		if attempt == retries || !IsRetryableError(status, err) {
			break
		}

		backoff := m.backoff(attempt)
		m.logger.Debug("Retrying request",
			zap.String("host", host),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return types.WrapError(ctx.Err(), "call cancelled")
		}
	}

	return types.Errorf(types.ErrClientRequestFailed, "%s %s: %v", req.Header.Method(), req.URI().String(), lastErr)
}

func (m *Manager) breakerFor(host string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	breaker, exists := m.breakers[host]
	if !exists {
		breaker = NewCircuitBreaker(m.config.CircuitBreaker, m.logger, host)
		m.breakers[host] = breaker
	}
	return breaker
}

func (m *Manager) record(host, result string) {
	if m.metrics == nil {
		return
	}

	m.metrics.Counter("client_requests_total", map[string]string{
		"host":   host,
		"result": result,
	}).Inc()
}

func resolveReference(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}

	return baseURL.ResolveReference(ref).String(), nil
}
