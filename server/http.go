package server

import (
	"context"
	"fmt"
	"net"
	"strings"
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
	StateStarting
	StateRunning
	StateStopping
)

type compiledRoute struct {
	method   string
	segments []string
	handler  fasthttp.RequestHandler
}

type FastHTTPServer struct {
	logger          types.Logger
	middlewares     types.MiddlewareManager
	router          *HTTPRouter
	server          *fasthttp.Server
	httpConfig      *types.HTTPConfig
	state           atomic.Value
	shutdownTimeout time.Duration
	staticRoutes    map[string]fasthttp.RequestHandler
	dynamicRoutes   []*compiledRoute
	knownPaths      map[string]struct{}
	routingMu       sync.RWMutex
	serveErr        chan error
}

func NewHTTPServer(config types.ConfigManager, logger types.Logger, middlewares types.MiddlewareManager, router *HTTPRouter) (*FastHTTPServer, error) {
	if config == nil || config.GetConfig() == nil || config.GetConfig().Server == nil {
		return nil, types.ErrConfigIsNil
	}

	httpConfig := config.GetConfig().Server.HTTP

	shutdownTimeout := time.Duration(httpConfig.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	server := &FastHTTPServer{
		logger:          logger,
		middlewares:     middlewares,
		router:          router,
		httpConfig:      httpConfig,
		shutdownTimeout: shutdownTimeout,
	}

	server.state.Store(StateStopped)

	return server, nil
}

// Start binds the configured address and serves in the background.
func (h *FastHTTPServer) Start() error {
	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return types.Errorf(types.ErrServerStartFailed, "listen %s: %v", addr, err)
	}

	if err := h.Serve(listener); err != nil {
		_ = listener.Close()
		return err
	}

	return nil
}

// Serve serves on an existing listener in the background.
func (h *FastHTTPServer) Serve(listener net.Listener) error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := h.compileRoutes(); err != nil {
		h.setState(StateStopped)
		return types.WrapError(err, "failed to compile routes")
	}

	h.server = &fasthttp.Server{
		Handler:                      h.Handler(),
		Name:                         "sai-cache",
		ReadTimeout:                  time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:                 time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:                  time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		MaxRequestBodySize:           h.httpConfig.MaxBodySize,
		TCPKeepalive:                 true,
		CloseOnShutdown:              true,
		DisablePreParseMultipartForm: true,
	}

	h.serveErr = make(chan error, 1)
	server := h.server

	go func() {
		err := server.Serve(listener)
		if err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
		}
		h.serveErr <- err
	}()

	h.setState(StateRunning)
	h.logger.Info("HTTP server started", zap.String("address", listener.Addr().String()))

	return nil
}

func (h *FastHTTPServer) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer h.setState(StateStopped)

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	if err := h.server.ShutdownWithContext(ctx); err != nil {
		h.logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
		return types.Errorf(types.ErrServerStopFailed, "%v", err)
	}

	select {
	case <-h.serveErr:
	case <-ctx.Done():
	}

	h.logger.Info("HTTP server stopped")
	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.getState() == StateRunning
}

func (h *FastHTTPServer) getState() State {
	return h.state.Load().(State)
}

func (h *FastHTTPServer) setState(newState State) {
	h.state.Store(newState)
}

func (h *FastHTTPServer) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}

func (h *FastHTTPServer) compileRoutes() error {
	if err := h.router.FinalizePendingRoutes(); err != nil {
		return err
	}

	routes := h.router.orderedRoutes()

	staticRoutes := make(map[string]fasthttp.RequestHandler, len(routes))
	dynamicRoutes := make([]*compiledRoute, 0)
	knownPaths := make(map[string]struct{}, len(routes))

	for _, info := range routes {
		handler := h.wrap(info)

		if !strings.Contains(info.Path, "{") {
			staticRoutes[routeKey(info.Method, info.Path)] = handler
			knownPaths[info.Path] = struct{}{}
			continue
		}

		dynamicRoutes = append(dynamicRoutes, &compiledRoute{
			method:   info.Method,
			segments: splitPath(info.Path),
			handler:  handler,
		})
	}

	h.routingMu.Lock()
	h.staticRoutes = staticRoutes
	h.dynamicRoutes = dynamicRoutes
	h.knownPaths = knownPaths
	h.routingMu.Unlock()

	h.logger.Debug("HTTP routes compiled",
		zap.Int("static", len(staticRoutes)),
		zap.Int("dynamic", len(dynamicRoutes)))

	return nil
}

// wrap runs the route through the middleware chain and its timeout.
func (h *FastHTTPServer) wrap(info *types.RouteInfo) fasthttp.RequestHandler {
	handler := info.Handler
	config := info.Config

	var wrapped fasthttp.RequestHandler = func(ctx *fasthttp.RequestCtx) {
		if h.middlewares != nil {
			h.middlewares.Execute(ctx, handler, config)
			return
		}
		handler(ctx)
	}

	if config.Timeout > 0 {
		wrapped = fasthttp.TimeoutHandler(wrapped, config.Timeout, `{"error":"Request Timeout"}`)
	}

	return wrapped
}

// Handler dispatches to the compiled routes. Static paths win over
// parameterized ones, so /cache/stats is never captured by /cache/{key}.
func (h *FastHTTPServer) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		method := string(ctx.Method())
		path := normalizePath(utils.BytesToString(ctx.Path()))

		h.routingMu.RLock()
		handler, found := h.staticRoutes[routeKey(method, path)]
		_, pathKnown := h.knownPaths[path]
		h.routingMu.RUnlock()

		if found {
			handler(ctx)
			return
		}

		segments := splitPath(path)
		methodMismatch := pathKnown

		h.routingMu.RLock()
		routes := h.dynamicRoutes
		h.routingMu.RUnlock()

		for _, route := range routes {
			params, ok := matchSegments(route.segments, segments)
			if !ok {
				continue
			}

			if route.method != method {
				methodMismatch = true
				continue
			}

			for name, value := range params {
				ctx.SetUserValue(name, value)
			}
			route.handler(ctx)
			return
		}

		if methodMismatch {
			utils.WriteError(ctx, fasthttp.StatusMethodNotAllowed, types.Errorf(types.ErrInvalidParameter, "method %s", method))
			return
		}

		utils.WriteError(ctx, fasthttp.StatusNotFound, types.Errorf(types.ErrResourceNotFound, "path %s", path))
	}
}

// PathParam returns the value captured by a {name} segment.
func PathParam(ctx *fasthttp.RequestCtx, name string) string {
	value, _ := ctx.UserValue(name).(string)
	return value
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchSegments(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}

	var params map[string]string

	for i, seg := range pattern {
		if len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
			if segments[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, 1)
			}
			params[seg[1:len(seg)-1]] = segments[i]
			continue
		}

		if seg != segments[i] {
			return nil, false
		}
	}

	return params, true
}
