package server

import (
	"strings"
	"sync"

	"github.com/saiset-co/sai-cache/types"
)

var methodIndex = map[string]uint8{
	"GET":     0,
	"POST":    1,
	"PUT":     2,
	"DELETE":  3,
	"PATCH":   4,
	"HEAD":    5,
	"OPTIONS": 6,
}

// HTTPRouter collects routes. Builders stay pending until
// FinalizePendingRoutes so that options chained after GET/POST/... are
// applied before the route is registered.
type HTTPRouter struct {
	mu            sync.RWMutex
	routes        map[string]*types.RouteInfo
	order         []string
	pendingRoutes []*RouteBuilder
}

func NewHTTPRouter() *HTTPRouter {
	return &HTTPRouter{
		routes: make(map[string]*types.RouteInfo),
	}
}

func (r *HTTPRouter) Add(method, path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if _, exists := methodIndex[method]; !exists || handler == nil {
		return
	}

	if config == nil {
		config = &types.RouteConfig{}
	}

	path = normalizePath(path)
	key := routeKey(method, path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[key]; !exists {
		r.order = append(r.order, key)
	}

	r.routes[key] = &types.RouteInfo{
		Method:  method,
		Path:    path,
		Handler: handler,
		Config:  config,
	}
}

func (r *HTTPRouter) GET(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route("GET", path, handler)
}

func (r *HTTPRouter) HEAD(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route("HEAD", path, handler)
}

func (r *HTTPRouter) POST(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route("POST", path, handler)
}

func (r *HTTPRouter) PUT(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route("PUT", path, handler)
}

func (r *HTTPRouter) DELETE(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route("DELETE", path, handler)
}

func (r *HTTPRouter) Group(prefix string) types.GroupBuilder {
	return &GroupBuilder{
		router: r,
		prefix: strings.TrimSuffix(prefix, "/"),
		config: &types.RouteConfig{},
	}
}

func (r *HTTPRouter) route(method, path string, handler types.FastHTTPHandler) *RouteBuilder {
	rb := &RouteBuilder{
		router:  r,
		method:  method,
		path:    path,
		handler: handler,
		config:  &types.RouteConfig{},
	}

	r.mu.Lock()
	r.pendingRoutes = append(r.pendingRoutes, rb)
	r.mu.Unlock()

	return rb
}

func (r *HTTPRouter) FinalizePendingRoutes() error {
	r.mu.Lock()
	pending := r.pendingRoutes
	r.pendingRoutes = nil
	r.mu.Unlock()

	for _, rb := range pending {
		if err := rb.finalize(); err != nil {
			return types.Errorf(types.ErrRouteFinalizationFailed, "%s %s: %v", rb.method, rb.path, err)
		}
	}

	return nil
}

// GetAllRoutes returns registered routes keyed by "METHOD path".
func (r *HTTPRouter) GetAllRoutes() map[string]*types.RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string]*types.RouteInfo, len(r.routes))
	for key, info := range r.routes {
		routes[key] = info
	}
	return routes
}

func (r *HTTPRouter) orderedRoutes() []*types.RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]*types.RouteInfo, 0, len(r.order))
	for _, key := range r.order {
		routes = append(routes, r.routes[key])
	}
	return routes
}

func routeKey(method, path string) string {
	return method + " " + path
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}

	if path[0] != '/' {
		path = "/" + path
	}

	return strings.TrimSuffix(path, "/")
}
