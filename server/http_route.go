package server

import (
	"time"

	"github.com/saiset-co/sai-cache/types"
)

const maxMiddlewareSliceSize = 100

type RouteBuilder struct {
	router  *HTTPRouter
	method  string
	path    string
	handler types.FastHTTPHandler
	config  *types.RouteConfig
}

func (rb *RouteBuilder) WithMiddlewares(names ...string) types.RouteBuilder {
	rb.config.Middlewares = append(rb.config.Middlewares, names...)
	return rb
}

func (rb *RouteBuilder) WithoutMiddlewares(names ...string) types.RouteBuilder {
	rb.config.DisabledMiddlewares = append(rb.config.DisabledMiddlewares, names...)
	return rb
}

func (rb *RouteBuilder) WithTimeout(duration time.Duration) types.RouteBuilder {
	rb.config.Timeout = duration
	return rb
}

func (rb *RouteBuilder) finalize() error {
	if rb.handler == nil {
		return types.ErrHandlerIsNil
	}

	if len(rb.config.Middlewares) > maxMiddlewareSliceSize || len(rb.config.DisabledMiddlewares) > maxMiddlewareSliceSize {
		return types.ErrMiddlewareOrderInvalid
	}

	rb.router.Add(rb.method, rb.path, rb.handler, &types.RouteConfig{
		Middlewares:         append([]string(nil), rb.config.Middlewares...),
		DisabledMiddlewares: append([]string(nil), rb.config.DisabledMiddlewares...),
		Timeout:             rb.config.Timeout,
	})

	return nil
}
