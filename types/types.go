package types

import "github.com/valyala/fasthttp"

type LifecycleManager interface {
	Start() error
	Stop() error
	IsRunning() bool
}

type FastHTTPHandler func(ctx *fasthttp.RequestCtx)
