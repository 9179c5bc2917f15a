package middleware

import (
	"bytes"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

var (
	bodyMethods = [][]byte{
		[]byte(fasthttp.MethodPost),
		[]byte(fasthttp.MethodPut),
		[]byte(fasthttp.MethodPatch),
		[]byte(fasthttp.MethodDelete),
	}
	chunkedBytes = []byte("chunked")
)

// BodyLimitMiddleware rejects write requests whose body exceeds MaxBodySize.
type BodyLimitMiddleware struct {
	logger          types.Logger
	metrics         types.MetricsManager
	bodyLimitConfig *BodyLimitConfig
	weight          int
}

type BodyLimitConfig struct {
	MaxBodySize int64 `json:"max_body_size"`
}

func NewBodyLimitMiddleware(item *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *BodyLimitMiddleware {
	bodyLimitConfig := &BodyLimitConfig{MaxBodySize: 1 << 20}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, bodyLimitConfig); err != nil {
			logger.Error("Failed to unmarshal body limit middleware config", zap.Error(err))
		}
	}

	if bodyLimitConfig.MaxBodySize <= 0 {
		logger.Warn("Invalid max body size, using 1MiB", zap.Int64("max_body_size", bodyLimitConfig.MaxBodySize))
		bodyLimitConfig.MaxBodySize = 1 << 20
	}

	return &BodyLimitMiddleware{
		logger:          logger,
		metrics:         metrics,
		bodyLimitConfig: bodyLimitConfig,
		weight:          item.Weight,
	}
}

func (bl *BodyLimitMiddleware) Name() string { return "body_limit" }
func (bl *BodyLimitMiddleware) Weight() int  { return bl.weight }

func (bl *BodyLimitMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	if !hasBody(ctx.Method()) {
		next(ctx)
		return
	}

	contentLength := ctx.Request.Header.ContentLength()
	if contentLength > 0 && int64(contentLength) > bl.bodyLimitConfig.MaxBodySize {
		bl.reject(ctx, int64(contentLength))
		return
	}

	if contentLength <= 0 || bytes.Equal(ctx.Request.Header.Peek(fasthttp.HeaderTransferEncoding), chunkedBytes) {
		if size := int64(len(ctx.PostBody())); size > bl.bodyLimitConfig.MaxBodySize {
			bl.reject(ctx, size)
			return
		}
	}

	next(ctx)
}

func (bl *BodyLimitMiddleware) reject(ctx *fasthttp.RequestCtx, size int64) {
	if counter := counterOf(bl.metrics, "http_body_rejected_total", nil); counter != nil {
		counter.Inc()
	}

	bl.logger.Warn("Request body too large",
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.Int64("size", size),
		zap.Int64("max_body_size", bl.bodyLimitConfig.MaxBodySize))

	ctx.SetConnectionClose()
	ctx.Response.Header.Set("X-Max-Body-Size", strconv.FormatInt(bl.bodyLimitConfig.MaxBodySize, 10))
	utils.WriteError(ctx, fasthttp.StatusRequestEntityTooLarge,
		types.Errorf(types.ErrBodyTooLarge, "body of %d bytes exceeds %d", size, bl.bodyLimitConfig.MaxBodySize))
}

func hasBody(method []byte) bool {
	for _, m := range bodyMethods {
		if bytes.Equal(method, m) {
			return true
		}
	}
	return false
}
