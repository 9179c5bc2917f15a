package middleware

import (
	"bytes"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const (
	AlgorithmGzip   = "gzip"
	AlgorithmBrotli = "br"

	DefaultLevel   = 5
	DefaultMinSize = 1024
	maxBrotliLevel = 11
	maxGzipLevel   = 9
)

var defaultAllowedTypes = []string{"application/json", "text/*"}

// CompressionMiddleware encodes response bodies with brotli or gzip,
// preferring brotli when the client accepts both.
type CompressionMiddleware struct {
	logger            types.Logger
	metrics           types.MetricsManager
	compressionConfig *CompressionConfig
	weight            int
	bufferPool        sync.Pool
}

type CompressionConfig struct {
	Level        int      `json:"level"`
	MinSize      int      `json:"min_size"`
	AllowedTypes []string `json:"allowed_types"`
}

func NewCompressionMiddleware(item *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *CompressionMiddleware {
	compressionConfig := &CompressionConfig{
		Level:        DefaultLevel,
		MinSize:      DefaultMinSize,
		AllowedTypes: defaultAllowedTypes,
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, compressionConfig); err != nil {
			logger.Error("Failed to unmarshal compression middleware config", zap.Error(err))
		}
	}

	if compressionConfig.Level < 1 || compressionConfig.Level > maxGzipLevel {
		logger.Warn("Invalid compression level, using default", zap.Int("level", compressionConfig.Level))
		compressionConfig.Level = DefaultLevel
	}
	if compressionConfig.MinSize < 0 {
		compressionConfig.MinSize = DefaultMinSize
	}
	if len(compressionConfig.AllowedTypes) == 0 {
		compressionConfig.AllowedTypes = defaultAllowedTypes
	}

	return &CompressionMiddleware{
		logger:            logger,
		metrics:           metrics,
		compressionConfig: compressionConfig,
		weight:            item.Weight,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

func (c *CompressionMiddleware) Name() string { return "compression" }
func (c *CompressionMiddleware) Weight() int  { return c.weight }

func (c *CompressionMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	next(ctx)

	algorithm := negotiate(ctx.Request.Header.Peek(fasthttp.HeaderAcceptEncoding))
	if algorithm == "" || ctx.IsHead() {
		return
	}

	if len(ctx.Response.Header.Peek(fasthttp.HeaderContentEncoding)) > 0 {
		return
	}

	body := ctx.Response.Body()
	if len(body) < c.compressionConfig.MinSize || !c.allowed(ctx.Response.Header.ContentType()) {
		return
	}

	compressed, err := c.compress(algorithm, body)
	if err != nil {
		c.logger.Warn("Failed to compress response", zap.String("algorithm", algorithm), zap.Error(err))
		return
	}

	if len(compressed) >= len(body) {
		return
	}

	ctx.Response.SetBodyRaw(compressed)
	ctx.Response.Header.Set(fasthttp.HeaderContentEncoding, algorithm)
	ctx.Response.Header.Add(fasthttp.HeaderVary, fasthttp.HeaderAcceptEncoding)

	if counter := counterOf(c.metrics, "http_compressed_responses_total", map[string]string{"algorithm": algorithm}); counter != nil {
		counter.Inc()
	}
}

func (c *CompressionMiddleware) compress(algorithm string, body []byte) ([]byte, error) {
	if algorithm == AlgorithmGzip {
		return fasthttp.AppendGzipBytesLevel(nil, body, c.compressionConfig.Level), nil
	}

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	level := c.compressionConfig.Level
	if level > maxBrotliLevel {
		level = maxBrotliLevel
	}

	writer := brotli.NewWriterLevel(buf, level)
	if _, err := writer.Write(body); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return append([]byte(nil), buf.Bytes()...), nil
}

func (c *CompressionMiddleware) allowed(contentType []byte) bool {
	ct := strings.ToLower(string(contentType))
	if semicolon := strings.IndexByte(ct, ';'); semicolon != -1 {
		ct = ct[:semicolon]
	}
	ct = strings.TrimSpace(ct)

	for _, allowedType := range c.compressionConfig.AllowedTypes {
		if allowedType == ct {
			return true
		}
		if prefix, ok := strings.CutSuffix(allowedType, "*"); ok && strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

func negotiate(acceptEncoding []byte) string {
	var gzipAccepted bool

	for _, part := range strings.Split(string(acceptEncoding), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if weight, err := strconv.ParseFloat(q, 64); err == nil && weight == 0 {
				continue
			}
		}

		switch strings.ToLower(strings.TrimSpace(name)) {
		case AlgorithmBrotli:
			return AlgorithmBrotli
		case AlgorithmGzip:
			gzipAccepted = true
		}
	}

	if gzipAccepted {
		return AlgorithmGzip
	}
	return ""
}
