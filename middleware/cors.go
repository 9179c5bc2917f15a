package middleware

import (
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

var (
	trueBytes        = []byte("true")
	asteriskBytes    = []byte("*")
	varyOriginBytes  = []byte("Origin")
	varyPreflightStr = []byte("Origin, Access-Control-Request-Method, Access-Control-Request-Headers")
)

// CORSMiddleware answers preflight requests and decorates cross-origin
// responses. Origins may be listed exactly, as "*.domain" or as "*".
type CORSMiddleware struct {
	logger          types.Logger
	metrics         types.MetricsManager
	corsConfig      *CORSConfig
	weight          int
	allowsAll       bool
	allowedOrigins  map[string]struct{}
	wildcardDomains []string
	allowedMethods  []byte
	allowedHeaders  []byte
	exposedHeaders  []byte
	maxAge          []byte
}

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

func NewCORSMiddleware(item *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *CORSMiddleware {
	corsConfig := &CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         86400,
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, corsConfig); err != nil {
			logger.Error("Failed to unmarshal CORS middleware config", zap.Error(err))
		}
	}

	cm := &CORSMiddleware{
		logger:     logger,
		metrics:    metrics,
		corsConfig: corsConfig,
		weight:     item.Weight,
	}
	cm.compile()

	return cm
}

func (c *CORSMiddleware) Name() string { return "cors" }
func (c *CORSMiddleware) Weight() int  { return c.weight }

func (c *CORSMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	origin := ctx.Request.Header.Peek("Origin")
	if len(origin) == 0 {
		next(ctx)
		return
	}

	if !c.originAllowed(string(origin)) {
		if counter := counterOf(c.metrics, "http_cors_rejected_total", nil); counter != nil {
			counter.Inc()
		}

		c.logger.Warn("CORS request blocked",
			zap.ByteString("origin", origin),
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()))

		utils.WriteError(ctx, fasthttp.StatusForbidden, types.Errorf(types.ErrOriginNotAllowed, "%s", origin))
		return
	}

	c.setOrigin(ctx, origin)

	if ctx.IsOptions() && len(ctx.Request.Header.Peek("Access-Control-Request-Method")) > 0 {
		ctx.Response.Header.SetBytesV("Access-Control-Allow-Methods", c.allowedMethods)
		ctx.Response.Header.SetBytesV("Access-Control-Allow-Headers", c.allowedHeaders)
		ctx.Response.Header.SetBytesV("Access-Control-Max-Age", c.maxAge)
		ctx.Response.Header.SetBytesV("Vary", varyPreflightStr)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}

	if len(c.exposedHeaders) > 0 {
		ctx.Response.Header.SetBytesV("Access-Control-Expose-Headers", c.exposedHeaders)
	}
	ctx.Response.Header.AddBytesV("Vary", varyOriginBytes)

	next(ctx)
}

func (c *CORSMiddleware) setOrigin(ctx *fasthttp.RequestCtx, origin []byte) {
	// A wildcard origin is not valid together with credentials.
	if c.allowsAll && !c.corsConfig.AllowCredentials {
		ctx.Response.Header.SetBytesV("Access-Control-Allow-Origin", asteriskBytes)
	} else {
		ctx.Response.Header.SetBytesV("Access-Control-Allow-Origin", origin)
	}

	if c.corsConfig.AllowCredentials {
		ctx.Response.Header.SetBytesV("Access-Control-Allow-Credentials", trueBytes)
	}
}

func (c *CORSMiddleware) originAllowed(origin string) bool {
	if c.allowsAll {
		return true
	}

	if _, exists := c.allowedOrigins[origin]; exists {
		return true
	}

	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}

	for _, domain := range c.wildcardDomains {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}

	return false
}

func (c *CORSMiddleware) compile() {
	c.allowedOrigins = make(map[string]struct{}, len(c.corsConfig.AllowedOrigins))

	for _, origin := range c.corsConfig.AllowedOrigins {
		switch {
		case origin == "*":
			c.allowsAll = true
		case strings.HasPrefix(origin, "*."):
			c.wildcardDomains = append(c.wildcardDomains, strings.TrimPrefix(origin, "*."))
		default:
			c.allowedOrigins[origin] = struct{}{}
		}
	}

	c.allowedMethods = []byte(strings.Join(c.corsConfig.AllowedMethods, ", "))
	c.allowedHeaders = []byte(strings.Join(c.corsConfig.AllowedHeaders, ", "))
	c.exposedHeaders = []byte(strings.Join(c.corsConfig.ExposedHeaders, ", "))
	c.maxAge = []byte(strconv.Itoa(c.corsConfig.MaxAge))
}
