package middleware

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const shardCount = 64

// RateLimitMiddleware allows at most RequestsPerWindow requests per client
// IP inside each fixed window.
type RateLimitMiddleware struct {
	ctx             context.Context
	logger          types.Logger
	metrics         types.MetricsManager
	rateLimitConfig *RateLimitConfig
	window          time.Duration
	weight          int
	shards          [shardCount]*rateLimitShard
	now             func() time.Time
	stopCleanup     chan struct{}
	workerGroup     sync.WaitGroup
	shutdown        int32
}

type rateLimitShard struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
}

type clientWindow struct {
	start time.Time
	count int64
}

type RateLimitConfig struct {
	RequestsPerMinute int64  `json:"requests_per_minute"`
	WindowSize        string `json:"window_size"`
}

func NewRateLimitMiddleware(ctx context.Context, item *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *RateLimitMiddleware {
	rateLimitConfig := &RateLimitConfig{
		RequestsPerMinute: 100,
		WindowSize:        "1m",
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, rateLimitConfig); err != nil {
			logger.Error("Failed to unmarshal rate limit middleware config", zap.Error(err))
		}
	}

	window, err := time.ParseDuration(rateLimitConfig.WindowSize)
	if err != nil || window <= 0 {
		logger.Warn("Invalid rate limit window, using 1m", zap.String("window_size", rateLimitConfig.WindowSize))
		window = time.Minute
	}

	rl := &RateLimitMiddleware{
		ctx:             ctx,
		logger:          logger,
		metrics:         metrics,
		rateLimitConfig: rateLimitConfig,
		window:          window,
		weight:          item.Weight,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
	}

	for i := range rl.shards {
		rl.shards[i] = &rateLimitShard{clients: make(map[string]*clientWindow)}
	}

	rl.workerGroup.Add(1)
	go rl.cleanupWorker()

	return rl
}

func (rl *RateLimitMiddleware) Name() string { return "rate_limit" }
func (rl *RateLimitMiddleware) Weight() int  { return rl.weight }

func (rl *RateLimitMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	if !rl.allow(remoteAddr(ctx)) {
		if counter := counterOf(rl.metrics, "http_rate_limited_total", nil); counter != nil {
			counter.Inc()
		}

		ctx.Response.Header.Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
		ctx.Response.Header.Set("X-RateLimit-Limit", strconv.FormatInt(rl.rateLimitConfig.RequestsPerMinute, 10))
		utils.WriteError(ctx, fasthttp.StatusTooManyRequests, types.ErrRateLimitExceeded)
		return
	}

	next(ctx)
}

func (rl *RateLimitMiddleware) allow(client string) bool {
	shard := rl.shardFor(client)
	now := rl.now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	window, exists := shard.clients[client]
	if !exists || now.Sub(window.start) >= rl.window {
		shard.clients[client] = &clientWindow{start: now, count: 1}
		return true
	}

	window.count++
	return window.count <= rl.rateLimitConfig.RequestsPerMinute
}

func (rl *RateLimitMiddleware) shardFor(client string) *rateLimitShard {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(client))
	return rl.shards[hasher.Sum32()%shardCount]
}

func (rl *RateLimitMiddleware) cleanupWorker() {
	defer rl.workerGroup.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.ctx.Done():
			return
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimitMiddleware) cleanup() int {
	now := rl.now()
	var removed int

	for _, shard := range rl.shards {
		shard.mu.Lock()
		for client, window := range shard.clients {
			if now.Sub(window.start) >= rl.window {
				delete(shard.clients, client)
				removed++
			}
		}
		shard.mu.Unlock()
	}

	if removed > 0 {
		rl.logger.Debug("Rate limit windows cleaned", zap.Int("removed", removed))
	}

	return removed
}

func (rl *RateLimitMiddleware) Stop() error {
	if !atomic.CompareAndSwapInt32(&rl.shutdown, 0, 1) {
		return nil
	}

	close(rl.stopCleanup)
	rl.workerGroup.Wait()
	return nil
}
