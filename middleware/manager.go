package middleware

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

const MaxMiddlewares = 64

// Manager runs registered middlewares in ascending weight order. Each
// route selects its subset through RouteConfig; the chain for a given
// subset is built once and reused.
type Manager struct {
	ctx                context.Context
	config             types.ConfigManager
	logger             types.Logger
	metrics            types.MetricsManager
	middlewareMap      map[string]types.Middleware
	orderedMiddlewares []types.MiddlewareEntry
	nameToIndex        map[string]int
	defaultEnabledMask uint64
	compiledChains     map[uint64][]types.Middleware
	chainsMu           sync.RWMutex
	mu                 sync.Mutex
	initialized        int32
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *Manager {
	return &Manager{
		ctx:            ctx,
		config:         config,
		logger:         logger,
		metrics:        metrics,
		middlewareMap:  make(map[string]types.Middleware),
		nameToIndex:    make(map[string]int),
		compiledChains: make(map[uint64][]types.Middleware),
	}
}

// RegisterMiddlewares registers every middleware enabled in the config and
// finalizes the chain order.
func (m *Manager) RegisterMiddlewares() error {
	config := m.config.GetConfig().Middlewares
	if config == nil || !config.Enabled {
		return m.Finalize()
	}

	if enabled(config.CORS) {
		if err := m.Register(NewCORSMiddleware(config.CORS, m.logger, m.metrics)); err != nil {
			return err
		}
	}

	if enabled(config.Recovery) {
		if err := m.Register(NewRecoveryMiddleware(config.Recovery, m.logger, m.metrics)); err != nil {
			return err
		}
	}

	if enabled(config.Logging) {
		if err := m.Register(NewLoggingMiddleware(config.Logging, m.logger, m.metrics)); err != nil {
			return err
		}
	}

	if enabled(config.RateLimit) {
		if err := m.Register(NewRateLimitMiddleware(m.ctx, config.RateLimit, m.logger, m.metrics)); err != nil {
			return err
		}
	}

	if enabled(config.BodyLimit) {
		if err := m.Register(NewBodyLimitMiddleware(config.BodyLimit, m.logger, m.metrics)); err != nil {
			return err
		}
	}

	if enabled(config.Compression) {
		if err := m.Register(NewCompressionMiddleware(config.Compression, m.logger, m.metrics)); err != nil {
			return err
		}
	}

	return m.Finalize()
}

func enabled(item *types.MiddlewareItemConfig) bool {
	return item != nil && item.Enabled
}

func (m *Manager) Register(middleware types.Middleware) error {
	if middleware == nil {
		return types.Errorf(types.ErrInvalidParameter, "middleware is nil")
	}

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.Errorf(types.ErrInvalidState, "cannot register middleware %s after finalization", middleware.Name())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.middlewareMap) >= MaxMiddlewares {
		return types.Errorf(types.ErrInvalidParameter, "maximum middleware count exceeded: %d", MaxMiddlewares)
	}

	m.middlewareMap[middleware.Name()] = middleware
	m.logger.Info("Middleware registered",
		zap.String("name", middleware.Name()),
		zap.Int("weight", middleware.Weight()))

	return nil
}

// Finalize fixes the execution order. Two middlewares may not share a weight.
func (m *Manager) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.Errorf(types.ErrInvalidState, "middleware configuration already finalized")
	}

	weights := make(map[int]string, len(m.middlewareMap))
	ordered := make([]types.MiddlewareEntry, 0, len(m.middlewareMap))

	for name, mw := range m.middlewareMap {
		if existing, exists := weights[mw.Weight()]; exists {
			return types.Errorf(types.ErrMiddlewareOrderInvalid, "duplicate weight %d for middlewares '%s' and '%s'", mw.Weight(), existing, name)
		}
		weights[mw.Weight()] = name

		ordered = append(ordered, types.MiddlewareEntry{Name: name, Middleware: mw, Weight: mw.Weight()})
	}

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Weight < ordered[j].Weight
	})

	m.orderedMiddlewares = ordered
	m.defaultEnabledMask = 0
	for i, entry := range ordered {
		m.nameToIndex[entry.Name] = i
		m.defaultEnabledMask |= 1 << uint(i)
	}

	atomic.StoreInt32(&m.initialized, 1)
	return nil
}

func (m *Manager) Execute(ctx *fasthttp.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if atomic.LoadInt32(&m.initialized) == 0 {
		handler(ctx)
		return
	}

	chain := m.chainFor(m.routeMask(config))
	if len(chain) == 0 {
		handler(ctx)
		return
	}

	var index int
	var next func(*fasthttp.RequestCtx)
	next = func(ctx *fasthttp.RequestCtx) {
		if index >= len(chain) {
			handler(ctx)
			return
		}

		mw := chain[index]
		index++
		mw.Handle(ctx, next, config)
	}

	next(ctx)
}

// Stop releases background resources held by middlewares.
func (m *Manager) Stop() error {
	for _, entry := range m.orderedMiddlewares {
		if stopper, ok := entry.Middleware.(interface{ Stop() error }); ok {
			if err := stopper.Stop(); err != nil {
				m.logger.Warn("Failed to stop middleware", zap.String("name", entry.Name), zap.Error(err))
			}
		}
	}
	return nil
}

func (m *Manager) routeMask(config *types.RouteConfig) uint64 {
	mask := m.defaultEnabledMask
	if config == nil {
		return mask
	}

	for _, name := range config.Middlewares {
		if index, exists := m.nameToIndex[name]; exists {
			mask |= 1 << uint(index)
		}
	}

	for _, name := range config.DisabledMiddlewares {
		if index, exists := m.nameToIndex[name]; exists {
			mask &^= 1 << uint(index)
		}
	}

	return mask
}

func (m *Manager) chainFor(mask uint64) []types.Middleware {
	m.chainsMu.RLock()
	chain, exists := m.compiledChains[mask]
	m.chainsMu.RUnlock()

	if exists {
		return chain
	}

	chain = make([]types.Middleware, 0, len(m.orderedMiddlewares))
	for i, entry := range m.orderedMiddlewares {
		if mask&(1<<uint(i)) != 0 {
			chain = append(chain, entry.Middleware)
		}
	}

	m.chainsMu.Lock()
	m.compiledChains[mask] = chain
	m.chainsMu.Unlock()

	return chain
}

func counterOf(metrics types.MetricsManager, name string, labels map[string]string) types.Counter {
	if metrics == nil {
		return nil
	}
	return metrics.Counter(name, labels)
}
