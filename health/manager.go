package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

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

type VersionInfo struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	Build   BuildInfo `json:"build"`
}

type Manager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	config       types.ConfigManager
	logger       types.Logger
	router       types.HTTPRouter
	checkers     map[string]types.HealthChecker
	startTime    time.Time
	build        BuildInfo
	mu           sync.RWMutex
	state        atomic.Value
	checkTimeout time.Duration
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, router types.HTTPRouter) (*Manager, error) {
	if config == nil || config.GetConfig() == nil {
		return nil, types.ErrConfigIsNil
	}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:          managerCtx,
		cancel:       cancel,
		config:       config,
		logger:       logger,
		router:       router,
		checkers:     make(map[string]types.HealthChecker),
		build:        ReadBuildInfo(),
		checkTimeout: 5 * time.Second,
	}

	manager.state.Store(StateStopped)

	if router != nil {
		manager.registerRoutes()
	}

	return manager, nil
}

func (hm *Manager) RegisterChecker(name string, checker types.HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkers[name] = checker
}

// Check runs every registered checker concurrently, each bounded by the
// check timeout.
func (hm *Manager) Check(ctx context.Context) types.HealthReport {
	hm.mu.RLock()
	checkers := make(map[string]types.HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	var g errgroup.Group
	results := make(map[string]types.HealthCheck, len(checkers))
	var resultMu sync.Mutex

	for name, checker := range checkers {
		name, checker := name, checker
		g.Go(func() error {
			result := hm.executeCheck(ctx, name, checker)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	return hm.buildReport(results)
}

func (hm *Manager) Start() error {
	if !hm.transitionState(StateStopped, StateStarting) {
		hm.logger.Warn("Health manager is already running")
		return types.ErrServerAlreadyRunning
	}

	hm.startTime = time.Now()
	hm.setState(StateRunning)

	hm.logger.Info("Health manager started", zap.Int("checkers", hm.checkerCount()))
	return nil
}

func (hm *Manager) Stop() error {
	if !hm.transitionState(StateRunning, StateStopping) {
		hm.logger.Warn("Health manager is not running")
		return types.ErrServerNotRunning
	}

	hm.cancel()
	hm.setState(StateStopped)

	hm.logger.Info("Health manager stopped")
	return nil
}

func (hm *Manager) IsRunning() bool {
	return hm.getState() == StateRunning
}

func (hm *Manager) checkerCount() int {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return len(hm.checkers)
}

func (hm *Manager) getState() State {
	return hm.state.Load().(State)
}

func (hm *Manager) setState(newState State) {
	hm.state.Store(newState)
}

func (hm *Manager) transitionState(from, to State) bool {
	return hm.state.CompareAndSwap(from, to)
}

func (hm *Manager) registerRoutes() {
	hm.router.GET("/health", hm.handleHealth).
		WithTimeout(hm.checkTimeout + time.Second).
		WithoutMiddlewares("logging", "rate_limit")
	hm.router.GET("/version", hm.handleVersion).
		WithoutMiddlewares("rate_limit")
}

func (hm *Manager) handleVersion(ctx *fasthttp.RequestCtx) {
	config := hm.config.GetConfig()

	utils.WriteJSON(ctx, fasthttp.StatusOK, VersionInfo{
		Name:    config.Name,
		Version: config.Version,
		Build:   hm.build,
	})
}

func (hm *Manager) handleHealth(ctx *fasthttp.RequestCtx) {
	if !hm.IsRunning() {
		utils.WriteError(ctx, fasthttp.StatusServiceUnavailable, types.ErrServiceIsNotRunning)
		return
	}

	report := hm.Check(hm.ctx)

	status := fasthttp.StatusOK
	if report.Status == types.StatusUnhealthy {
		status = fasthttp.StatusServiceUnavailable
	}

	utils.WriteJSON(ctx, status, report)
}

func (hm *Manager) executeCheck(ctx context.Context, name string, checker types.HealthChecker) types.HealthCheck {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, hm.checkTimeout)
	defer cancel()

	resultChan := make(chan types.HealthCheck, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				hm.logger.Error("Health check panicked", zap.String("check", name), zap.Any("panic", r))
				resultChan <- types.HealthCheck{
					Status:  types.StatusUnhealthy,
					Message: fmt.Sprintf("health check panicked: %v", r),
				}
			}
		}()

		resultChan <- checker(checkCtx)
	}()

	var result types.HealthCheck

	select {
	case result = <-resultChan:
	case <-hm.ctx.Done():
		result = types.HealthCheck{Status: types.StatusUnhealthy, Message: "health manager shutting down"}
	case <-checkCtx.Done():
		result = types.HealthCheck{Status: types.StatusUnhealthy, Message: types.ErrHealthCheckTimeout.Error()}
	}

	result.Name = name
	result.CheckedAt = time.Now()
	result.Duration = time.Since(start)

	return result
}

func (hm *Manager) buildReport(results map[string]types.HealthCheck) types.HealthReport {
	config := hm.config.GetConfig()

	report := types.HealthReport{
		Status:    types.StatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.startTime),
		Service: types.ServiceInfo{
			Name:    config.Name,
			Version: config.Version,
			Address: net.JoinHostPort(config.Server.HTTP.Host, strconv.Itoa(config.Server.HTTP.Port)),
		},
		Checks: results,
	}

	for _, result := range results {
		if result.Status == types.StatusHealthy {
			report.Healthy++
			continue
		}

		report.Unhealthy++
		report.Status = types.StatusUnhealthy
	}

	return report
}
