package service

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-cache/affiliate"
	"github.com/saiset-co/sai-cache/cache"
	"github.com/saiset-co/sai-cache/client"
	"github.com/saiset-co/sai-cache/config"
	"github.com/saiset-co/sai-cache/cron"
	"github.com/saiset-co/sai-cache/database"
	"github.com/saiset-co/sai-cache/health"
	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/metrics"
	"github.com/saiset-co/sai-cache/middleware"
	"github.com/saiset-co/sai-cache/sai"
	"github.com/saiset-co/sai-cache/server"
	"github.com/saiset-co/sai-cache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Option func(*Service)

// WithListener serves HTTP on listener instead of binding server.http.
func WithListener(listener net.Listener) Option {
	return func(s *Service) {
		s.listener = listener
	}
}

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	configPath      string
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	container       *sai.Container
	middlewares     *middleware.Manager
	router          *server.HTTPRouter
	server          *server.FastHTTPServer
	listener        net.Listener
}

func NewService(ctx context.Context, configPath string, opts ...Option) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(err, "file does not exist")
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		configPath:      configPath,
		container:       sai.InitContainer(),
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}

	for _, opt := range opts {
		opt(service)
	}

	service.state.Store(StateStopped)

	if err := service.registerProviders(); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register providers")
	}

	sai.SetContainer(service.container)
	return service, nil
}

// Start runs the service and blocks until it is stopped by Stop, a signal
// or cancellation of the parent context.
func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger().Warn("Service is already running")
		return types.ErrServiceIsRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				s.logger().Error("Service run panic", zap.Stack(string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	s.logger().Info("Starting service", zap.String("config", s.configPath))

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		s.setState(StateStopped)
		if stopErr := s.stopComponents(); stopErr != nil {
			s.logger().ErrorWithErrStack("Error during rollback", stopErr)
		}

		err = types.NewError(err, "failed to start components")
		s.logger().ErrorWithErrStack("Service startup failed", err)
		return err
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	s.logger().Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		s.logger().ErrorWithErrStack("Error during service shutdown", err)
	}

	s.wg.Wait()
	s.setState(StateStopped)

	s.logger().Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger().Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	s.logger().Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) {
	s.state.Store(newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) logger() types.Logger {
	if ptr := s.container.Logger.Load(); ptr != nil {
		return *ptr
	}
	return logger.NewNop()
}

func (s *Service) startComponents(ctx context.Context) error {
	if ptr := s.container.Config.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start config manager")
		}
	}

	if ptr := s.container.Logger.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start logger")
		}
	}

	if ptr := s.container.Metrics.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			s.logger().Error("Failed to start metrics manager", zap.Error(err))
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	startAsync := func(name string, manager types.LifecycleManager) {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			if err := manager.Start(); err != nil {
				return types.WrapError(err, "failed to start "+name)
			}
			return nil
		})
	}

	if ptr := s.container.Cache.Load(); ptr != nil {
		startAsync("cache manager", *ptr)
	}

	if ptr := s.container.ClientManager.Load(); ptr != nil {
		startAsync("client manager", *ptr)
	}

	if ptr := s.container.Database.Load(); ptr != nil {
		startAsync("database", *ptr)
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		startAsync("health manager", *ptr)
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			return types.NewErrorf("component startup timeout: %v", ctx.Err())
		default:
			return err
		}
	}

	var err error
	if s.listener != nil {
		err = s.server.Serve(s.listener)
	} else {
		err = s.server.Start()
	}
	if err != nil {
		return types.WrapError(err, "failed to start HTTP server")
	}

	if ptr := s.container.Cron.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			s.logger().Error("Failed to start cron manager", zap.Error(err))
		}
	}

	s.logger().Info("All components started successfully")
	return nil
}

// stopComponents stops everything that is running, in reverse dependency
// order. Components that never started are skipped.
func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error

	s.logger().Info("Stopping service components...")

	if ptr := s.container.Cron.Load(); ptr != nil && (*ptr).IsRunning() {
		if err := (*ptr).Stop(); err != nil {
			s.logger().Error("Failed to stop cron manager", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if s.server.IsRunning() {
		if err := s.server.Stop(); err != nil {
			s.logger().Error("Failed to stop HTTP server", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if err := s.middlewares.Stop(); err != nil {
		s.logger().Error("Failed to stop middleware manager", zap.Error(err))
		errs = append(errs, err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	stopAsync := func(name string, manager types.LifecycleManager) {
		if !manager.IsRunning() {
			return
		}

		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			if err := manager.Stop(); err != nil {
				s.logger().Error("Failed to stop "+name, zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		stopAsync("health manager", *ptr)
	}

	if ptr := s.container.Cache.Load(); ptr != nil {
		stopAsync("cache manager", *ptr)
	}

	if ptr := s.container.ClientManager.Load(); ptr != nil {
		stopAsync("client manager", *ptr)
	}

	if ptr := s.container.Database.Load(); ptr != nil {
		stopAsync("database", *ptr)
	}

	if ptr := s.container.Metrics.Load(); ptr != nil {
		stopAsync("metrics manager", *ptr)
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			s.logger().Warn("Component shutdown timeout, some components may not have stopped gracefully")
		default:
			errs = append(errs, err)
		}
	}

	if rewriter := s.container.Rewriter.Load(); rewriter != nil {
		rewriter.Close()
	}

	if ptr := s.container.Config.Load(); ptr != nil && (*ptr).IsRunning() {
		if err := (*ptr).Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return types.NewErrorf("errors during shutdown: %v", errs)
	}

	s.logger().Info("All components stopped successfully")

	if ptr := s.container.Logger.Load(); ptr != nil && (*ptr).IsRunning() {
		return (*ptr).Stop()
	}

	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			s.logger().Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			s.logger().Info("Service context cancelled")
		}
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		s.logger().Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		s.logger().Warn("Service shutdown: context deadline exceeded")
	default:
		s.logger().Info("Service shutdown: context done")
	}
}

// registerProviders builds the components in dependency order. Nothing is
// started here.
func (s *Service) registerProviders() error {
	ctx := s.ctx
	container := s.container

	configManager, err := config.NewConfigurationManager(ctx, s.configPath)
	if err != nil {
		return types.WrapError(err, "failed to register config manager")
	}
	container.SetConfig(configManager)

	_config := configManager.GetConfig()

	loggerManager, err := logger.NewManager(_config.Logger)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	container.SetLogger(loggerManager)

	var metricsManager types.MetricsManager
	if _config.Metrics != nil && _config.Metrics.Enabled {
		manager, err := metrics.NewManager(_config.Metrics, loggerManager)
		if err != nil {
			return types.WrapError(err, "failed to register metrics manager")
		}
		metricsManager = manager
		container.SetMetrics(manager)
	}

	var cacheManager types.CacheManager
	if _config.Cache != nil && _config.Cache.Enabled {
		cacheManager, err = cache.NewCacheManager(ctx, _config.Cache, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register cache manager")
		}
		container.SetCache(cacheManager)
	}

	affiliateEnabled := _config.Affiliate != nil && _config.Affiliate.Enabled

	var databaseManager types.DatabaseManager
	if affiliateEnabled || (_config.Client != nil && _config.Client.Enabled) {
		clientManager := client.NewManager(_config.Client, loggerManager, metricsManager)
		container.SetClientManager(clientManager)

		if affiliateEnabled {
			databaseManager, err = database.NewManager(ctx, _config.Database, loggerManager, metricsManager)
			if err != nil {
				return types.WrapError(err, "failed to register database")
			}
			container.SetDatabase(databaseManager)

			rewriter, err := affiliate.NewRewriter(_config.Affiliate, clientManager, loggerManager, metricsManager)
			if err != nil {
				return types.WrapError(err, "failed to register affiliate rewriter")
			}
			container.SetAffiliate(rewriter, affiliate.NewTemplateStore(databaseManager))
		}
	}

	s.router = server.NewHTTPRouter()

	s.middlewares = middleware.NewManager(ctx, configManager, loggerManager, metricsManager)
	if err := s.middlewares.RegisterMiddlewares(); err != nil {
		return types.WrapError(err, "failed to register middlewares")
	}

	if _config.Health != nil && _config.Health.Enabled {
		healthManager, err := health.NewManager(ctx, configManager, loggerManager, s.router)
		if err != nil {
			return types.WrapError(err, "failed to register health manager")
		}

		if cacheManager != nil {
			healthManager.RegisterChecker("cache", cache.HealthChecker(cacheManager))
		}
		if databaseManager != nil {
			healthManager.RegisterChecker("database", database.HealthChecker(databaseManager))
		}

		container.SetHealth(healthManager)
	}

	if _config.Cron != nil && _config.Cron.Enabled {
		cronManager, err := cron.NewManager(ctx, _config.Cron, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register cron manager")
		}

		if err := cron.RegisterCacheJobs(cronManager, _config.Cron, cacheManager, loggerManager); err != nil {
			return types.WrapError(err, "failed to register cron jobs")
		}

		container.SetCron(cronManager)
	}

	s.registerRoutes(metricsManager)

	s.server, err = server.NewHTTPServer(configManager, loggerManager, s.middlewares, s.router)
	if err != nil {
		return types.WrapError(err, "failed to register HTTP server")
	}
	container.SetHTTPServer(s.server)

	return nil
}
