package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eldopolis/portal-core/cache"
	"github.com/eldopolis/portal-core/client"
	"github.com/eldopolis/portal-core/config"
	"github.com/eldopolis/portal-core/content"
	"github.com/eldopolis/portal-core/cron"
	"github.com/eldopolis/portal-core/currency"
	"github.com/eldopolis/portal-core/events"
	"github.com/eldopolis/portal-core/health"
	"github.com/eldopolis/portal-core/logger"
	"github.com/eldopolis/portal-core/metrics"
	"github.com/eldopolis/portal-core/prefetch"
	"github.com/eldopolis/portal-core/server"
	"github.com/eldopolis/portal-core/store"
	"github.com/eldopolis/portal-core/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Service composes the portal components from a configuration file and
// drives their lifecycle. Start blocks until shutdown.
type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	configPath      string
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	container       *Container
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(err, "config file is not readable")
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		configPath:      configPath,
		container:       NewContainer(),
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}

	service.state.Store(StateStopped)

	if err := service.registerComponents(); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register components")
	}

	return service, nil
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Service is already running")
		return types.ErrServerAlreadyRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				s.logger.Error("Service run panic", zap.String("stack", string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	s.logger.Info("Starting service")

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	s.logger.Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		s.logger.Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	s.logger.Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("Service is not running")
		return types.ErrServerNotRunning
	}

	s.logger.Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Cancel() {
	s.cancel()
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) Components() *Container {
	return s.container
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

// registerComponents wires the full dependency graph. Construction order
// follows the dependencies: config and logger first, then the stores, then
// the services that read through them, then the edge components.
func (s *Service) registerComponents() error {
	configManager, err := config.NewConfigurationManager(s.ctx, s.configPath)
	if err != nil {
		return types.WrapError(err, "failed to register config manager")
	}
	s.container.SetConfig(configManager)

	serviceConfig := configManager.GetConfig()

	loggerManager, err := logger.NewManager(s.ctx, serviceConfig.Logger)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	s.container.SetLogger(loggerManager)
	s.logger = loggerManager

	var metricsManager types.MetricsManager
	if serviceConfig.Metrics != nil && serviceConfig.Metrics.Enabled {
		metricsManager, err = metrics.NewPrometheusMetrics(loggerManager, serviceConfig.Metrics)
		if err != nil {
			return types.WrapError(err, "failed to register metrics manager")
		}
		s.container.SetMetrics(metricsManager)
	}

	var httpConfig *types.HTTPConfig
	if serviceConfig.Server != nil {
		httpConfig = serviceConfig.Server.HTTP
	}

	var healthManager types.HealthManager
	if serviceConfig.Health == nil || serviceConfig.Health.Enabled {
		info := types.ServiceInfo{
			Name:    serviceConfig.Name,
			Version: serviceConfig.Version,
		}
		if httpConfig != nil {
			info.Host = httpConfig.Host
			info.Port = httpConfig.Port
		}

		healthManager, err = health.NewManager(s.ctx, loggerManager, info)
		if err != nil {
			return types.WrapError(err, "failed to register health manager")
		}
		s.container.SetHealth(healthManager)
	}

	documentStore, err := store.NewDocumentStore(s.ctx, serviceConfig.Store, loggerManager)
	if err != nil {
		return types.WrapError(err, "failed to register document store")
	}
	s.container.SetStore(documentStore)

	cacheStore, err := cache.NewCacheStore(s.ctx, serviceConfig.Cache, loggerManager, metricsManager)
	if err != nil {
		return types.WrapError(err, "failed to register cache store")
	}
	s.container.SetCache(cacheStore)

	contentService := content.NewService(documentStore, cacheStore, loggerManager, serviceConfig.Content)
	s.container.SetContent(contentService)

	if serviceConfig.Prefetch != nil && serviceConfig.Prefetch.Enabled {
		engine := prefetch.NewEngine(contentService, nil, loggerManager, metricsManager, prefetch.NewClock(), serviceConfig.Prefetch)
		s.container.SetPrefetch(engine)
	}

	currencyConfig := serviceConfig.Currency
	if currencyConfig == nil {
		currencyConfig = &types.CurrencyConfig{}
	}

	upstream := client.NewHTTPClient(s.ctx, loggerManager, "currency_upstream", currencyConfig.Timeout, currencyConfig.Breaker)
	s.container.SetUpstream(upstream)

	currencyService := currency.NewService(upstream, cacheStore, loggerManager, currencyConfig)
	s.container.SetCurrency(currencyService)

	httpServer, err := server.NewHTTPServer(s.ctx, loggerManager, metricsManager, healthManager, currencyService, httpConfig)
	if err != nil {
		return types.WrapError(err, "failed to register HTTP server")
	}
	s.container.SetHTTPServer(httpServer)

	if serviceConfig.Events != nil && serviceConfig.Events.Enabled {
		listener, err := events.NewListener(s.ctx, loggerManager, metricsManager, serviceConfig.Events)
		if err != nil {
			return types.WrapError(err, "failed to register events listener")
		}
		if err := events.RegisterCacheInvalidation(listener, cacheStore, loggerManager); err != nil {
			return types.WrapError(err, "failed to register cache invalidation")
		}
		s.container.SetEvents(listener)
	}

	if serviceConfig.Cron != nil && serviceConfig.Cron.Enabled {
		cronManager, err := cron.NewManager(s.ctx, loggerManager, metricsManager, serviceConfig.Cron)
		if err != nil {
			return types.WrapError(err, "failed to register cron manager")
		}

		var sweeper cron.Sweeper
		if engine := s.container.Prefetch.Load(); engine != nil {
			sweeper = engine
		}
		if err := cron.RegisterMaintenance(cronManager, cacheStore, sweeper, loggerManager); err != nil {
			return types.WrapError(err, "failed to register maintenance jobs")
		}
		s.container.SetCron(cronManager)
	}

	if healthManager != nil {
		healthManager.RegisterChecker("store", health.StoreChecker(documentStore))
		healthManager.RegisterChecker("cache", health.LifecycleChecker(cacheStore))
		healthManager.RegisterChecker("http_server", health.LifecycleChecker(httpServer))
	}

	return nil
}

func (s *Service) startComponents(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if ptr := s.container.Config.Load(); ptr != nil {
			manager := (*ptr).(types.LifecycleManager)
			if err := manager.Start(); err != nil {
				return types.WrapError(err, "failed to start config manager")
			}
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if ptr := s.container.Logger.Load(); ptr != nil {
			manager := (*ptr).(types.LifecycleManager)
			if err := manager.Start(); err != nil {
				return types.WrapError(err, "failed to start logger")
			}
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if ptr := s.container.Health.Load(); ptr != nil {
			if err := (*ptr).Start(); err != nil {
				s.logger.Error("Failed to start health manager", zap.Error(err))
			}
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if ptr := s.container.Metrics.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Start(); err != nil {
					s.logger.Error("Failed to start metrics manager", zap.Error(err))
				}
				return nil
			}
		})
	}

	if ptr := s.container.Store.Load(); ptr != nil {
		documentStore := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := documentStore.Start(); err != nil {
					return types.WrapError(err, "failed to start document store")
				}
				return nil
			}
		})
	}

	if ptr := s.container.Cache.Load(); ptr != nil {
		cacheStore := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := cacheStore.Start(); err != nil {
					return types.WrapError(err, "failed to start cache store")
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			return types.NewErrorf("component startup timeout: %v", ctx.Err())
		default:
			return err
		}
	}

	if httpServer := s.container.HTTPServer.Load(); httpServer != nil {
		if err := httpServer.Start(); err != nil {
			return types.WrapError(err, "failed to start HTTP server")
		}
	}

	if listener := s.container.Events.Load(); listener != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			// A dead CMS feed must not keep the portal down; the
			// listener reconnects on its own once started.
			if err := listener.Start(); err != nil {
				s.logger.Warn("Failed to start events listener", zap.Error(err))
			}
		}
	}

	if ptr := s.container.Cron.Load(); ptr != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := (*ptr).Start(); err != nil {
				s.logger.Error("Failed to start cron manager", zap.Error(err))
			}
		}
	}

	s.logger.Info("All components started successfully")
	return nil
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var stopErrors []error

	s.logger.Info("Stopping service components...")

	g, gCtx := errgroup.WithContext(ctx)

	if ptr := s.container.Cron.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Stop(); err != nil {
					s.logger.Error("Failed to stop cron manager", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if listener := s.container.Events.Load(); listener != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := listener.Stop(); err != nil {
					s.logger.Error("Failed to stop events listener", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			s.logger.Warn("Component shutdown timeout, some components may not have stopped gracefully")
		default:
			stopErrors = append(stopErrors, err)
		}
	}

	if httpServer := s.container.HTTPServer.Load(); httpServer != nil {
		if err := httpServer.Stop(); err != nil {
			s.logger.Error("Failed to stop HTTP server", zap.Error(err))
			stopErrors = append(stopErrors, err)
		}
	}

	if upstream := s.container.Upstream.Load(); upstream != nil {
		upstream.Close()
	}

	g, _ = errgroup.WithContext(context.Background())

	if ptr := s.container.Cache.Load(); ptr != nil {
		cacheStore := *ptr
		g.Go(func() error {
			if err := cacheStore.Stop(); err != nil {
				s.logger.Error("Failed to stop cache store", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Store.Load(); ptr != nil {
		documentStore := *ptr
		g.Go(func() error {
			if err := documentStore.Stop(); err != nil {
				s.logger.Error("Failed to stop document store", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Metrics.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := manager.Stop(); err != nil {
				s.logger.Error("Failed to stop metrics manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := manager.Stop(); err != nil {
				s.logger.Error("Failed to stop health manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		stopErrors = append(stopErrors, err)
	}

	if ptr := s.container.Config.Load(); ptr != nil {
		if err := (*ptr).(types.LifecycleManager).Stop(); err != nil {
			s.logger.Error("Failed to stop config manager", zap.Error(err))
			stopErrors = append(stopErrors, err)
		}
	}

	if len(stopErrors) > 0 {
		return types.NewErrorf("errors during shutdown: %v", stopErrors)
	}

	s.logger.Info("All components stopped successfully")
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

		select {
		case sig := <-sigChan:
			s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			s.logger.Info("Service context cancelled")
		}

		signal.Stop(sigChan)
		close(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		s.logger.Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		s.logger.Warn("Service shutdown: context deadline exceeded")
	default:
		s.logger.Info("Service shutdown: context done")
	}
}
