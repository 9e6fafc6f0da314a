package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"alertrelay/internal/classification"
	"alertrelay/internal/config"
	"alertrelay/internal/constants"
	"alertrelay/internal/deduplication"
	"alertrelay/internal/delivery"
	"alertrelay/internal/extraction"
	"alertrelay/internal/logger"
	"alertrelay/internal/mailbox"
	"alertrelay/internal/opsapi"
	"alertrelay/internal/pipeline"
	"alertrelay/internal/scheduler"
	"alertrelay/pkg/bootstrap"
	"alertrelay/pkg/health"
	"alertrelay/pkg/logging"
	"alertrelay/pkg/metrics"
	"alertrelay/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	loc            *time.Location
	store          *deduplication.Store
	driver         *pipeline.Driver
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Location() *time.Location {
	return a.loc
}

// Initialize wires the pipeline for target (alerts or vehicles).
func (a *App) Initialize(ctx context.Context, target string) error {
	loc, err := a.Config.Scan.Location()
	if err != nil {
		return err
	}
	a.loc = loc

	tp, err := tracing.Init(a.Config.Tracing, a.Config.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPipelineMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterHTTPMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.InitRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}

	if err := a.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initPipeline(ctx, target); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	a.Logger.InfowCtx(logging.WithServiceName(ctx, constants.ServiceName), "Application initialized",
		"target", target,
		"dedup_store", a.Config.Dedup.Store,
		"broker", a.Config.Broker.Type,
		"timezone", loc.String(),
	)
	return nil
}

func (a *App) initPipeline(ctx context.Context, target string) error {
	extractor, err := extraction.New(a.loc)
	if err != nil {
		return err
	}

	allowed, err := classification.ParseAllowList(a.Config.Scan.AllowedTypes)
	if err != nil {
		return err
	}

	rules, err := classification.NewRuleFilter(a.Config.Scan.SuppressRules)
	if err != nil {
		return err
	}

	namespace := constants.NamespaceAlerts
	var sink pipeline.Deliverer
	switch target {
	case pipeline.TargetVehicles:
		namespace = constants.NamespaceVehicles
		sink, err = a.vehicleSink(ctx)
	default:
		sink, err = delivery.NewCommitter(a.Config.Collector, a.Config.CircuitBreaker, a.Logger)
	}
	if err != nil {
		return err
	}

	repo, err := deduplication.NewRepositoryFromConfig(a.Config.Dedup, a.Config.CircuitBreaker, a.Redis, namespace)
	if err != nil {
		return err
	}
	a.store = deduplication.NewStore(repo, a.loc, a.Logger)

	driver, err := pipeline.NewDriver(pipeline.Deps{
		Mailbox:           mailbox.NewIMAPMailbox(a.Config.Mailbox, a.Logger),
		Extractor:         extractor,
		Classifier:        classification.New(allowed),
		Rules:             rules,
		Store:             a.store,
		Sink:              sink,
		Producer:          a.Producer,
		Logger:            a.Logger,
		Target:            target,
		WindowPaddingDays: a.Config.Dedup.WindowPaddingDays,
	})
	if err != nil {
		return err
	}
	a.driver = driver
	return nil
}

func (a *App) vehicleSink(ctx context.Context) (*delivery.VehicleSink, error) {
	sink, err := delivery.NewVehicleSink(a.Config.Collector, a.Config.CircuitBreaker, a.Logger)
	if err != nil {
		return nil, err
	}

	codesRepo, err := deduplication.NewRepositoryFromConfig(a.Config.Dedup, a.Config.CircuitBreaker, a.Redis, constants.NamespaceVehicleCodes)
	if err != nil {
		return nil, err
	}
	platesRepo, err := deduplication.NewRepositoryFromConfig(a.Config.Dedup, a.Config.CircuitBreaker, a.Redis, constants.NamespaceVehiclePlates)
	if err != nil {
		return nil, err
	}
	sink.WithRegistries(
		deduplication.NewStore(codesRepo, a.loc, a.Logger),
		deduplication.NewStore(platesRepo, a.loc, a.Logger),
	)

	// Without the registry the collector's 409 still keeps registration idempotent.
	if err := sink.Preload(ctx); err != nil {
		a.Logger.WarnwCtx(ctx, "Registered vehicles unavailable, starting empty", "error", err)
	}
	return sink, nil
}

// RunCycle runs one cycle and logs its summary.
func (a *App) RunCycle(ctx context.Context, criteria mailbox.Criteria) (pipeline.CycleSummary, error) {
	summary, err := a.driver.RunCycle(ctx, criteria)
	if err != nil {
		a.Logger.ErrorwCtx(ctx, "Cycle aborted", "error", err, "cycle_id", summary.CycleID)
		return summary, err
	}
	return summary, nil
}

// ScanOnce runs one cycle over the configured lookback.
func (a *App) ScanOnce(ctx context.Context) (pipeline.CycleSummary, error) {
	criteria := scheduler.LookbackCriteria(a.Config.Scan.LookbackDays, a.loc, a.Config.Mailbox.UnseenOnly)(time.Now())
	return a.RunCycle(ctx, criteria)
}

// Serve runs the duty-cycle scheduler and, when enabled, the ops server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	duty := scheduler.NewDutyCycle(
		a.driver,
		scheduler.LookbackCriteria(a.Config.Scan.LookbackDays, a.loc, a.Config.Mailbox.UnseenOnly),
		a.Config.Schedule,
		scheduler.RealClock(),
		a.Logger,
	)

	if a.Config.Server.Enabled {
		server := opsapi.NewServer(a.Config.Server, opsapi.NewRouter(gCtx, a.Config, a.opsHandler(duty), a.Logger))

		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("HTTP server shutdown error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return duty.Run(gCtx)
	})

	return g.Wait()
}

func (a *App) opsHandler(duty *scheduler.DutyCycle) *opsapi.Handler {
	registry := health.NewCheckerRegistry()
	if a.Redis != nil {
		registry.Register(health.NewRedisChecker(a.Redis))
	}
	registry.Register(health.NewCycleChecker(func() (time.Time, string, bool) {
		s, ok := a.driver.LastSummary()
		return s.FinishedAt, s.Error, ok
	}, a.Config.Server.StaleAfter))

	return opsapi.NewHandler(registry, a.driver, duty, a.store, a.Logger)
}

func (a *App) Shutdown(ctx context.Context) error {
	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
			defer cancel()
			if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
