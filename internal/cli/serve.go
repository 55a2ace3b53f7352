package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/calendar2youtube/api/swagger"
	"github.com/noah-isme/calendar2youtube/internal/handler"
	"github.com/noah-isme/calendar2youtube/internal/middleware"
	"github.com/noah-isme/calendar2youtube/internal/models"
	"github.com/noah-isme/calendar2youtube/internal/service"
	"github.com/noah-isme/calendar2youtube/pkg/config"
	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
	"github.com/noah-isme/calendar2youtube/pkg/logger"
	corsmiddleware "github.com/noah-isme/calendar2youtube/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/calendar2youtube/pkg/middleware/requestid"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoSchedule bool
	RunOnStart bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run passes on a schedule and expose the trigger API",
		Long: `Run synchronization passes on the SYNC_SCHEDULE cron expression and serve the
HTTP API on PORT. Scheduled and API-triggered passes share one queue and never
overlap; a trigger while a pass is already waiting is rejected with 409.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoSchedule, "no-schedule", false, "only run passes triggered through the API")
	cmd.Flags().BoolVar(&opts.RunOnStart, "run-on-start", false, "queue one pass immediately at startup")

	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	history, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	svc, err := a.syncService(ctx)
	if err != nil {
		return err
	}

	dispatcher := service.NewSyncDispatcher(svc, service.DispatcherConfig{
		MaxRetries: a.cfg.Sync.MaxRetries,
		RetryDelay: a.cfg.Sync.RetryDelay,
	}, a.logger)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	var schedule handler.ScheduleInfo
	if !opts.NoSchedule {
		scheduler, info, err := startScheduler(a.cfg.Sync.Schedule, dispatcher, a.logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid SYNC_SCHEDULE", err)
		}
		defer func() { <-scheduler.Stop().Done() }()
		schedule = info
	}
	if opts.RunOnStart {
		if _, err := dispatcher.Trigger(models.SyncTriggerSchedule, false); err != nil {
			a.logger.Warn("failed to queue startup run", zap.Error(err))
		}
	}

	router := newRouter(routerDeps{
		cfg:     a.cfg,
		logger:  a.logger,
		metrics: a.metrics,
		auth:    a.authService(),
		sync:    handler.NewSyncHandler(dispatcher, history, a.metrics, schedule),
		health:  handler.NewHealthHandler(a.metrics.Handler(), a.readinessChecks()),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", a.cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return WrapExitError(ExitCommandError, "server failed", err)
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("server shutdown", zap.Error(err))
	}
	return nil
}

type routerDeps struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *service.MetricsService
	auth    *service.AuthService
	sync    *handler.SyncHandler
	health  *handler.HealthHandler
}

func newRouter(deps routerDeps) *gin.Engine {
	if deps.cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.logger, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(deps.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if deps.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(deps.cfg.APIPrefix, middleware.JWT(deps.auth))
	api.POST("/sync", middleware.RequireRoles(models.RoleOperator), deps.sync.Trigger)

	read := api.Group("", middleware.RequireRoles(models.RoleOperator, models.RoleViewer))
	read.GET("/status", deps.sync.Status)
	read.GET("/runs", deps.sync.ListRuns)
	read.GET("/runs/export", deps.sync.ExportRuns)
	read.GET("/runs/:id", deps.sync.GetRun)

	return r
}

func (a *app) readinessChecks() map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"oauth_token": func(ctx context.Context) error {
			_, err := a.tokens.Load(ctx)
			return err
		},
	}
	if a.db != nil {
		checks["history_db"] = func(ctx context.Context) error { return a.db.PingContext(ctx) }
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	return checks
}

type scheduleTrigger interface {
	Trigger(trigger models.SyncTrigger, dryRun bool) (string, error)
}

// startScheduler queues a pass on every tick of the cron expression. A tick
// that finds the queue full is skipped.
func startScheduler(schedule string, dispatcher scheduleTrigger, logr *zap.Logger) (*cron.Cron, handler.ScheduleInfo, error) {
	c := cron.New(cron.WithLogger(cronLogger{logr.Sugar()}))
	id, err := c.AddFunc(schedule, func() {
		if _, err := dispatcher.Trigger(models.SyncTriggerSchedule, false); err != nil {
			if appErrors.Is(err, appErrors.ErrSyncBusy) {
				logr.Info("scheduled run skipped, previous run still queued")
				return
			}
			logr.Error("failed to queue scheduled run", zap.Error(err))
		}
	})
	if err != nil {
		return nil, nil, err
	}
	c.Start()
	logr.Info("scheduler started", zap.String("schedule", schedule))

	info := func() (string, string) {
		next := c.Entry(id).Next
		if next.IsZero() {
			return schedule, ""
		}
		return schedule, next.UTC().Format(time.RFC3339)
	}
	return c, info, nil
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
