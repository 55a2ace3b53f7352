package cli

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	provider "github.com/noah-isme/calendar2youtube/internal/provider/google"
	"github.com/noah-isme/calendar2youtube/internal/repository"
	"github.com/noah-isme/calendar2youtube/internal/service"
	"github.com/noah-isme/calendar2youtube/pkg/cache"
	"github.com/noah-isme/calendar2youtube/pkg/config"
	"github.com/noah-isme/calendar2youtube/pkg/database"
	"github.com/noah-isme/calendar2youtube/pkg/logger"
	"github.com/noah-isme/calendar2youtube/pkg/oauth"
	"github.com/noah-isme/calendar2youtube/pkg/storage"
)

// app holds the process-wide dependencies shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *service.MetricsService

	tokens oauth.TokenStore
	redis  *redis.Client
	db     *sqlx.DB
	runs   *repository.SyncRunRepository

	closers []func() error
}

// newApp loads configuration and builds the logger. Callers decide how much
// configuration they need validated.
func newApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts != nil && opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to init logger", err)
	}
	a := &app{cfg: cfg, logger: logr, metrics: service.NewMetricsService()}
	a.closers = append(a.closers, func() error {
		_ = logr.Sync()
		return nil
	})
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// validate runs the full configuration check required before a sync.
func (a *app) validate() error {
	if err := a.cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "configuration error", err)
	}
	return nil
}

// tokenStore opens the configured OAuth token backend.
func (a *app) tokenStore(ctx context.Context) (oauth.TokenStore, error) {
	if a.tokens != nil {
		return a.tokens, nil
	}
	switch a.cfg.Google.TokenStore {
	case config.TokenStoreRedis:
		client, err := cache.NewRedis(ctx, a.cfg.Redis)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to connect to redis", err)
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		a.tokens = cache.NewRedisTokenStore(client, a.cfg.Google.TokenCacheKey, a.metrics)
	default:
		files, err := storage.NewLocalStorage(filepath.Dir(a.cfg.Google.TokenFile))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to prepare token directory", err)
		}
		a.tokens = oauth.NewFileTokenStore(files, filepath.Base(a.cfg.Google.TokenFile))
	}
	return a.tokens, nil
}

// openHistory connects the run history store when enabled. It returns a
// disabled HistoryService otherwise.
func (a *app) openHistory(ctx context.Context) (*service.HistoryService, error) {
	if !a.cfg.History.Enabled {
		return service.NewHistoryService(nil, nil, nil, a.logger), nil
	}
	db, err := database.NewPostgres(ctx, a.cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to history database", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	runs := repository.NewSyncRunRepository(db, a.metrics)
	if err := runs.EnsureSchema(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to prepare history schema", err)
	}
	a.runs = runs
	return service.NewHistoryService(runs, nil, nil, a.logger), nil
}

// syncService authorises the Google clients and wires the reconciliation pass.
func (a *app) syncService(ctx context.Context) (*service.SyncService, error) {
	store, err := a.tokenStore(ctx)
	if err != nil {
		return nil, err
	}
	oauthCfg, err := oauth.LoadConfig(a.cfg.Google.CredentialsFile, provider.Scopes...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load google credentials", err)
	}
	client, err := oauth.Client(ctx, oauthCfg, store, func(err error) {
		if err != nil {
			a.logger.Warn("failed to persist refreshed oauth token", zap.Error(err))
			return
		}
		a.logger.Debug("refreshed oauth token persisted")
	})
	if err != nil {
		if errors.Is(err, oauth.ErrNoToken) {
			return nil, NewExitError(ExitCommandError, "no oauth token stored; run `calendar2youtube auth` first")
		}
		return nil, WrapExitError(ExitCommandError, "failed to load oauth token", err)
	}
	services, err := provider.NewServices(ctx, client)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create google clients", err)
	}

	classifier := service.NewEventClassifier(a.cfg.Calendar.StreamingKeywords, a.cfg.Calendar.PrivateKeywords)
	youtube := provider.NewYouTube(services.YouTube, a.logger)
	ledger := service.NewLedgerService(provider.NewLedgerCalendar(services.Calendar, a.cfg.Calendar.LedgerCalendarID, a.logger), a.logger)
	broadcasts := service.NewBroadcastService(youtube, classifier, a.logger)

	var history service.SyncRunWriter
	if a.runs != nil {
		history = a.runs
	}

	return service.NewSyncService(
		provider.NewSourceCalendar(services.Calendar, a.cfg.Calendar.ClassroomCalendarID, a.logger),
		youtube,
		classifier,
		ledger,
		broadcasts,
		history,
		a.metrics,
		service.SyncOptions{
			StreamTitle:   a.cfg.YouTube.LiveStreamTitle,
			PreviousDays:  a.cfg.Sync.PreviousDays,
			FutureDays:    a.cfg.Sync.FutureDays,
			MaxResults:    a.cfg.Sync.MaxResults,
			NextEventDays: a.cfg.Sync.NextEventDays,
		},
		a.logger,
	), nil
}

func (a *app) authService() *service.AuthService {
	return service.NewAuthService(a.logger, service.AuthConfig{
		AccessTokenSecret: a.cfg.JWT.Secret,
		AccessTokenExpiry: a.cfg.JWT.Expiration,
		Issuer:            a.cfg.JWT.Issuer,
	})
}
