package app

import (
	"context"
	"errors"
	"fmt"

	a "bitwise74/fileshare-api/aws"
	"bitwise74/fileshare-api/cloudflare"
	"bitwise74/fileshare-api/config"
	"bitwise74/fileshare-api/db"
	"bitwise74/fileshare-api/internal"
	"bitwise74/fileshare-api/internal/notify"
	"bitwise74/fileshare-api/internal/service"
	"bitwise74/fileshare-api/internal/store"
	"bitwise74/fileshare-api/pkg/middleware"
	"bitwise74/fileshare-api/pkg/security"
	"bitwise74/fileshare-api/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Router *gin.Engine
	Deps   *internal.Deps

	auth    *middleware.Auth
	cron    *cron.Cron
	redis   *redis.Client
	cancel  context.CancelFunc
	stopRL  chan struct{}
	stopped bool
}

// NewDeps builds the services on top of an open database and object store
func NewDeps(database *gorm.DB, storage service.ObjectStore, hub *notify.Hub, n notify.Notifier, cfg service.FileServiceConfig) *internal.Deps {
	st := store.NewGormStore(database)

	tags := service.NewTagManager(st, st)
	accounting := service.NewDownloadAccounting(st, n)

	return &internal.Deps{
		DB:        database,
		Store:     st,
		Passwords: security.NewPasswordHasher(security.ArgonParamsFromConfig()),
		Storage:   storage,
		Hub:       hub,
		Notifier:  n,

		Access:     service.NewAccessService(st, storage, accounting, tags),
		Files:      service.NewFileService(st, storage, tags, n, cfg),
		Tags:       tags,
		Accounting: accounting,
	}
}

// New builds the whole application from the loaded config
func New() (*App, error) {
	if err := MakeLogger(viper.GetString("app.log_level")); err != nil {
		return nil, fmt.Errorf("failed to create logger, %w", err)
	}

	if rt := util.ContainerRuntime(); rt != "" {
		zap.L().Info("Running inside a container", zap.String("runtime", rt))
	}

	database, err := db.New(viper.GetString("db.driver"), viper.GetString("db.dsn"))
	if err != nil {
		return nil, err
	}

	storage, err := newStorage(viper.GetString("storage.type"))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{cancel: cancel, stopRL: make(chan struct{})}

	hub := notify.NewHub(0)
	var notifier notify.Notifier = hub

	if url := viper.GetString("redis.url"); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to parse redis.url, %w", err)
		}

		app.redis = redis.NewClient(opts)
		if err := app.redis.Ping(ctx).Err(); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to connect to redis, %w", err)
		}

		rn := notify.NewRedisNotifier(app.redis, viper.GetString("redis.channel"), hub)
		go rn.Run(ctx)

		notifier = rn
		zap.L().Info("Sharing events through redis", zap.String("channel", viper.GetString("redis.channel")))
	}

	app.Deps = NewDeps(database, storage, hub, notifier, service.FileServiceConfig{
		MaxUploadSize: config.MaxUploadSize(),
		AllowedTypes:  config.AllowedTypes(),
		URLTTL:        viper.GetDuration("storage.presign_ttl"),
	})

	app.auth = middleware.NewAuth(app.Deps.Store, viper.GetString("security.jwt_secret"))

	var limiter *middleware.RateLimiter
	if rps := viper.GetInt("security.rate_limit"); rps > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{RequestsPerSecond: rps, Burst: rps * 2})
		go limiter.Run(app.stopRL)
	}

	app.Router = NewRouter(app.Deps, RouterConfig{
		Auth:            app.auth,
		Limiter:         limiter,
		CORSOrigins:     config.CORSOrigins(),
		TurnstileSecret: viper.GetString("security.turnstile_secret"),
	})

	cleanup := service.NewExpiredCleanup(app.Deps.Access, app.Deps.Store, app.Deps.Storage, app.Deps.Notifier)
	app.cron, err = cleanup.Schedule(viper.GetString("cleanup.schedule"))
	if err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

func newStorage(kind string) (service.ObjectStore, error) {
	switch kind {
	case "s3":
		return a.NewS3()
	case "r2":
		return cloudflare.NewR2()
	default:
		return nil, fmt.Errorf("unsupported storage type %q", kind)
	}
}

// Close stops the background jobs and releases every connection
func (app *App) Close() error {
	if app.stopped {
		return nil
	}
	app.stopped = true

	var errs []error

	if app.cron != nil {
		<-app.cron.Stop().Done()
	}

	close(app.stopRL)
	app.cancel()

	if app.Deps != nil {
		app.Deps.Hub.Close()

		if sqlDB, err := app.Deps.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}

	if app.auth != nil {
		errs = append(errs, app.auth.Close())
	}

	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}

	return errors.Join(errs...)
}
