package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sowells/pay-webapp/internal/config"
	"github.com/sowells/pay-webapp/internal/database"
	"github.com/sowells/pay-webapp/internal/handler"
	"github.com/sowells/pay-webapp/internal/lock"
	"github.com/sowells/pay-webapp/internal/middleware"
	"github.com/sowells/pay-webapp/internal/queue"
	"github.com/sowells/pay-webapp/internal/repository"
	"github.com/sowells/pay-webapp/internal/router"
	"github.com/sowells/pay-webapp/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file, using process environment")
	}
	cfg := config.Load()
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	opts := []service.Option{}
	rc := config.LoadRedisConfig()
	rdb := config.NewRedisClient(rc)
	if rdb != nil {
		defer rdb.Close()
		opts = append(opts, service.WithLocker(lock.NewRedisLocker(rdb, rc.LockTTL)))
	}
	if cfg.EventsOn {
		opts = append(opts, service.WithPublisher(queue.NewPublisher(cfg.RabbitURL)))
	}
	gifts := service.NewGiftService(store, cfg.Gift, opts...)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(requestLogger())
	router.RegisterRoutes(e)
	router.RegisterGift(e, handler.NewGiftHandler(gifts), cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: e}
	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logrus.WithFields(logrus.Fields{"addr": srv.Addr, "env": cfg.Env, "driver": cfg.DBDriver}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-gctx.Done()
		logrus.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.EventsOn {
		eg.Go(func() error {
			return queue.NewConsumer(cfg.RabbitURL).Run(gctx)
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Fatal("server stopped with error")
	}
	logrus.Info("server exited")
}

// openStore connects to the configured backend, migrates it and returns
// the store with its close function.
func openStore(ctx context.Context, cfg config.Config) (repository.OrderStore, func()) {
	switch cfg.DBDriver {
	case "mysql":
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			logrus.WithError(err).Fatal("connect mysql")
		}
		if err := database.MigrateMySQL(ctx, db); err != nil {
			logrus.WithError(err).Fatal("migrate mysql")
		}
		return repository.NewGiftRepo(db), func() { _ = db.Close() }
	case "postgres":
		pool, err := database.OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			logrus.WithError(err).Fatal("connect postgres")
		}
		if err := database.MigratePostgres(ctx, pool); err != nil {
			logrus.WithError(err).Fatal("migrate postgres")
		}
		return repository.NewPgGiftRepo(pool), pool.Close
	default:
		logrus.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), func() {}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := logrus.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}
