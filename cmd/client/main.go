package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/digitalt3/lms-client/api"
	"github.com/digitalt3/lms-client/app"
	"github.com/digitalt3/lms-client/auth"
	"github.com/digitalt3/lms-client/auth/pgauth"
	"github.com/digitalt3/lms-client/config"
	"github.com/digitalt3/lms-client/core/checkout"
	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/data/pgdata"
	"github.com/digitalt3/lms-client/database"
	"github.com/digitalt3/lms-client/localstore"
	"github.com/digitalt3/lms-client/notify"
	"github.com/digitalt3/lms-client/rate"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	const prefix = "LMS"
	var cfg config.Config
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	lvl, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logger.SetLevel(lvl)
	if cfg.Log.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger.Infof("starting client")
	defer logger.Info("shutdown complete")

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	local, err := localstore.OpenSQLite(cfg.Local.Path)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer local.Close()

	var (
		db data.Client
		ac auth.Client
	)
	if cfg.Demo.Enabled {
		logger.Warn("demo mode: data and accounts live in memory")
		db, ac = demo(cfg.Demo)
	} else {
		sqldb, err := database.Open(cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to open db connection: %w", err)
		}
		defer sqldb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = database.StatusCheck(ctx, sqldb)
		cancel()
		if err != nil {
			return fmt.Errorf("db not ready: %w", err)
		}

		if cfg.DB.Migrate {
			if err := database.Migrate(sqldb); err != nil {
				return fmt.Errorf("migrating db: %w", err)
			}
		}

		db = pgdata.New(sqldb)
		ac = pgauth.New(sqldb, local, cfg.Auth.SessionTTL)
	}

	limiter := rate.NewLimiter(cfg.Auth.LoginBurst, cfg.Auth.LoginInterval, cfg.Auth.LoginExpiry)
	defer limiter.Close()

	notices := notify.NewQueue(cfg.Checkout.NoticeQueue)

	a := app.New(app.Config{
		DB:          db,
		Auth:        ac,
		Local:       local,
		Payer:       checkout.NewSimulator(),
		Coupons:     checkout.DefaultCoupons(),
		Limiter:     limiter,
		Log:         logger,
		Notifier:    notify.Fanout{notify.NewLog(logger), notices},
		SyncTimeout: cfg.Checkout.SyncTimeout,
	})
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Checkout.SyncTimeout)
	err = a.Start(ctx)
	cancel()
	if err != nil {
		logger.WithError(err).Warn("starting signed out")
	}

	mux := api.APIMux(api.APIConfig{
		CorsOrigin: cfg.Cors.Origin,
		Log:        logger,
		App:        a,
		Notices:    notices,
	})

	srv := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}
	return nil
}
