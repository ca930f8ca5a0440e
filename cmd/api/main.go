package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/captcha"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/config"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/gate"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/password"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/router"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/security"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/session"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-community-gate/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/verification"
	"github.com/ovaphlow/pitchfork/service-community-gate/pkg/database"
	"github.com/ovaphlow/pitchfork/service-community-gate/pkg/messaging"
	"github.com/ovaphlow/pitchfork/service-community-gate/pkg/utilities"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, lg)
	if err != nil {
		lg.Sugar().Errorw("service stopped", "err", err)
	}
	_ = lg.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run owns every opened resource; it returns instead of exiting so the
// closers always run.
func run(cfg *config.Config, lg *zap.Logger) error {
	sugar := lg.Sugar()
	sugar.Infow("starting service-community-gate", "env", cfg.Env, "store", cfg.StoreDriver, "rate_backend", cfg.RateBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				sugar.Warnw("close failed", "err", err)
			}
		}
	}()

	ids := utilities.NewIDGenerator(cfg.SnowflakeNode)
	store, closeStore, err := openStore(ctx, cfg, ids.Next)
	if err != nil {
		return fmt.Errorf("user store: %w", err)
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	limiterStore, err := openRateStore(ctx, cfg, sugar, &closers)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	mailer, err := openMailer(cfg, sugar, &closers)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}

	events := security.NewRecorder(lg)
	issuer := session.NewIssuer(cfg.JWTSecret, cfg.SessionTTL)
	cookies := session.Cookies{Secure: cfg.Production()}
	captchaCookies := captcha.Cookies{Secure: cfg.Production(), TTL: cfg.CaptchaTTL}

	svc := user.NewService(store, password.BcryptHasher{Cost: cfg.PasswordCost}, mailer, events, sugar, user.Options{
		Secret:           cfg.JWTSecret,
		VerificationTTL:  cfg.VerificationTTL,
		MaxLoginAttempts: cfg.MaxLoginAttempts,
		LockDuration:     cfg.LockDuration,
	})
	handler := router.New(router.Deps{
		Logger:  sugar,
		Gate:    gate.New(gate.DefaultPolicy(cfg.Production()), issuer, cookies, events, sugar),
		Captcha: captcha.NewHandler(captcha.NewEngine(cfg.JWTSecret), captchaCookies, sugar),
		Users: user.NewHandler(user.HandlerDeps{
			Service:         svc,
			Limiter:         ratelimit.New(limiterStore),
			Limits:          user.Limits{Login: cfg.LoginLimit, Register: cfg.RegisterLimit},
			Issuer:          issuer,
			Cookies:         cookies,
			CaptchaCookies:  captchaCookies,
			CSRFRegisterTTL: cfg.CSRFRegisterTTL,
			Events:          events,
			Logger:          sugar,
		}),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv, sugar)
}

// serve runs srv until ctx is done or the listener fails, then shuts down.
func serve(ctx context.Context, srv *http.Server, logger *zap.SugaredLogger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Infow("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		logger.Warnf("http server shutdown failed: %v", err)
	}

	logger.Info("goodbye")
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func openStore(ctx context.Context, cfg *config.Config, nextID func() string) (userrepo.Store, io.Closer, error) {
	switch cfg.StoreDriver {
	case "postgres":
		dbCfg := database.DefaultConfig(cfg.DatabaseURL)
		dbCfg.TimeZone = cfg.DatabaseTimeZone
		db, err := database.Connect(ctx, dbCfg)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, db.DB); err != nil {
			db.Close()
			return nil, nil, err
		}
		return userrepo.NewUserRepo(db, nextID), db, nil
	case "mongo":
		client, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		store := userrepo.NewMongoStore(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, closerFunc(func() error { return client.Disconnect(context.Background()) }), nil
	default:
		return userrepo.NewMemoryStore(nextID), nil, nil
	}
}

func openRateStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, closers *[]io.Closer) (ratelimit.Store, error) {
	if cfg.RateBackend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		*closers = append(*closers, client)
		return ratelimit.NewRedisStore(client, ""), nil
	}
	mem := ratelimit.NewMemoryStore()
	go mem.RunJanitor(ctx, time.Minute)
	logger.Warn("using in-memory rate limiter; counters are per instance")
	return mem, nil
}

func openMailer(cfg *config.Config, logger *zap.SugaredLogger, closers *[]io.Closer) (verification.Mailer, error) {
	if cfg.MailDriver == "amqp" {
		p, err := messaging.NewProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, p)
		return verification.NewQueueMailer(cfg.AppURL, cfg.VerificationTTL, p), nil
	}
	return verification.LogMailer{AppURL: cfg.AppURL, TTL: cfg.VerificationTTL, Logger: logger}, nil
}
