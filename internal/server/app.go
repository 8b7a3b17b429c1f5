// Package server wires the auth core together and runs its HTTP and gRPC
// listeners until the process is told to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/cardflow/internal/cryptox"
	"github.com/dmitrijs2005/cardflow/internal/dbx"
	"github.com/dmitrijs2005/cardflow/internal/logging"
	"github.com/dmitrijs2005/cardflow/internal/server/auth"
	"github.com/dmitrijs2005/cardflow/internal/server/challenges"
	"github.com/dmitrijs2005/cardflow/internal/server/config"
	"github.com/dmitrijs2005/cardflow/internal/server/credentials"
	"github.com/dmitrijs2005/cardflow/internal/server/httpapi"
	"github.com/dmitrijs2005/cardflow/internal/server/mailer"
	"github.com/dmitrijs2005/cardflow/internal/server/metrics"
	"github.com/dmitrijs2005/cardflow/internal/server/probes"
	"github.com/dmitrijs2005/cardflow/internal/server/ratelimit"
	"github.com/dmitrijs2005/cardflow/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cardflow/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/cardflow/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	rdb     *redis.Client
	mail    *mailer.AsyncMailer
	metrics *metrics.Metrics
	service *services.AuthService
	probes  probes.Set
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogLevel)

	codec, err := cryptox.NewCodec(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("redis init error: %w", err)
	}

	m := metrics.New()

	smtp := mailer.SMTPConfig{
		Host:        c.SMTPHost,
		Port:        c.SMTPPort,
		User:        c.SMTPUser,
		Password:    c.SMTPPassword,
		From:        c.EmailFrom,
		FrontendURL: c.FrontendURL,
	}
	mail := mailer.NewAsyncMailer(mailer.New(smtp, logger), logger, m, mailer.DefaultSendTimeout)

	svc := services.NewAuthService(services.Dependencies{
		DB:         db,
		Tx:         dbx.NewTransactor(db, nil),
		Repos:      rm,
		Codec:      codec,
		Hasher:     credentials.NewBcryptHasher(c.BcryptCost),
		Challenges: challenges.NewRedisStore(rdb),
		Mailer:     mail,
		Issuer:     auth.NewIssuer(c.JWTSecret, c.JWTRefreshSecret, services.AccessTokenTTL, services.RefreshTokenTTL),
		Logger:     logger,
		Metrics:    m,
	})

	return &App{
		config:  c,
		logger:  logger,
		db:      db,
		rdb:     rdb,
		mail:    mail,
		metrics: m,
		service: svc,
		probes: probes.Set{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := httpapi.NewServer(httpapi.Options{
		Address:         app.config.HTTPAddr,
		TrustedProxies:  app.config.TrustedProxies,
		Auth:            app.service,
		Limiter:         ratelimit.NewLimiter(app.rdb),
		Probes:          app.probes,
		Metrics:         app.metrics,
		Logger:          app.logger,
		ShutdownTimeout: app.config.ShutdownTimeout,
	})
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.probes, app.config.HealthCheckInterval)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.logger.Info(ctx, "Waiting for outgoing mail...")
	app.mail.Wait()

	if err := app.rdb.Close(); err != nil {
		app.logger.Error(ctx, "redis close", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
}
