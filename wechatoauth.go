// Package wechatoauth wires the WeChat OAuth client together: credential
// store, remote API client, token manager, session cookies and HTTP routes.
package wechatoauth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Seann-Moser/wechat-oauth/config"
	"github.com/Seann-Moser/wechat-oauth/oauth/ohandler"
	"github.com/Seann-Moser/wechat-oauth/oauth/oclient"
	"github.com/Seann-Moser/wechat-oauth/session"
)

// Service owns the components built from a Config and the connections they
// hold.
type Service struct {
	Manager  *oclient.Manager
	Sessions *session.Client
	Handler  *ohandler.Handler

	logger  *slog.Logger
	closers []func(context.Context) error
}

// New builds a Service. Backend connections are opened here and released by
// Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{logger: logger}

	store, err := s.openStore(ctx, cfg)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}

	remote := oclient.NewHTTPRemote(cfg.AppID, cfg.AppSecret, oclient.HTTPRemoteOptions{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.HTTPTimeout,
		Logger:  logger,
	})
	s.Manager = oclient.NewManager(remote, store, oclient.ManagerOptions{
		AppID:       cfg.AppID,
		MiniProgram: cfg.MiniProgram,
		Logger:      logger,
	})

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		logger.Warn("session_secret is empty, sessions will not survive a restart")
		secret = randomSecret()
	}
	s.Sessions = session.NewClient(secret, cfg.SessionTTL, logger)
	s.Handler = ohandler.NewHandler(s.Manager, s.Sessions, ohandler.Options{
		CallbackPath: cfg.CallbackPath,
		Logger:       logger,
	})
	return s, nil
}

func (s *Service) openStore(ctx context.Context, cfg *config.Config) (oclient.TokenStore, error) {
	key, err := cfg.StoreKeyBytes()
	if err != nil {
		return nil, err
	}
	var sealer *oclient.Sealer
	if key != nil {
		if sealer, err = oclient.NewSealer(key); err != nil {
			return nil, err
		}
	}

	switch cfg.Store {
	case config.StoreMemory, "":
		return oclient.NewMemoryStore(), nil

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		s.closers = append(s.closers, client.Disconnect)
		store := oclient.NewMongoStore(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		s.logger.Info("using mongo token store", "database", cfg.MongoDatabase)
		return store, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s.logger.Info("using redis token store", "addr", cfg.RedisAddr, "sealed", sealer != nil)
		return oclient.NewRedisStore(client, sealer, cfg.TokenTTL), nil

	case config.StoreSQLite:
		db, err := oclient.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, closeDB(db))
		if err := oclient.RunMigrations(db); err != nil {
			return nil, err
		}
		s.logger.Info("using sqlite token store", "path", cfg.SQLitePath, "sealed", sealer != nil)
		return oclient.NewSQLiteStore(db, sealer), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// Routes returns the HTTP surface wrapped in request logging.
func (s *Service) Routes() http.Handler {
	return s.Middleware(s.Handler.Routes())
}

// Middleware logs every request with its status and duration.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// Close releases backend connections.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func closeDB(db *sql.DB) func(context.Context) error {
	return func(context.Context) error { return db.Close() }
}

func randomSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
