package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/raksha/internal/location"
	outboxworker "github.com/example/raksha/internal/outbox"
	"github.com/example/raksha/internal/presence"
	"github.com/example/raksha/internal/socket"
	"github.com/example/raksha/internal/sos/dispatch"
	"github.com/example/raksha/internal/sos/domain"
	"github.com/example/raksha/internal/sos/handler"
	"github.com/example/raksha/internal/sos/repository"
	"github.com/example/raksha/pkg/events"
	"github.com/example/raksha/pkg/observability"
)

type appConfig struct {
	HTTPAddr    string
	GRPCAddr    string
	PostgresDSN string
	RedisAddr   string
	NATSURL     string
	JWTSecret   string
	AlertTopic  string
	OutboxPoll  time.Duration
	OutboxBatch int
	OutboxRetry int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("sos-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "sos-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var checks []observability.ReadinessCheck

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()
		checks = append(checks, observability.ReadinessCheck{Name: "postgres", Probe: db.PingContext})
	}

	var users domain.Directory
	var alerts domain.AlertRepository
	if db != nil {
		store := repository.NewPostgresStore(db, cfg.AlertTopic)
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal("postgres migrate", zap.Error(err))
		}
		users = store
		alerts = store
	} else {
		logger.Warn("no POSTGRES_DSN set, using in-memory storage")
		mem := repository.NewMemoryDirectory()
		users = mem
		alerts = repository.NewMemoryAlertRepository()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
		users = repository.NewIndexedDirectory(users, repository.NewRedisGeoIndex(redisClient, ""))
		checks = append(checks, observability.ReadinessCheck{Name: "redis", Probe: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("sosservice")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}
	publisher := events.NewPublisher(natsConn, cfg.AlertTopic)

	registry := presence.NewRegistry()
	dispatcher := dispatch.New(users, alerts, registry, publisher, domain.SystemClock{}, logger.Named("dispatch"))

	sosHTTP := handler.NewHTTP(dispatcher, users, alerts, cfg.JWTSecret, logger.Named("http"))
	ws := socket.NewHandler(registry, users, logger.Named("socket"))

	r := chi.NewRouter()
	r.Mount("/", sosHTTP.Router())
	r.Handle("/ws", ws)
	r.Mount("/observability", observability.MetricsRouter(checks...))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if db != nil && natsConn != nil {
		worker := outboxworker.NewWorker(db, natsConn, logger.Named("outbox"), outboxworker.WorkerConfig{
			PollInterval: cfg.OutboxPoll,
			BatchSize:    cfg.OutboxBatch,
			RetryMax:     cfg.OutboxRetry,
		})
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("outbox worker disabled", zap.Bool("db", db != nil), zap.Bool("nats", natsConn != nil))
	}

	go runGRPC(logger, cfg.GRPCAddr, users)

	go func() {
		logger.Info("sos service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runGRPC(logger *zap.Logger, addr string, users domain.Directory) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}

	srv := grpc.NewServer()
	location.RegisterLocationServer(srv, location.NewServer(users, logger.Named("location")))
	logger.Info("location grpc listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		logger.Fatal("grpc serve", zap.Error(err))
	}
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:    getenv("GRPC_ADDR", ":9090"),
		PostgresDSN: firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		NATSURL:     os.Getenv("NATS_URL"),
		JWTSecret:   getenv("JWT_SECRET", "devsecret"),
		AlertTopic:  getenv("ALERT_TOPIC", events.DefaultSubject),
		OutboxPoll:  time.Duration(parseIntEnv("OUTBOX_POLL_MS", 200)) * time.Millisecond,
		OutboxBatch: parseIntEnv("OUTBOX_BATCH", 100),
		OutboxRetry: parseIntEnv("OUTBOX_RETRY_MAX", 3),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
