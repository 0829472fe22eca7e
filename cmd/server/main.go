package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"otpguard/internal/audit"
	"otpguard/internal/identity"
	otphandler "otpguard/internal/otp/handler"
	"otpguard/internal/otp/notify"
	otpports "otpguard/internal/otp/ports"
	otpservice "otpguard/internal/otp/service"
	cooldownstore "otpguard/internal/otp/store/cooldown"
	recordstore "otpguard/internal/otp/store/record"
	"otpguard/internal/platform/config"
	"otpguard/internal/platform/httpserver"
	"otpguard/internal/platform/logger"
	"otpguard/internal/platform/metrics"
	platformpg "otpguard/internal/platform/postgres"
	platformredis "otpguard/internal/platform/redis"
	ratelimitmw "otpguard/internal/ratelimit/middleware"
	ratelimitports "otpguard/internal/ratelimit/ports"
	ratelimitsvc "otpguard/internal/ratelimit/service"
	"otpguard/internal/ratelimit/store/bucket"
	httptransport "otpguard/internal/transport/http"
)

const sweepInterval = 5 * time.Minute

// main wires dependencies and owns the process lifecycle. Every backend is
// optional: with no Redis, Postgres, or Kafka configured the service runs on
// in-memory stores, which suits development and single-instance deployments.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	health := map[string]httptransport.HealthChecker{}

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}

	var records otpports.RecordStore
	var cooldowns otpports.CooldownTracker
	var buckets ratelimitports.BucketStore

	var recordPool *pgxpool.Pool
	switch {
	case cfg.Postgres.URL != "":
		recordPool, err = pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer recordPool.Close()
		if err := recordPool.Ping(ctx); err != nil {
			return err
		}
		records = recordstore.NewPostgres(recordPool)
		health["postgres"] = recordPool.Ping
		log.Info("using postgres record store")
	case rdb != nil:
		records = recordstore.NewRedis(rdb.Client)
		log.Info("using redis record store")
	default:
		records = recordstore.NewInMemory()
		log.Info("using in-memory record store")
	}

	if rdb != nil {
		defer rdb.Close()
		cooldowns = cooldownstore.NewRedis(rdb.Client)
		buckets = bucket.NewRedisBucketStore(rdb)
		health["redis"] = rdb.Health
	} else {
		cooldowns = cooldownstore.NewInMemory()
		buckets = bucket.NewInMemoryBucketStore()
	}

	var auditDB *sql.DB
	recorderOpts := []audit.RecorderOption{}
	if cfg.Postgres.URL != "" {
		auditDB, err = platformpg.Open(cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer auditDB.Close()
		recorderOpts = append(recorderOpts, audit.WithStore(audit.NewPostgresStore(auditDB)))
	} else {
		recorderOpts = append(recorderOpts, audit.WithStore(audit.NewMemoryStore()))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, log)
		if err != nil {
			return err
		}
		defer publisher.Close()
		recorderOpts = append(recorderOpts, audit.WithPublisher(publisher))
		log.Info("audit events publishing to kafka", "topic", cfg.Kafka.AuditTopic)
	}

	recorder := audit.NewRecorder(log, recorderOpts...)

	var notifier otpports.Notifier
	if cfg.Dispatch.WebhookURL != "" {
		notifier = notify.NewWebhookSender(cfg.Dispatch.WebhookURL, cfg.Dispatch.Timeout, log)
	} else {
		log.Warn("no dispatch webhook configured, codes will be logged")
		notifier = notify.NewLogSender(log)
	}

	otp, err := otpservice.New(records, cooldowns, notifier, cfg.OTP,
		otpservice.WithLogger(log),
		otpservice.WithMetrics(met),
		otpservice.WithAuditRecorder(recorder),
	)
	if err != nil {
		return err
	}

	limiter, err := ratelimitsvc.New(buckets, cfg.RateLimit, ratelimitsvc.WithLogger(log))
	if err != nil {
		return err
	}
	gateway := ratelimitmw.New(limiter, log,
		ratelimitmw.WithMetrics(met),
		ratelimitmw.WithAuditRecorder(recorder),
		ratelimitmw.WithDisabled(cfg.RateLimit.Disabled),
	)

	verifier := identity.NewJWTVerifier(cfg.JWTSigningKey, "otpguard")

	router := httptransport.NewRouter(httptransport.Deps{
		OTP:      otphandler.New(otp, recorder, log),
		Gateway:  gateway,
		Verifier: verifier,
		Logger:   log,
		Health:   health,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting otpguard", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := otp.SweepExpired(ctx); err != nil {
					log.Warn("expired record sweep failed", "error", err)
				} else if n > 0 {
					log.Debug("swept expired records", "count", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
