// cmd/advisor-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"decision-advisor/internal/common/aws"
	"decision-advisor/internal/common/config"
	"decision-advisor/internal/common/database"
	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/common/observability"
	"decision-advisor/internal/engine/classifier"
	"decision-advisor/internal/engine/conversation"
	"decision-advisor/internal/engine/followup"
	"decision-advisor/internal/engine/gateway"
	"decision-advisor/internal/engine/synthesis"
	"decision-advisor/internal/entitlement"
	"decision-advisor/internal/notify"
	"decision-advisor/internal/store"
	at "decision-advisor/internal/workers/decision/advance-turn"
	sr "decision-advisor/internal/workers/decision/synthesize-recommendation"
	"decision-advisor/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting advisor manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("advisor-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeClient zbc.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Notification channels ---
	var sesClient notify.SESService
	if cfg.Notifications.Email.Enabled {
		client, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Error("SES client init failed, email channel disabled", zap.Error(err))
		} else {
			sesClient = client
		}
	}

	var snsClient notify.SNSService
	if cfg.Notifications.SMS.Enabled {
		client, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Error("SNS client init failed, SMS channel disabled", zap.Error(err))
		} else {
			snsClient = client
		}
	}

	notifier := notify.New(
		cfg.Notifications,
		pg.DB,
		sesClient,
		snsClient,
		notify.NewESIndexer(esClient.Client),
		cfg.Database.Elasticsearch.AuditIndex,
		log,
	)

	// --- Decision engine wiring ---
	gw := gateway.New(cfg.Providers, log)
	cls := classifier.New(
		gw,
		classifier.NewRedisCache(redisClient.Client),
		time.Duration(cfg.Engine.ClassificationTTL)*time.Second,
		log,
	)
	gen := followup.New(gw, log)
	synth := synthesis.New(gw, cfg.Engine.ConsensusEnabled, log)
	sessions := store.NewPostgresStore(pg.DB, log)
	machine := conversation.New(cls, gen, synth, sessions, cfg.Engine, log)

	checker := entitlement.NewChecker(
		pg.DB,
		redisClient.Client,
		time.Duration(cfg.Engine.EntitlementCacheTTL)*time.Second,
		log,
	)

	// --- Activity registry sanity check ---
	if reg, err := registry.LoadRegistry("configs/activity-registry.json"); err != nil {
		zapLog.Warn("activity registry not loaded", zap.Error(err))
	} else {
		for _, taskType := range []string{at.TaskType, sr.TaskType} {
			if _, ok := reg.FindByTaskType(taskType); !ok {
				zapLog.Warn("task type missing from activity registry", zap.String("taskType", taskType))
			}
		}
	}

	// --- Register workers ---
	atCfg := config.GetWorkerConfig(cfg, at.TaskType)
	if atCfg.Enabled {
		handler := at.NewHandler(
			&at.Config{
				Timeout:    config.GetDuration(atCfg.Timeout),
				MaxRetries: atCfg.MaxRetries,
			},
			machine, checker, sessions, notifier, log,
		)
		startWorker(zeebeClient, at.TaskType, atCfg, handler.Handle, zapLog)
	}

	srCfg := config.GetWorkerConfig(cfg, sr.TaskType)
	if srCfg.Enabled {
		handler := sr.NewHandler(
			&sr.Config{
				Timeout:    config.GetDuration(srCfg.Timeout),
				MaxRetries: srCfg.MaxRetries,
			},
			machine, checker, sessions, notifier, log,
		)
		startWorker(zeebeClient, sr.TaskType, srCfg, handler.Handle, zapLog)
	}

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Advisor manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}
