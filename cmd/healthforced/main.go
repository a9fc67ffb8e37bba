package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"HealthForce-Goa/internal/api"
	"HealthForce-Goa/internal/config"
	"HealthForce-Goa/internal/observability/alerting"
	"HealthForce-Goa/internal/observability/metrics"
	sqlstore "HealthForce-Goa/internal/storage/mysql"
	redisstore "HealthForce-Goa/internal/storage/redis"
	"HealthForce-Goa/internal/surge"
	"HealthForce-Goa/pkg/logger"
)

// main 是 HealthForce 模拟后端的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("healthforced 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, path, err := config.Resolve()
	if err != nil {
		return err
	}
	if cfg.Log.Service == "" {
		cfg.Log.Service = "healthforced"
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	if path != "" {
		logger.L().Info("已加载配置", slog.String("path", path))
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	queue, err := openQueue(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return err
	}

	service := surge.NewService(store, queue, cfg.Surge.MaxRetries)
	defer func() {
		if err := service.Close(); err != nil {
			logger.L().Warn("关闭运行服务失败", slog.Any("error", err))
		}
	}()

	pipeline := surge.NewSimulatedPipeline(time.Duration(cfg.Surge.StepDelayMillis) * time.Millisecond)
	processorOpts := []surge.ProcessorOption{surge.WithWorkerCount(cfg.Queue.Workers)}
	if cfg.Alerting.Enabled {
		processorOpts = append(processorOpts, surge.WithAlerts(newAlerts(cfg.Alerting)))
	}
	processor := surge.NewProcessor(pipeline, store, queue, queue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("运行处理器异常退出", slog.Any("error", err))
		}
	}()
	defer func() { <-processorDone }()

	if n, err := service.Resume(ctx); err != nil {
		logger.L().Warn("恢复待处理运行失败", slog.Any("error", err), slog.Int("resumed", n))
	}

	opts := []api.Option{api.WithAllowedOrigins(cfg.Server.AllowedOrigins)}
	if cfg.Metrics.Enabled {
		recorder := metrics.NewRecorder()
		if cfg.Metrics.Address != "" {
			opts = append(opts, api.WithMetrics(recorder, ""))
			go func() {
				if err := recorder.StartServer(ctx, cfg.Metrics.Address, cfg.Metrics.Path); err != nil && !errors.Is(err, context.Canceled) {
					logger.L().Error("指标服务异常退出", slog.Any("error", err))
				}
			}()
		} else {
			opts = append(opts, api.WithMetrics(recorder, cfg.Metrics.Path))
		}
	}

	server := api.NewServer(service, opts...)
	shutdown := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if err := server.Start(ctx, cfg.Server.Address, shutdown); err != nil && !errors.Is(err, context.Canceled) {
		processorCancel()
		return err
	}
	processorCancel()
	return nil
}

func newAlerts(cfg config.AlertingConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    cfg.WebhookURL,
			Client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		})
	}
	return alerting.NewFanout(notifiers...)
}

func openStore(ctx context.Context, cfg *config.Config) (surge.Store, error) {
	rs := cfg.Storage.RunStore
	switch rs.Driver {
	case "", "memory":
		return surge.NewMemoryStore(), nil
	case "mysql":
		return surge.NewMySQLStore(ctx, sqlstore.Config{
			DSN:             rs.DSN,
			MaxOpenConns:    rs.MaxOpenConns,
			MaxIdleConns:    rs.MaxIdleConns,
			ConnMaxLifetime: time.Duration(rs.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(rs.ConnMaxIdleTimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的运行存储驱动: %s", rs.Driver)
	}
}

func openQueue(ctx context.Context, cfg *config.Config) (surge.Queue, error) {
	q := cfg.Queue
	switch q.Driver {
	case "", "memory":
		return surge.NewMemoryQueue(q.Size), nil
	case "redis":
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Address:  q.Redis.Address,
			Password: q.Redis.Password,
			DB:       q.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		return surge.NewRedisQueue(client, surge.RedisQueueConfig{
			Queue:     q.Redis.Queue,
			BlockWait: time.Duration(q.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return surge.NewRabbitMQQueue(surge.RabbitMQConfig{
			URL:        q.RabbitMQ.URL,
			Queue:      q.RabbitMQ.Queue,
			Prefetch:   q.RabbitMQ.Prefetch,
			Durable:    q.RabbitMQ.Durable,
			AutoDelete: q.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", q.Driver)
	}
}
