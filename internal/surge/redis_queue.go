package surge

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "HealthForce-Goa/internal/errors"
	"HealthForce-Goa/pkg/logger"
)

// RedisQueueConfig 描述 Redis 队列参数，连接由 internal/storage/redis 创建。
type RedisQueueConfig struct {
	Queue string
	// BlockWait 是单次 BRPOP 的阻塞时长，决定 worker 感知退出的最长延迟。
	BlockWait time.Duration
}

// RedisQueue 把运行 ID 存在 Redis list 中，LPUSH 入队、BRPOP 出队。
type RedisQueue struct {
	client *redis.Client
	queue  string
	wait   time.Duration
	log    *slog.Logger
}

// NewRedisQueue 基于已连接的客户端创建队列。
func NewRedisQueue(client *redis.Client, cfg RedisQueueConfig) (*RedisQueue, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "Redis 客户端为空")
	}
	q := &RedisQueue{
		client: client,
		queue:  cfg.Queue,
		wait:   cfg.BlockWait,
		log:    logger.Named("surge.redis_queue"),
	}
	if q.queue == "" {
		q.queue = "healthforce:surge_runs"
	}
	if q.wait <= 0 {
		q.wait = 5 * time.Second
	}
	return q, nil
}

// Publish 把运行推到 list 左端。
func (q *RedisQueue) Publish(ctx context.Context, runID string) error {
	if err := q.client.LPush(ctx, q.queue, runID).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 发布运行失败", xerrors.WithField("run_id", runID))
	}
	return nil
}

// Consume 阻塞消费，直到 ctx 结束、客户端关闭或 Redis 返回错误。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	return consume(ctx, workerCount, q.fetch, handler)
}

func (q *RedisQueue) fetch(ctx context.Context) (delivery, bool, error) {
	values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
	switch {
	case stdErrors.Is(err, redis.Nil):
		return delivery{}, false, nil
	case stdErrors.Is(err, redis.ErrClosed):
		return delivery{}, false, errSourceClosed
	case err != nil:
		return delivery{}, false, xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 取运行失败")
	}
	// BRPOP 返回 [key, value]。
	if len(values) != 2 {
		return delivery{}, false, nil
	}
	return delivery{runID: values[1], settle: q.requeue}, true, nil
}

// requeue 把可重试失败的运行放回 list 右端，下一次 BRPOP 立即取到。
func (q *RedisQueue) requeue(ctx context.Context, runID string, handlerErr error) {
	if handlerErr == nil || ctx.Err() != nil {
		return
	}
	if !xerrors.IsRetryable(handlerErr) {
		q.log.Warn("丢弃不可重试的运行", slog.String("run_id", runID), slog.Any("error", handlerErr))
		return
	}
	if err := q.client.RPush(ctx, q.queue, runID).Err(); err != nil {
		q.log.Error("运行退回队列失败", slog.String("run_id", runID), slog.Any("error", err))
	}
}

// Close 关闭 Redis 连接，正在阻塞的 BRPOP 会随之返回。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
