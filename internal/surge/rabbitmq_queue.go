package surge

import (
	"context"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "HealthForce-Goa/internal/errors"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 通过默认交换机把运行 ID 投递到同名队列，消费端手动确认。
type RabbitMQQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	closed atomic.Bool
}

// NewRabbitMQQueue 建立连接并声明队列。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	if cfg.Queue == "" {
		cfg.Queue = "healthforce.surge_runs"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	q := &RabbitMQQueue{conn: conn, queue: cfg.Queue}
	if err := q.setup(cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *RabbitMQQueue) setup(cfg RabbitMQConfig) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建 RabbitMQ channel 失败")
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			_ = ch.Close()
			return xerrors.Wrap(xerrors.CodeQueueFailure, err, "设置 RabbitMQ prefetch 失败")
		}
	}
	if _, err := ch.QueueDeclare(cfg.Queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		_ = ch.Close()
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明 RabbitMQ 队列失败", xerrors.WithField("queue", cfg.Queue))
	}
	q.ch = ch
	return nil
}

// Publish 以持久化消息投递运行，MessageId 同样携带运行 ID。
func (q *RabbitMQQueue) Publish(ctx context.Context, runID string) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 队列未初始化")
	}
	err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		MessageId:    runID,
		Timestamp:    time.Now().UTC(),
		AppId:        "healthforced",
		Body:         []byte(runID),
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "RabbitMQ 发布运行失败", xerrors.WithField("run_id", runID))
	}
	return nil
}

// Consume 阻塞消费。可重试的失败 Nack 后重新入队，其余失败直接丢弃；
// broker 断开时返回 QUEUE_FAILURE。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 队列未初始化")
	}
	msgs, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "订阅 RabbitMQ 队列失败")
	}

	fetch := func(ctx context.Context) (delivery, bool, error) {
		select {
		case <-ctx.Done():
			return delivery{}, false, ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if q.closed.Load() {
					return delivery{}, false, errSourceClosed
				}
				return delivery{}, false, xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 投递通道已断开")
			}
			runID := string(msg.Body)
			if runID == "" {
				runID = msg.MessageId
			}
			return delivery{runID: runID, settle: func(_ context.Context, _ string, handlerErr error) {
				if handlerErr == nil {
					_ = msg.Ack(false)
					return
				}
				_ = msg.Nack(false, xerrors.IsRetryable(handlerErr))
			}}, true, nil
		}
	}
	return consume(ctx, workerCount, fetch, handler)
}

// Close 关闭 channel 与连接，可对 nil 调用。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	q.closed.Store(true)
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
