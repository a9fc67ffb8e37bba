package surge

import (
	"context"
	"sync"

	xerrors "HealthForce-Goa/internal/errors"
)

// MemoryQueue 使用带缓冲的 channel 投递运行，单进程部署时使用。
// 处理失败的运行不会退回队列，重试由 Processor 重新发布完成。
type MemoryQueue struct {
	runs   chan string
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	// sending 统计正在发送的 Publish，Close 等它们退出后才关闭 runs。
	sending sync.WaitGroup
}

// NewMemoryQueue 创建容量为 size 的内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{runs: make(chan string, size), done: make(chan struct{})}
}

// Publish 投递运行，队列满时阻塞直到 ctx 结束或队列关闭。
func (q *MemoryQueue) Publish(ctx context.Context, runID string) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return errMemoryQueueClosed(runID)
	}
	q.sending.Add(1)
	q.mu.RUnlock()
	defer q.sending.Done()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return errMemoryQueueClosed(runID)
	case q.runs <- runID:
		return nil
	}
}

func errMemoryQueueClosed(runID string) error {
	return xerrors.New(xerrors.CodeQueueFailure, "内存队列已关闭", xerrors.WithField("run_id", runID))
}

// Consume 阻塞消费，直到 ctx 结束或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	return consume(ctx, workerCount, q.fetch, handler)
}

func (q *MemoryQueue) fetch(ctx context.Context) (delivery, bool, error) {
	select {
	case <-ctx.Done():
		return delivery{}, false, ctx.Err()
	case runID, ok := <-q.runs:
		if !ok {
			return delivery{}, false, errSourceClosed
		}
		return delivery{runID: runID}, true, nil
	}
}

// Close 可重复调用。阻塞中的 Publish 立即返回错误。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.sending.Wait()
	close(q.runs)
	return nil
}
