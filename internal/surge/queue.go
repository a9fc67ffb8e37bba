package surge

import (
	"context"
	stdErrors "errors"
	"sync"
)

// Handler 处理来自队列的运行 ID。
type Handler func(ctx context.Context, runID string) error

// Producer 负责向队列投递运行。
type Producer interface {
	Publish(ctx context.Context, runID string) error
	Close() error
}

// Consumer 负责从队列中消费运行。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// delivery 是从队列取出的一条运行。settle 按处理结果确认或退回消息，可为空。
type delivery struct {
	runID  string
	settle func(ctx context.Context, runID string, handlerErr error)
}

// fetchFunc 阻塞取出下一条消息，ok 为 false 表示本轮没有消息。
type fetchFunc func(ctx context.Context) (d delivery, ok bool, err error)

// errSourceClosed 表示队列被主动关闭，消费正常结束。
var errSourceClosed = stdErrors.New("queue source closed")

// consume 在 workers 个协程中循环 fetch 并调用 handler。
// ctx 结束返回 ctx.Err()，队列关闭返回 nil，fetch 出错则停止全部 worker 并返回该错误。
func consume(ctx context.Context, workers int, fetch fetchFunc, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				d, ok, err := fetch(ctx)
				if err != nil {
					if ctx.Err() == nil {
						errCh <- err
					}
					return
				}
				if !ok {
					continue
				}
				handlerErr := handler(ctx, d.runID)
				if d.settle != nil {
					d.settle(ctx, d.runID, handlerErr)
				}
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}
	cancel()
	wg.Wait()
	if stdErrors.Is(err, errSourceClosed) {
		return nil
	}
	return err
}
