package surge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "HealthForce-Goa/internal/errors"
)

func TestMemoryQueueDeliversToWorkers(t *testing.T) {
	queue := NewMemoryQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	wg.Add(3)
	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(ctx, 2, func(_ context.Context, id string) error {
			mu.Lock()
			seen[id] = true
			mu.Unlock()
			wg.Done()
			return nil
		})
	}()

	for _, id := range []string{"a", "b", "c"} {
		if err := queue.Publish(ctx, id); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	wg.Wait()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 deliveries, got %v", seen)
	}
}

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := queue.Publish(context.Background(), "a"); xerrors.CodeOf(err) != xerrors.CodeQueueFailure {
		t.Fatalf("expected queue failure, got %v", err)
	}
}

func TestMemoryQueuePublishHonoursContext(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Publish(context.Background(), "a"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := queue.Publish(ctx, "b"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline on full queue, got %v", err)
	}
}

func TestMemoryQueueCloseReleasesBlockedPublish(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Publish(context.Background(), "a"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	published := make(chan error, 1)
	go func() {
		published <- queue.Publish(context.Background(), "b")
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() {
		closed <- queue.Close()
	}()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("close blocked behind a pending publish")
	}
	select {
	case err := <-published:
		if xerrors.CodeOf(err) != xerrors.CodeQueueFailure {
			t.Fatalf("expected queue failure, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after close")
	}
}

func TestBrokerQueuesValidateConfig(t *testing.T) {
	if _, err := NewRedisQueue(nil, RedisQueueConfig{}); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected initialization failure for nil redis client, got %v", err)
	}
	if _, err := NewRabbitMQQueue(RabbitMQConfig{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for empty url, got %v", err)
	}
	var q *RabbitMQQueue
	if err := q.Close(); err != nil {
		t.Fatalf("nil rabbit close: %v", err)
	}
}

func TestRedisQueuePublishWrapsTransportErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	queue, err := NewRedisQueue(client, RedisQueueConfig{})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	defer queue.Close()

	if queue.queue != "healthforce:surge_runs" || queue.wait != 5*time.Second {
		t.Fatalf("unexpected defaults: %s %s", queue.queue, queue.wait)
	}
	err = queue.Publish(context.Background(), "SURGE-1")
	if xerrors.CodeOf(err) != xerrors.CodeQueueFailure {
		t.Fatalf("expected queue failure, got %v", err)
	}
}

func TestMemoryQueueConsumeEndsWhenClosed(t *testing.T) {
	queue := NewMemoryQueue(4)
	if err := queue.Publish(context.Background(), "a"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var handled []string
	err := queue.Consume(context.Background(), 1, func(_ context.Context, id string) error {
		handled = append(handled, id)
		return nil
	})
	if err != nil {
		t.Fatalf("expected clean stop after close, got %v", err)
	}
	if len(handled) != 1 || handled[0] != "a" {
		t.Fatalf("buffered run should still be handled, got %v", handled)
	}
}

func TestConsumeStopsOnFetchError(t *testing.T) {
	boom := xerrors.New(xerrors.CodeQueueFailure, "broker gone")
	var (
		mu      sync.Mutex
		settled []error
		calls   int
	)
	fetch := func(ctx context.Context) (delivery, bool, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		switch calls {
		case 1:
			return delivery{runID: "SURGE-1", settle: func(_ context.Context, _ string, err error) {
				mu.Lock()
				settled = append(settled, err)
				mu.Unlock()
			}}, true, nil
		case 2:
			return delivery{}, false, nil
		default:
			return delivery{}, false, boom
		}
	}
	handlerErr := errors.New("claim failed")
	err := consume(context.Background(), 1, fetch, func(context.Context, string) error { return handlerErr })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if len(settled) != 1 || settled[0] != handlerErr {
		t.Fatalf("expected handler result passed to settle, got %v", settled)
	}
}
