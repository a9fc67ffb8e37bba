package surge

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	xerrors "HealthForce-Goa/internal/errors"
	"HealthForce-Goa/pkg/logger"
)

// DefaultZone 是未指定区域时分析的区域。
const DefaultZone = "Mumbai-West"

// Service 负责运行的创建、查询与审批。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
	now        func() time.Time
}

// NewService 构造运行服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries, now: time.Now}
}

// Submit 创建一个新的运行并推送到队列。currentTime 为空时由流水线取执行时刻。
func (s *Service) Submit(ctx context.Context, zone, currentTime string) (*Run, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "运行服务未初始化")
	}
	zone = strings.TrimSpace(zone)
	if zone == "" {
		zone = DefaultZone
	}
	if len(zone) > 128 {
		return nil, xerrors.New(CodeValidation, "location_zone 过长")
	}
	currentTime = strings.TrimSpace(currentTime)
	if len(currentTime) > 64 {
		return nil, xerrors.New(CodeValidation, "current_time 过长")
	}

	run := &Run{
		ID:           NewRunID(),
		LocationZone: zone,
		CurrentTime:  currentTime,
		Status:       StatusPending,
		Progress:     "Queued",
		MaxRetries:   s.maxRetries,
	}
	if err := s.store.Create(ctx, run); err != nil {
		return nil, err
	}
	if err := s.producer.Publish(ctx, run.ID); err != nil {
		logger.L().Error("运行入队失败", slog.Any("error", err), slog.String("run_id", run.ID))
		wrapped := xerrors.Wrap(CodePublish, err, "发布运行到队列失败", xerrors.WithField("run_id", run.ID))
		if markErr := s.store.MarkFailed(ctx, run.ID, CodePublish, wrapped.Error(), true); markErr != nil {
			logger.L().Warn("标记运行失败状态失败", slog.Any("error", markErr), slog.String("run_id", run.ID))
		}
		return nil, wrapped
	}
	logger.Audit().Info("浪涌分析入队",
		slog.String("run_id", run.ID),
		slog.String("location_zone", run.LocationZone),
		slog.Int("max_retries", run.MaxRetries),
	)
	return run, nil
}

// Get 返回指定运行的状态。
func (s *Service) Get(ctx context.Context, id string) (*Run, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "运行存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 按提交顺序返回全部运行。
func (s *Service) List(ctx context.Context) ([]*Run, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "运行存储未初始化")
	}
	return s.store.List(ctx, ListOptions{Order: OldestFirst})
}

// Approve 记录对已完成运行的审批，运行不存在返回 ErrRunNotFound，未完成返回 ErrRunNotCompleted。
func (s *Service) Approve(ctx context.Context, runID string, approved bool, modifiedPlan *string) (*Approval, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusCompleted {
		return nil, ErrRunNotCompleted
	}
	approval := Approval{
		RunID:        run.ID,
		Approved:     approved,
		ModifiedPlan: modifiedPlan,
		DecidedAt:    s.now().UnixMilli(),
	}
	if err := s.store.RecordApproval(ctx, approval); err != nil {
		return nil, err
	}
	attrs := []any{
		slog.String("run_id", run.ID),
		slog.Bool("approved", approved),
	}
	if modifiedPlan != nil {
		attrs = append(attrs, slog.String("modified_plan", *modifiedPlan))
	}
	logger.Audit().Info("审批浪涌方案", attrs...)
	return &approval, nil
}

// LatestCompleted 返回区域内最近创建的已完成运行，没有时返回 ErrRunNotFound。
func (s *Service) LatestCompleted(ctx context.Context, zone string) (*Run, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "运行存储未初始化")
	}
	runs, err := s.store.List(ctx, ListOptions{
		Zone:     zone,
		Statuses: []Status{StatusCompleted},
		Limit:    1,
		Order:    NewestFirst,
	})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return runs[0], nil
}

// Resume 重新投递仍处于 pending 的运行，进程重启后调用。
func (s *Service) Resume(ctx context.Context) (int, error) {
	if s.store == nil || s.producer == nil {
		return 0, xerrors.New(xerrors.CodeInitializationFailure, "运行服务未初始化")
	}
	runs, err := s.store.List(ctx, ListOptions{Statuses: []Status{StatusPending}})
	if err != nil {
		return 0, err
	}
	for i, run := range runs {
		if err := s.producer.Publish(ctx, run.ID); err != nil {
			return i, xerrors.Wrap(CodePublish, err, "重新投递运行失败", xerrors.WithField("run_id", run.ID))
		}
	}
	if len(runs) > 0 {
		logger.L().Info("已恢复待处理运行", slog.Int("count", len(runs)))
	}
	return len(runs), nil
}

// WaitUntilDone 轮询直到运行结束或 ctx 结束。
func (s *Service) WaitUntilDone(ctx context.Context, id string, interval time.Duration) (*Run, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 释放资源。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}
