package surge

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "HealthForce-Goa/internal/errors"
	"HealthForce-Goa/internal/observability/alerting"
	"HealthForce-Goa/pkg/logger"
)

// Processor 负责从队列消费运行并交给流水线执行。
type Processor struct {
	pipeline    Pipeline
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerts      alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithAlerts 在运行最终失败时发送告警。
func WithAlerts(d alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerts = d
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(pipeline Pipeline, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		pipeline:    pipeline,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("surge.processor")
	}
	return p
}

// Start 启动处理循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置运行消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, runID string) error {
	if p.store == nil || p.pipeline == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	run, err := p.store.Claim(ctx, runID)
	if err != nil {
		if stdErrors.Is(err, ErrRunNotFound) || stdErrors.Is(err, ErrRunConflict) {
			p.logger.Debug("跳过运行", slog.String("run_id", runID), slog.String("reason", err.Error()))
			return nil
		}
		if stdErrors.Is(err, ErrRunExhausted) {
			// 重试次数耗尽但仍为 pending，说明上次回写失败，这里直接终止。
			if markErr := p.store.MarkFailed(ctx, runID, CodeRunExhausted, err.Error(), true); markErr != nil {
				p.logger.Error("终止运行失败", slog.Any("error", markErr), slog.String("run_id", runID))
				return nil
			}
			if run != nil {
				p.alert(ctx, run, CodeRunExhausted, err)
			}
			return nil
		}
		p.logger.Error("领取运行失败", slog.Any("error", err), slog.String("run_id", runID))
		return err
	}

	result, runErr := p.pipeline.Run(ctx, Request{
		RunID:        run.ID,
		LocationZone: run.LocationZone,
		CurrentTime:  run.CurrentTime,
	}, func(progress string) {
		if err := p.store.UpdateProgress(ctx, run.ID, progress); err != nil {
			p.logger.Warn("更新进度失败", slog.Any("error", err), slog.String("run_id", run.ID))
		}
	})
	if runErr != nil {
		if ctx.Err() != nil {
			// 进程退出。
			return p.release(context.WithoutCancel(ctx), run, runErr)
		}
		return p.handleFailure(ctx, run, runErr)
	}

	if err := p.store.MarkCompleted(ctx, run.ID, result); err != nil {
		p.logger.Error("标记运行完成失败", slog.Any("error", err), slog.String("run_id", run.ID))
		return p.handleFailure(ctx, run, xerrors.Wrap(CodePipeline, err, "写入运行结果失败"))
	}
	logger.Audit().Info("浪涌分析完成",
		slog.String("run_id", run.ID),
		slog.String("location_zone", run.LocationZone),
		slog.Int("attempts", run.Attempts),
	)
	return nil
}

func (p *Processor) handleFailure(ctx context.Context, run *Run, runErr error) error {
	code := xerrors.CodeOf(runErr)
	if code == xerrors.CodeUnknown {
		code = CodePipeline
	}
	retryable := xerrors.IsRetryable(runErr) || code == CodePipeline
	terminal := !retryable || (run.MaxRetries > 0 && run.Attempts >= run.MaxRetries)

	if err := p.store.MarkFailed(ctx, run.ID, code, runErr.Error(), terminal); err != nil {
		p.logger.Error("标记运行失败状态出错", slog.Any("error", err), slog.String("run_id", run.ID))
		return err
	}
	logger.Audit().Warn("浪涌分析失败",
		slog.String("run_id", run.ID),
		slog.String("location_zone", run.LocationZone),
		slog.Bool("terminal", terminal),
		slog.String("error", runErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", run.Attempts),
		slog.Int("max_retries", run.MaxRetries),
	)
	if terminal {
		p.alert(ctx, run, code, runErr)
		return nil
	}
	if p.producer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置运行生产者")
	}
	if err := p.producer.Publish(ctx, run.ID); err != nil {
		return xerrors.Wrap(CodePublish, err, fmt.Sprintf("运行 %s 重投失败", run.ID), xerrors.WithField("run_id", run.ID))
	}
	p.logger.Debug("运行已重新排队", slog.String("run_id", run.ID), slog.Int("attempts", run.Attempts))
	return nil
}

// release 把被中断的运行退回 pending，由 Service.Resume 在下次启动时重新投递。
func (p *Processor) release(ctx context.Context, run *Run, cause error) error {
	if err := p.store.MarkFailed(ctx, run.ID, CodePipeline, cause.Error(), false); err != nil {
		p.logger.Error("退回运行失败", slog.Any("error", err), slog.String("run_id", run.ID))
		return err
	}
	p.logger.Info("运行被中断，等待重新调度", slog.String("run_id", run.ID))
	return nil
}

func (p *Processor) alert(ctx context.Context, run *Run, code xerrors.Code, cause error) {
	if p.alerts == nil {
		return
	}
	severity := xerrors.SeverityOf(cause)
	if severity != xerrors.SeverityCritical {
		severity = xerrors.AttributesOf(code).Severity
	}
	event := alerting.Event{
		Code:         code,
		Message:      cause.Error(),
		Severity:     severity,
		RunID:        run.ID,
		LocationZone: run.LocationZone,
		Attempts:     run.Attempts,
		MaxRetries:   run.MaxRetries,
		Metadata:     xerrors.FieldsOf(cause),
		OccurredAt:   time.Now().UTC(),
	}
	if err := p.alerts.Notify(ctx, event); err != nil {
		p.logger.Warn("发送告警失败", slog.Any("error", err), slog.String("run_id", run.ID))
	}
}
