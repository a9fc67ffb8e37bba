package surge

import (
	"context"

	xerrors "HealthForce-Goa/internal/errors"
)

// Store 抽象了运行状态的持久化接口。
type Store interface {
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	// Claim 将待处理的运行置为 running 并累加尝试次数。
	Claim(ctx context.Context, id string) (*Run, error)
	UpdateProgress(ctx context.Context, id string, progress string) error
	MarkCompleted(ctx context.Context, id string, result Result) error
	// MarkFailed 在 terminal 为 false 时把运行放回 pending 等待重试。
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Run, error)
	RecordApproval(ctx context.Context, approval Approval) error
	Close() error
}

// SortOrder 决定列表的排序方式。
type SortOrder int

const (
	// OldestFirst 按创建时间升序，与提交顺序一致。
	OldestFirst SortOrder = iota
	// NewestFirst 按创建时间降序。
	NewestFirst
)

// ListOptions 控制列表查询。
type ListOptions struct {
	Zone     string
	Statuses []Status
	// Limit 为 0 表示不限制。
	Limit int
	Order SortOrder
}

func (o ListOptions) matches(run *Run) bool {
	if o.Zone != "" && run.LocationZone != o.Zone {
		return false
	}
	if len(o.Statuses) == 0 {
		return true
	}
	for _, status := range o.Statuses {
		if run.Status == status {
			return true
		}
	}
	return false
}
