package surge

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "HealthForce-Goa/internal/errors"
)

// Status 表示分析运行在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValidStatus 检查状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Result 是流水线输出的 JSON 对象，按 agent 输出名分键。
type Result map[string]any

// Forecast 返回结果中的 forecast 段，没有时返回 nil。
func (r Result) Forecast() map[string]any {
	if r == nil {
		return nil
	}
	forecast, _ := r["forecast"].(map[string]any)
	return forecast
}

func cloneResult(r Result) Result {
	if r == nil {
		return nil
	}
	// 结果只含 JSON 值，走一遍编解码得到深拷贝。
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var out Result
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// Run 描述一次排队执行的浪涌分析。
type Run struct {
	ID           string `json:"run_id"`
	LocationZone string `json:"location_zone"`
	// CurrentTime 是调用方固定的分析时间，空串表示使用提交时刻。
	CurrentTime string `json:"current_time,omitempty"`
	Status      Status `json:"status"`
	Progress    string `json:"progress,omitempty"`
	Result      Result `json:"result,omitempty"`
	LastError   string `json:"error,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	Attempts    int    `json:"attempts"`
	MaxRetries  int    `json:"max_retries"`
	// CreatedAt/UpdatedAt 为 Unix 毫秒。
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// CreatedTime 返回创建时间。
func (r *Run) CreatedTime() time.Time {
	return time.UnixMilli(r.CreatedAt).UTC()
}

func cloneRun(run *Run) *Run {
	clone := *run
	clone.Result = cloneResult(run.Result)
	return &clone
}

// Approval 记录运维人员对编排结果的审批。
type Approval struct {
	RunID        string  `json:"run_id"`
	Approved     bool    `json:"approved"`
	ModifiedPlan *string `json:"modified_plan,omitempty"`
	DecidedAt    int64   `json:"decided_at"`
}

// NewRunID 生成形如 SURGE-1A2B3C4D 的运行编号。
func NewRunID() string {
	return "SURGE-" + shortHex()
}

// NewDemoID 生成形如 DEMO-1A2B3C4D 的预约编号。
func NewDemoID() string {
	return "DEMO-" + shortHex()
}

func shortHex() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

const (
	CodeRunNotFound     xerrors.Code = "SURGE_RUN_NOT_FOUND"
	CodeRunNotCompleted xerrors.Code = "SURGE_RUN_NOT_COMPLETED"
	CodeRunConflict     xerrors.Code = "SURGE_RUN_CONFLICT"
	CodeRunExhausted    xerrors.Code = "SURGE_RUN_RETRIES_EXHAUSTED"
	CodeValidation      xerrors.Code = "SURGE_VALIDATION_FAILED"
	CodePublish         xerrors.Code = "SURGE_PUBLISH_FAILED"
	CodePipeline        xerrors.Code = "SURGE_PIPELINE_FAILED"
)

var (
	// ErrRunNotFound 表示指定的运行不存在。
	ErrRunNotFound = xerrors.New(CodeRunNotFound, "Run not found")
	// ErrRunNotCompleted 表示运行尚未完成，不能审批。
	ErrRunNotCompleted = xerrors.New(CodeRunNotCompleted, "Run not yet completed")
	// ErrRunConflict 表示运行在当前状态下无法进行所请求的操作。
	ErrRunConflict = xerrors.New(CodeRunConflict, "run conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrRunExhausted 表示重试次数已经耗尽。
	ErrRunExhausted = xerrors.New(CodeRunExhausted, "run retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

func init() {
	xerrors.Register(CodeRunNotFound, xerrors.Attributes{
		Message:  "Run not found",
		Severity: xerrors.SeverityInfo,
		Status:   http.StatusNotFound,
	})
	xerrors.Register(CodeRunNotCompleted, xerrors.Attributes{
		Message:  "Run not yet completed",
		Severity: xerrors.SeverityInfo,
		Status:   http.StatusBadRequest,
	})
	xerrors.Register(CodeRunConflict, xerrors.Attributes{
		Message:  "run conflict",
		Severity: xerrors.SeverityWarning,
		Status:   http.StatusConflict,
	})
	xerrors.Register(CodeRunExhausted, xerrors.Attributes{
		Message:  "run retries exhausted",
		Severity: xerrors.SeverityCritical,
	})
	xerrors.Register(CodeValidation, xerrors.Attributes{
		Message:  "surge request validation failed",
		Severity: xerrors.SeverityInfo,
		Status:   http.StatusUnprocessableEntity,
	})
	xerrors.Register(CodePublish, xerrors.Attributes{
		Message:   "failed to publish surge run",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Status:    http.StatusServiceUnavailable,
	})
	xerrors.Register(CodePipeline, xerrors.Attributes{
		Message:   "surge pipeline failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}
