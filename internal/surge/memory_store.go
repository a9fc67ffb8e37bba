package surge

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "HealthForce-Goa/internal/errors"
)

// MemoryStore 以内存方式保存运行状态，本地模拟后端默认使用它。
type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]*Run
	order     []string
	approvals map[string][]Approval
	now       func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[string]*Run),
		approvals: make(map[string][]Approval),
		now:       time.Now,
	}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, run *Run) error {
	if run == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "run 不能为空")
	}
	if strings.TrimSpace(run.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "运行 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return ErrRunConflict
	}
	now := m.now().UnixMilli()
	if run.CreatedAt == 0 {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = StatusPending
	}
	m.runs[run.ID] = cloneRun(run)
	m.order = append(m.order, run.ID)
	return nil
}

// Get 返回运行记录的副本。
func (m *MemoryStore) Get(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return cloneRun(run), nil
}

// Claim 将运行状态更新为 running。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	switch run.Status {
	case StatusCompleted, StatusFailed:
		return cloneRun(run), ErrRunConflict
	case StatusRunning:
		return cloneRun(run), ErrRunConflict
	}
	if run.MaxRetries > 0 && run.Attempts >= run.MaxRetries {
		return cloneRun(run), ErrRunExhausted
	}
	run.Status = StatusRunning
	run.Attempts++
	run.Progress = "Initializing agents..."
	run.UpdatedAt = m.now().UnixMilli()
	return cloneRun(run), nil
}

// UpdateProgress 记录当前阶段。
func (m *MemoryStore) UpdateProgress(_ context.Context, id string, progress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if run.Status != StatusRunning {
		return ErrRunConflict
	}
	run.Progress = progress
	run.UpdatedAt = m.now().UnixMilli()
	return nil
}

// MarkCompleted 记录成功结果。
func (m *MemoryStore) MarkCompleted(_ context.Context, id string, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	run.Status = StatusCompleted
	run.Result = cloneResult(result)
	run.Progress = "Analysis complete"
	run.LastError = ""
	run.ErrorCode = ""
	run.UpdatedAt = m.now().UnixMilli()
	return nil
}

// MarkFailed 标记运行失败或退回待重试。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if terminal {
		run.Status = StatusFailed
	} else {
		run.Status = StatusPending
		run.Progress = "Retrying..."
	}
	run.LastError = lastError
	run.ErrorCode = string(code)
	run.UpdatedAt = m.now().UnixMilli()
	return nil
}

// List 返回符合条件的运行。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Run, 0, len(m.runs))
	for _, id := range m.order {
		if run := m.runs[id]; opts.matches(run) {
			results = append(results, cloneRun(run))
		}
	}
	sortRuns(results, opts.Order)
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// RecordApproval 保存审批记录。
func (m *MemoryStore) RecordApproval(_ context.Context, approval Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[approval.RunID]; !ok {
		return ErrRunNotFound
	}
	if approval.DecidedAt == 0 {
		approval.DecidedAt = m.now().UnixMilli()
	}
	m.approvals[approval.RunID] = append(m.approvals[approval.RunID], approval)
	return nil
}

// Approvals 返回某次运行的审批历史。
func (m *MemoryStore) Approvals(runID string) []Approval {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Approval(nil), m.approvals[runID]...)
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// sortRuns 假定 runs 已按提交顺序排列，创建时间相同的运行保持提交顺序。
func sortRuns(runs []*Run, order SortOrder) {
	if order == NewestFirst {
		for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
			runs[i], runs[j] = runs[j], runs[i]
		}
		sort.SliceStable(runs, func(i, j int) bool {
			return runs[i].CreatedAt > runs[j].CreatedAt
		})
		return
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt < runs[j].CreatedAt
	})
}

var _ Store = (*MemoryStore)(nil)
