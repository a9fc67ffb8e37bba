package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"HealthForce-Goa/sdk/go/healthforce"
)

// Gateway 是界面用到的客户端操作，*healthforce.Client 满足该接口。
type Gateway interface {
	RunSurge(ctx context.Context, opts ...healthforce.SurgeOption) (any, error)
	GetSurgeStatus(ctx context.Context, runID string) (any, error)
	GetForecast(ctx context.Context, zone string) (any, error)
	GetInventory(ctx context.Context, zone string) (any, error)
	Login(ctx context.Context, role, identifier, password string) (any, error)
	GetDashboardData(ctx context.Context, role string) (any, error)
	BookDemo(ctx context.Context, demo any) (any, error)
}

var _ Gateway = (*healthforce.Client)(nil)

// slot 标识一类互斥的请求，同一 slot 只保留最新的一个。
type slot string

const (
	slotSurge     slot = "surge"
	slotStatus    slot = "surge_status"
	slotForecast  slot = "forecast"
	slotInventory slot = "inventory"
	slotLogin     slot = "login"
	slotDashboard slot = "dashboard"
	slotDemo      slot = "demo"
)

// responseMsg 携带一次网关调用的结果。
type responseMsg struct {
	slot   slot
	seq    uint64
	result any
	err    error
}

// pollMsg 触发下一次状态查询。
type pollMsg struct {
	runID string
	seq   uint64
}

// tracker 记录每个 slot 的最新编号与取消函数。bubbletea 的 Update 是单协程的，
// 这里不需要加锁。
type tracker struct {
	root    context.Context
	seq     map[slot]uint64
	cancels map[slot]context.CancelFunc
}

func newTracker(root context.Context) *tracker {
	if root == nil {
		root = context.Background()
	}
	return &tracker{
		root:    root,
		seq:     make(map[slot]uint64),
		cancels: make(map[slot]context.CancelFunc),
	}
}

// begin 取消 s 上仍在进行的请求并返回新请求的上下文与编号。
func (t *tracker) begin(s slot) (context.Context, uint64) {
	if cancel, ok := t.cancels[s]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(t.root)
	t.seq[s]++
	t.cancels[s] = cancel
	return ctx, t.seq[s]
}

// current 判断响应是否来自 s 上最新的请求。
func (t *tracker) current(s slot, seq uint64) bool {
	return t.seq[s] == seq
}

// finish 释放已完成请求的上下文。
func (t *tracker) finish(s slot, seq uint64) {
	if !t.current(s, seq) {
		return
	}
	if cancel, ok := t.cancels[s]; ok {
		cancel()
		delete(t.cancels, s)
	}
}

// invalidate 丢弃 s 上的请求，用于离开页面或重置表单。
func (t *tracker) invalidate(s slot) {
	if cancel, ok := t.cancels[s]; ok {
		cancel()
		delete(t.cancels, s)
	}
	t.seq[s]++
}

func (t *tracker) stop() {
	for s, cancel := range t.cancels {
		cancel()
		delete(t.cancels, s)
	}
}

// call 把一次网关调用包装成 tea.Cmd。
func (t *tracker) call(s slot, fn func(ctx context.Context) (any, error)) tea.Cmd {
	ctx, seq := t.begin(s)
	return func() tea.Msg {
		result, err := fn(ctx)
		return responseMsg{slot: s, seq: seq, result: result, err: err}
	}
}

func pollAfter(d time.Duration, runID string, seq uint64) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return pollMsg{runID: runID, seq: seq}
	})
}

// errorText 返回适合展示给用户的错误信息。
func errorText(err error) string {
	if apiErr, ok := healthforce.AsError(err); ok {
		return apiErr.Message
	}
	return err.Error()
}
