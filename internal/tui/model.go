package tui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"HealthForce-Goa/internal/navigation"
	"HealthForce-Goa/pkg/logger"
	"HealthForce-Goa/sdk/go/healthforce"
)

const (
	// narrowWidth 以下导航栏折叠为移动菜单。
	narrowWidth = 80
	// lineHeight 把终端行数换算为滚动偏移。
	lineHeight          = 8
	defaultPollInterval = time.Second
)

// Model 是 bubbletea 的根模型。导航状态保存在 Controller 里，各页面的请求结果
// 只保存在对应页面的视图状态中。
type Model struct {
	nav          *navigation.Controller
	gateway      Gateway
	req          *tracker
	keys         keyMap
	log          *slog.Logger
	zone         string
	pollInterval time.Duration

	width      int
	height     int
	offset     int
	menuCursor int

	home   homeView
	impact impactView
	login  loginView
	demo   demoView
}

// Option 定义可选配置。
type Option func(*Model)

// WithZone 指定分析与查询使用的区域。
func WithZone(zone string) Option {
	return func(m *Model) {
		if zone = strings.TrimSpace(zone); zone != "" {
			m.zone = zone
		}
	}
}

// WithPollInterval 设置运行状态的轮询间隔。
func WithPollInterval(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.log = l
		}
	}
}

// New 构造界面模型。ctx 结束时所有进行中的请求随之取消。
func New(ctx context.Context, nav *navigation.Controller, gateway Gateway, opts ...Option) Model {
	m := Model{
		nav:          nav,
		gateway:      gateway,
		req:          newTracker(ctx),
		keys:         newKeyMap(),
		zone:         healthforce.DefaultLocationZone,
		pollInterval: defaultPollInterval,
		width:        narrowWidth,
		login:        newLoginView(),
		demo:         newDemoView(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	if m.nav == nil {
		m.nav = navigation.New()
	}
	if m.log == nil {
		m.log = logger.Named("tui")
	}
	return m
}

// NavChangedMsg 由 Controller 的订阅者发送，通知界面重绘。
type NavChangedMsg navigation.State

// Init 在程序启动时执行，起始页需要数据时发出请求。
func (m Model) Init() tea.Cmd {
	return m.enterPage(m.nav.State().Page)
}

// Update 处理一条消息。
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// 变宽后移动菜单不再显示，不能继续拦截按键。
		if !m.narrow() && m.nav.State().MobileMenuOpen {
			m.nav.ToggleMobileMenu()
		}
		return m, nil
	case NavChangedMsg:
		return m, nil
	case tea.MouseMsg:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.scroll(-3)
		case tea.MouseButtonWheelDown:
			m.scroll(3)
		}
		return m, nil
	case responseMsg:
		return m.handleResponse(msg)
	case pollMsg:
		return m.handlePoll(msg)
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		m.req.stop()
		return m, tea.Quit
	}
	state := m.nav.State()

	if form := m.activeForm(state.Page); form != nil && form.editing() {
		return m.updateForm(state.Page, msg)
	}
	if state.MobileMenuOpen {
		return m.updateMobileMenu(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.req.stop()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Menu):
		if m.narrow() {
			m.menuCursor = 0
			m.nav.ToggleMobileMenu()
		}
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.scroll(m.pageSize())
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.scroll(1)
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.scroll(-m.pageSize())
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.scroll(-1)
		return m, nil
	case key.Matches(msg, m.keys.Pages):
		entries := navigation.MenuEntries()
		if idx := pageIndex(msg.String()); idx >= 0 && idx < len(entries) {
			return m.navigate(entries[idx].Page)
		}
		return m, nil
	}
	return m.updatePage(state, msg)
}

func (m Model) updateMobileMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	entries := navigation.MenuEntries()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.menuCursor < len(entries)-1 {
			m.menuCursor++
		}
	case key.Matches(msg, m.keys.Select):
		return m.navigate(entries[m.menuCursor].Page)
	case key.Matches(msg, m.keys.Menu), key.Matches(msg, m.keys.Close):
		m.nav.ToggleMobileMenu()
	case key.Matches(msg, m.keys.Quit):
		m.req.stop()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updatePage(state navigation.State, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch state.Page {
	case navigation.PageHome:
		if key.Matches(msg, m.keys.Run) {
			return m.startSurge()
		}
	case navigation.PageImpact:
		if key.Matches(msg, m.keys.Refresh) {
			cmd := m.fetchImpact()
			return m, cmd
		}
	case navigation.PageLogin:
		switch {
		case key.Matches(msg, m.keys.PrevRole):
			m.cycleRole(-1)
		case key.Matches(msg, m.keys.NextRole):
			m.cycleRole(1)
		case key.Matches(msg, m.keys.Edit):
			return m, m.login.form.focusAt(0)
		}
	case navigation.PageDemo:
		if key.Matches(msg, m.keys.Edit) {
			return m, m.demo.form.focusAt(0)
		}
	}
	return m, nil
}

// navigate 切换页面，滚动位置回到顶部。
func (m Model) navigate(p navigation.Page) (tea.Model, tea.Cmd) {
	before := m.nav.State().Page
	m.nav.SetPage(p)
	m.offset = 0
	m.nav.ObserveScroll(0)
	m.login.form.blur()
	m.demo.form.blur()

	after := m.nav.State().Page
	if after == before {
		return m, nil
	}
	m.log.Debug("切换页面", slog.String("from", before.String()), slog.String("to", after.String()))
	m.leavePage(before)
	cmd := m.enterPage(after)
	return m, cmd
}

// pageSlots 列出每个页面发出的请求，离开页面时一并作废。
var pageSlots = map[navigation.Page][]slot{
	navigation.PageHome:   {slotSurge, slotStatus},
	navigation.PageImpact: {slotForecast, slotInventory},
	navigation.PageLogin:  {slotLogin, slotDashboard},
	navigation.PageDemo:   {slotDemo},
}

// leavePage 丢弃 p 上仍在进行的请求，之后到达的响应不会再写入视图。
func (m *Model) leavePage(p navigation.Page) {
	for _, s := range pageSlots[p] {
		m.req.invalidate(s)
	}
	switch p {
	case navigation.PageHome:
		m.home.loading = false
	case navigation.PageLogin:
		m.login.loading = false
	case navigation.PageDemo:
		m.demo.loading = false
	}
}

// enterPage 返回进入页面时需要发出的请求。回到首页时继续轮询未结束的运行。
func (m *Model) enterPage(p navigation.Page) tea.Cmd {
	if m.gateway == nil {
		return nil
	}
	switch p {
	case navigation.PageHome:
		if m.home.runID == "" || (m.home.status != nil && m.home.status.Done()) {
			return nil
		}
		m.home.loading = true
		return m.fetchStatus(m.home.runID)
	case navigation.PageImpact:
		return m.fetchImpact()
	}
	return nil
}

func (m *Model) fetchImpact() tea.Cmd {
	if m.gateway == nil {
		return nil
	}
	gw, zone := m.gateway, m.zone
	m.impact.err = ""
	return tea.Batch(
		m.req.call(slotForecast, func(ctx context.Context) (any, error) {
			return gw.GetForecast(ctx, zone)
		}),
		m.req.call(slotInventory, func(ctx context.Context) (any, error) {
			return gw.GetInventory(ctx, zone)
		}),
	)
}

func (m *Model) cycleRole(delta int) {
	roles := navigation.Roles()
	current := m.nav.State().ActiveRole
	idx := 0
	for i, r := range roles {
		if r == current {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(roles)) % len(roles)
	if m.nav.SetActiveRoleTab(roles[idx]) {
		m.login.reset()
		m.req.invalidate(slotLogin)
		m.req.invalidate(slotDashboard)
	}
}

func (m *Model) scroll(delta int) {
	limit := strings.Count(m.body(m.nav.State()), "\n")
	m.offset = max(0, min(m.offset+delta, limit))
	m.nav.ObserveScroll(float64(m.offset * lineHeight))
}

func (m Model) pageSize() int {
	if m.height > 4 {
		return m.height - 4
	}
	return 10
}

func (m Model) narrow() bool {
	return m.width < narrowWidth
}

func (m Model) handleResponse(msg responseMsg) (tea.Model, tea.Cmd) {
	if !m.req.current(msg.slot, msg.seq) {
		m.log.Debug("丢弃过期响应", slog.String("slot", string(msg.slot)), slog.Uint64("seq", msg.seq))
		return m, nil
	}
	m.req.finish(msg.slot, msg.seq)

	switch msg.slot {
	case slotSurge:
		return m.onSurgeStarted(msg)
	case slotStatus:
		return m.onSurgeStatus(msg)
	case slotForecast, slotInventory:
		m.onImpactData(msg)
	case slotLogin:
		return m.onLogin(msg)
	case slotDashboard:
		m.onDashboard(msg)
	case slotDemo:
		m.onDemoBooked(msg)
	}
	return m, nil
}
