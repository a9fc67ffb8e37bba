package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"HealthForce-Goa/internal/navigation"
	"HealthForce-Goa/pkg/logger"
	"HealthForce-Goa/sdk/go/healthforce"
)

type fakeGateway struct {
	mu          sync.Mutex
	statusCalls int
	// pendingPolls 是返回 completed 之前返回 running 的次数。
	pendingPolls int
	runs         int
	logins       []string
	demos        []healthforce.DemoRequest
	forecasts    int
}

func (f *fakeGateway) RunSurge(ctx context.Context, _ ...healthforce.SurgeOption) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return healthforce.SurgeRun{RunID: "SURGE-0000000" + string(rune('0'+f.runs)), Status: "pending"}, nil
}

func (f *fakeGateway) GetSurgeStatus(_ context.Context, runID string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	progress := "Running Doctor Agent..."
	if f.statusCalls <= f.pendingPolls {
		return healthforce.SurgeStatus{RunID: runID, Status: healthforce.RunRunning, Progress: &progress}, nil
	}
	done := "Analysis complete"
	return healthforce.SurgeStatus{
		RunID:    runID,
		Status:   healthforce.RunCompleted,
		Progress: &done,
		Result: map[string]any{
			"messages":       []any{"Doctor: Predicted 420 patients."},
			"final_decision": map[string]any{"approved": true, "risk_level": "medium"},
		},
	}, nil
}

func (f *fakeGateway) GetForecast(_ context.Context, zone string) (any, error) {
	f.mu.Lock()
	f.forecasts++
	f.mu.Unlock()
	return healthforce.Forecast{
		Zone:   zone,
		Source: "simulated",
		Forecast: &healthforce.SurgeForecast{
			Zone:              zone,
			PredictedPatients: 420,
			SeverityBreakdown: map[string]int{"mild": 280, "moderate": 100, "severe": 40},
			Confidence:        0.85,
		},
	}, nil
}

func (f *fakeGateway) GetInventory(_ context.Context, zone string) (any, error) {
	return healthforce.Inventory{
		Zone:      zone,
		Inventory: []healthforce.InventoryItem{{ID: "med_1", Name: "Salbutamol Inhaler", Stock: 40, MinLevel: 100}},
		Roster:    healthforce.Roster{DoctorsOnCall: 5, NursesOnCall: 12},
	}, nil
}

func (f *fakeGateway) Login(_ context.Context, role, identifier, _ string) (any, error) {
	f.mu.Lock()
	f.logins = append(f.logins, role+":"+identifier)
	f.mu.Unlock()
	token := "TOKEN-abc"
	return healthforce.LoginResult{Success: true, Token: &token, Role: role, Message: "Successfully logged in as " + role}, nil
}

func (f *fakeGateway) GetDashboardData(_ context.Context, role string) (any, error) {
	if role != "pharmacy" {
		return nil, &healthforce.Error{Message: "Invalid role", StatusCode: 400, Code: healthforce.CodeHTTPStatus}
	}
	return healthforce.Dashboard{
		Alerts: []healthforce.Alert{{Type: "warning", Message: "Paracetamol stock below safety buffer (15%)."}},
		Stats:  map[string]any{"pending_orders": 2},
	}, nil
}

func (f *fakeGateway) BookDemo(_ context.Context, demo any) (any, error) {
	req, _ := demo.(healthforce.DemoRequest)
	f.mu.Lock()
	f.demos = append(f.demos, req)
	f.mu.Unlock()
	return healthforce.DemoBooking{Success: true, DemoID: "DEMO-1234ABCD", Message: "Demo scheduled successfully for " + req.FirstName + " " + req.LastName}, nil
}

func newTestModel(t *testing.T, width int) (Model, *fakeGateway) {
	t.Helper()
	logger.Discard()
	gw := &fakeGateway{}
	m := New(context.Background(), navigation.New(), gw, WithPollInterval(time.Millisecond))
	m = apply(t, m, tea.WindowSizeMsg{Width: width, Height: 40})
	return m, gw
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// apply 处理一条消息并同步执行其产生的全部命令。
func apply(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	got, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return drain(t, got, cmd, 0)
}

func drain(t *testing.T, m Model, cmd tea.Cmd, depth int) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	if depth > 32 {
		t.Fatal("command chain exceeded max depth")
	}
	msg := cmd()
	switch msg := msg.(type) {
	case nil:
		return m
	case tea.BatchMsg:
		for _, c := range msg {
			m = drain(t, m, c, depth+1)
		}
		return m
	}
	next, nextCmd := m.Update(msg)
	return drain(t, next.(Model), nextCmd, depth+1)
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		m = apply(t, m, keyMsg(k))
	}
	return m
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m = apply(t, m, keyMsg(string(r)))
	}
	return m
}

func TestNumberKeysNavigate(t *testing.T) {
	m, _ := newTestModel(t, 120)

	m = press(t, m, "2")
	if got := m.nav.State().Page; got != navigation.PageAgents {
		t.Fatalf("page = %s, want agents", got)
	}
	m = press(t, m, "6")
	if got := m.nav.State().Page; got != navigation.PageDemo {
		t.Fatalf("page = %s, want demo", got)
	}
	if !strings.Contains(m.View(), "Book a Demo") {
		t.Fatalf("demo page not rendered:\n%s", m.View())
	}
}

func TestMobileMenuNavigatesAndCloses(t *testing.T) {
	m, _ := newTestModel(t, 60)

	m = press(t, m, "m")
	if !m.nav.State().MobileMenuOpen {
		t.Fatal("menu should be open")
	}
	if !strings.Contains(m.View(), "Architecture") {
		t.Fatalf("menu entries missing:\n%s", m.View())
	}
	m = press(t, m, "down", "down", "enter")
	state := m.nav.State()
	if state.Page != navigation.PageArchitecture || state.MobileMenuOpen {
		t.Fatalf("state = %+v", state)
	}
}

func TestMenuKeyIgnoredOnWideTerminal(t *testing.T) {
	m, _ := newTestModel(t, 120)
	m = press(t, m, "m")
	if m.nav.State().MobileMenuOpen {
		t.Fatal("wide layout must not open the mobile menu")
	}
}

func TestScrollUpdatesNavbarState(t *testing.T) {
	m, _ := newTestModel(t, 120)
	m = press(t, m, "3")

	m = press(t, m, "j", "j")
	if m.nav.State().Scrolled {
		t.Fatal("two rows should stay under the threshold")
	}
	m = press(t, m, "j")
	if !m.nav.State().Scrolled {
		t.Fatal("three rows should cross the threshold")
	}
	m = press(t, m, "k", "k", "k")
	if m.nav.State().Scrolled {
		t.Fatal("scrolling back to the top should reset the navbar")
	}
}

func TestRunSurgePollsUntilDone(t *testing.T) {
	m, gw := newTestModel(t, 120)
	gw.pendingPolls = 2

	m = press(t, m, "r")
	if m.home.status == nil || !m.home.status.Done() {
		t.Fatalf("status = %+v", m.home.status)
	}
	if gw.statusCalls != 3 {
		t.Fatalf("status calls = %d, want 3", gw.statusCalls)
	}
	view := m.View()
	if !strings.Contains(view, "Doctor: Predicted 420 patients.") || !strings.Contains(view, "approved=true") {
		t.Fatalf("summary missing:\n%s", view)
	}
}

func TestStaleSurgeResponseIgnored(t *testing.T) {
	m, gw := newTestModel(t, 120)

	next, first := m.Update(keyMsg("r"))
	m = next.(Model)
	next, second := m.Update(keyMsg("r"))
	m = next.(Model)

	// 第一个请求已被第二个取消，它的结果不能覆盖当前视图。
	staleMsg := first()
	next, _ = m.Update(staleMsg)
	m = next.(Model)
	if m.home.runID != "" {
		t.Fatalf("stale response applied: run %q", m.home.runID)
	}

	m = drain(t, m, second, 0)
	if m.home.runID == "" || m.home.status == nil {
		t.Fatalf("latest response not applied: %+v", m.home)
	}
	if gw.runs != 2 {
		t.Fatalf("runs = %d", gw.runs)
	}
}

func TestImpactPageFetchesOnEntry(t *testing.T) {
	m, gw := newTestModel(t, 120)

	m = press(t, m, "4")
	if m.impact.forecast == nil || m.impact.inventory == nil {
		t.Fatalf("impact data missing: %+v", m.impact)
	}
	if gw.forecasts != 1 {
		t.Fatalf("forecast calls = %d", gw.forecasts)
	}
	view := m.View()
	if !strings.Contains(view, "420 patients") || !strings.Contains(view, "below minimum") {
		t.Fatalf("impact view:\n%s", view)
	}

	m = press(t, m, "4")
	if gw.forecasts != 1 {
		t.Fatal("re-selecting the current page must not refetch")
	}
	m = press(t, m, "r")
	if gw.forecasts != 2 {
		t.Fatalf("refresh calls = %d", gw.forecasts)
	}
}

func TestLoginFlowLoadsDashboard(t *testing.T) {
	m, gw := newTestModel(t, 120)

	m = press(t, m, "5", "right")
	if m.nav.State().ActiveRole != navigation.RolePharmacy {
		t.Fatalf("role = %s", m.nav.State().ActiveRole)
	}
	m = press(t, m, "enter")
	m = typeText(t, m, "ops@clinic")
	m = press(t, m, "tab")
	m = typeText(t, m, "secret")
	if strings.Contains(m.View(), "secret") {
		t.Fatal("password rendered in clear text")
	}
	m = press(t, m, "enter")

	if len(gw.logins) != 1 || gw.logins[0] != "pharmacy:ops@clinic" {
		t.Fatalf("logins = %v", gw.logins)
	}
	if m.login.dashboard == nil {
		t.Fatalf("dashboard not loaded, err=%q", m.login.err)
	}
	if !strings.Contains(m.View(), "Successfully logged in as pharmacy") {
		t.Fatalf("login view:\n%s", m.View())
	}
}

func TestLoginShowsGatewayError(t *testing.T) {
	m, _ := newTestModel(t, 120)

	m = press(t, m, "5", "enter")
	m = typeText(t, m, "admin")
	m = press(t, m, "tab")
	m = typeText(t, m, "pw")
	m = press(t, m, "enter")

	if m.login.err != "Invalid role" {
		t.Fatalf("err = %q", m.login.err)
	}
}

func TestDemoFormValidatesBeforeCalling(t *testing.T) {
	m, gw := newTestModel(t, 120)

	m = press(t, m, "6", "enter")
	m = typeText(t, m, "Asha")
	m = press(t, m, "enter")
	if len(gw.demos) != 0 {
		t.Fatal("incomplete form must not be sent")
	}
	if m.demo.err != "Last name is required" || m.demo.form.focus != demoLastName {
		t.Fatalf("err=%q focus=%d", m.demo.err, m.demo.form.focus)
	}

	m = typeText(t, m, "Naik")
	m = press(t, m, "tab")
	m = typeText(t, m, "asha@example.org")
	m = press(t, m, "tab")
	m = typeText(t, m, "hospital")
	m = press(t, m, "enter")

	if len(gw.demos) != 1 || gw.demos[0].Email != "asha@example.org" {
		t.Fatalf("demos = %+v", gw.demos)
	}
	if m.demo.booking == nil || !strings.Contains(m.View(), "DEMO-1234ABCD") {
		t.Fatalf("booking not shown:\n%s", m.View())
	}
}

func TestTypingDoesNotNavigate(t *testing.T) {
	m, _ := newTestModel(t, 120)

	m = press(t, m, "6", "enter")
	m = typeText(t, m, "123 q")
	if got := m.nav.State().Page; got != navigation.PageDemo {
		t.Fatalf("page = %s", got)
	}
	if got := m.demo.form.inputs[demoFirstName].Value(); got != "123 q" {
		t.Fatalf("field = %q", got)
	}
	m = press(t, m, "esc", "1")
	if got := m.nav.State().Page; got != navigation.PageHome {
		t.Fatalf("page after esc = %s", got)
	}
}

func TestTrackerDropsSupersededRequests(t *testing.T) {
	tr := newTracker(context.Background())
	ctx1, seq1 := tr.begin(slotLogin)
	_, seq2 := tr.begin(slotLogin)

	if ctx1.Err() == nil {
		t.Fatal("first request should be cancelled")
	}
	if tr.current(slotLogin, seq1) || !tr.current(slotLogin, seq2) {
		t.Fatalf("current: seq1=%v seq2=%v", tr.current(slotLogin, seq1), tr.current(slotLogin, seq2))
	}
	tr.invalidate(slotLogin)
	if tr.current(slotLogin, seq2) {
		t.Fatal("invalidate should retire the latest request")
	}
}

func TestLeavingPageDropsPendingLogin(t *testing.T) {
	m, gw := newTestModel(t, 120)

	m = press(t, m, "5", "enter")
	m = typeText(t, m, "a@b.c")
	m = press(t, m, "tab")
	m = typeText(t, m, "pw")
	next, pending := m.Update(keyMsg("enter"))
	m = next.(Model)
	if !m.login.loading || pending == nil {
		t.Fatal("submit should start a login request")
	}

	m = press(t, m, "1")
	m = drain(t, m, pending, 0)

	if len(gw.logins) != 1 {
		t.Fatalf("logins = %v", gw.logins)
	}
	if m.login.result != nil || m.login.dashboard != nil {
		t.Fatalf("response applied after leaving the page: %+v", m.login.result)
	}
	if m.login.loading {
		t.Fatal("leaving the page should clear the loading flag")
	}
}

func TestReturningHomeResumesPolling(t *testing.T) {
	m, gw := newTestModel(t, 120)
	gw.pendingPolls = 2

	next, cmd := m.Update(keyMsg("r"))
	m = next.(Model)
	next, cmd = m.Update(cmd())
	m = next.(Model)
	next, poll := m.Update(cmd())
	m = next.(Model)
	if m.home.status == nil || m.home.status.Done() {
		t.Fatalf("status = %+v", m.home.status)
	}

	m = press(t, m, "2")
	m = apply(t, m, poll())
	if gw.statusCalls != 1 {
		t.Fatalf("poll after leaving should be dropped, status calls = %d", gw.statusCalls)
	}

	m = press(t, m, "1")
	if m.home.status == nil || !m.home.status.Done() {
		t.Fatalf("status after return = %+v", m.home.status)
	}
	if gw.statusCalls != 3 {
		t.Fatalf("status calls = %d, want 3", gw.statusCalls)
	}
}

func TestWideningTerminalClosesMobileMenu(t *testing.T) {
	m, _ := newTestModel(t, 60)

	m = press(t, m, "m")
	if !m.nav.State().MobileMenuOpen {
		t.Fatal("menu should be open")
	}
	m = apply(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	if m.nav.State().MobileMenuOpen {
		t.Fatal("menu should close once the navbar fits")
	}

	m = press(t, m, "4")
	state := m.nav.State()
	if state.Page != navigation.PageImpact || state.MobileMenuOpen {
		t.Fatalf("state = %+v", state)
	}
}

func TestPasswordFieldIsMasked(t *testing.T) {
	m, _ := newTestModel(t, 120)

	m = press(t, m, "5", "enter", "tab")
	m = typeText(t, m, "secret")
	if got := m.login.form.inputs[loginPassword].Value(); got != "secret" {
		t.Fatalf("password = %q", got)
	}
	view := m.View()
	if strings.Contains(view, "secret") || !strings.Contains(view, "••••••") {
		t.Fatalf("password not masked:\n%s", view)
	}
	m = press(t, m, "shift+tab")
	if m.login.form.focus != loginIdentifier {
		t.Fatalf("focus = %d", m.login.form.focus)
	}
}

func TestHelpFollowsKeyMap(t *testing.T) {
	m, _ := newTestModel(t, 120)

	m = press(t, m, "5")
	help := m.help(m.nav.State())
	for _, want := range []string{"1-6 pages", "→ next role", "enter fill form"} {
		if !strings.Contains(help, want) {
			t.Fatalf("help %q missing %q", help, want)
		}
	}
	m = press(t, m, "enter")
	if help := m.help(m.nav.State()); !strings.Contains(help, "tab next field") {
		t.Fatalf("editing help = %q", help)
	}
}
