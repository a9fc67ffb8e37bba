package tui

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"HealthForce-Goa/internal/navigation"
	"HealthForce-Goa/sdk/go/healthforce"
)

type homeView struct {
	runID   string
	status  *healthforce.SurgeStatus
	loading bool
	err     string
}

type impactView struct {
	forecast  *healthforce.Forecast
	inventory *healthforce.Inventory
	err       string
}

const (
	loginIdentifier = iota
	loginPassword
)

type loginView struct {
	form      form
	loading   bool
	result    *healthforce.LoginResult
	dashboard *healthforce.Dashboard
	err       string
}

func newLoginView() loginView {
	f := newForm("Identifier", "Password")
	f.mask(loginPassword)
	return loginView{form: f}
}

func (v *loginView) reset() {
	v.form.clear()
	v.loading = false
	v.result = nil
	v.dashboard = nil
	v.err = ""
}

const (
	demoFirstName = iota
	demoLastName
	demoEmail
	demoOrganization
)

type demoView struct {
	form    form
	loading bool
	booking *healthforce.DemoBooking
	err     string
}

func newDemoView() demoView {
	return demoView{form: newForm("First name", "Last name", "Work email", "Organization type")}
}

func (m *Model) activeForm(p navigation.Page) *form {
	switch p {
	case navigation.PageLogin:
		return &m.login.form
	case navigation.PageDemo:
		return &m.demo.form
	}
	return nil
}

func (m Model) updateForm(p navigation.Page, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := m.activeForm(p)
	action, cmd := f.update(msg, m.keys.Form)
	if action != formSubmit {
		return m, cmd
	}
	switch p {
	case navigation.PageLogin:
		cmd = m.submitLogin()
	case navigation.PageDemo:
		cmd = m.submitDemo()
	}
	return m, cmd
}

// startSurge 发起一次浪涌分析，旧运行的轮询随之作废。
func (m Model) startSurge() (tea.Model, tea.Cmd) {
	if m.gateway == nil {
		return m, nil
	}
	gw, zone := m.gateway, m.zone
	m.req.invalidate(slotStatus)
	m.home = homeView{loading: true}
	cmd := m.req.call(slotSurge, func(ctx context.Context) (any, error) {
		return gw.RunSurge(ctx, healthforce.WithLocationZone(zone))
	})
	return m, cmd
}

func (m Model) onSurgeStarted(msg responseMsg) (tea.Model, tea.Cmd) {
	var ack healthforce.SurgeRun
	if err := decodeResponse(msg, &ack); err != nil {
		m.home = homeView{err: errorText(err)}
		return m, nil
	}
	m.home.runID = ack.RunID
	m.log.Info("浪涌分析已提交", slog.String("run_id", ack.RunID))
	return m, m.fetchStatus(ack.RunID)
}

func (m Model) fetchStatus(runID string) tea.Cmd {
	gw := m.gateway
	return m.req.call(slotStatus, func(ctx context.Context) (any, error) {
		return gw.GetSurgeStatus(ctx, runID)
	})
}

func (m Model) handlePoll(msg pollMsg) (tea.Model, tea.Cmd) {
	if !m.req.current(slotStatus, msg.seq) || msg.runID != m.home.runID {
		return m, nil
	}
	return m, m.fetchStatus(msg.runID)
}

func (m Model) onSurgeStatus(msg responseMsg) (tea.Model, tea.Cmd) {
	var status healthforce.SurgeStatus
	if err := decodeResponse(msg, &status); err != nil {
		m.home.loading = false
		m.home.err = errorText(err)
		return m, nil
	}
	m.home.status = &status
	m.home.err = ""
	if status.Done() {
		m.home.loading = false
		return m, nil
	}
	return m, pollAfter(m.pollInterval, m.home.runID, msg.seq)
}

func (m *Model) onImpactData(msg responseMsg) {
	if msg.err != nil {
		m.impact.err = errorText(msg.err)
		return
	}
	switch msg.slot {
	case slotForecast:
		var forecast healthforce.Forecast
		if err := healthforce.Decode(msg.result, &forecast); err != nil {
			m.impact.err = err.Error()
			return
		}
		m.impact.forecast = &forecast
	case slotInventory:
		var inventory healthforce.Inventory
		if err := healthforce.Decode(msg.result, &inventory); err != nil {
			m.impact.err = err.Error()
			return
		}
		m.impact.inventory = &inventory
	}
}

func (m *Model) submitLogin() tea.Cmd {
	f := &m.login.form
	if i := f.missing(); i >= 0 {
		m.login.err = f.labels[i] + " is required"
		return f.focusAt(i)
	}
	if m.gateway == nil {
		return nil
	}
	gw := m.gateway
	role := m.nav.State().ActiveRole.String()
	identifier, password := f.value(loginIdentifier), f.value(loginPassword)
	f.blur()
	m.login.loading = true
	m.login.err = ""
	m.req.invalidate(slotDashboard)
	return m.req.call(slotLogin, func(ctx context.Context) (any, error) {
		return gw.Login(ctx, role, identifier, password)
	})
}

func (m Model) onLogin(msg responseMsg) (tea.Model, tea.Cmd) {
	var result healthforce.LoginResult
	if err := decodeResponse(msg, &result); err != nil {
		m.login.loading = false
		m.login.err = errorText(err)
		return m, nil
	}
	m.login.result = &result
	if !result.Success {
		m.login.loading = false
		m.login.err = result.Message
		return m, nil
	}
	gw, role := m.gateway, result.Role
	cmd := m.req.call(slotDashboard, func(ctx context.Context) (any, error) {
		return gw.GetDashboardData(ctx, role)
	})
	return m, cmd
}

func (m *Model) onDashboard(msg responseMsg) {
	m.login.loading = false
	var dashboard healthforce.Dashboard
	if err := decodeResponse(msg, &dashboard); err != nil {
		m.login.err = errorText(err)
		return
	}
	m.login.dashboard = &dashboard
}

func (m *Model) submitDemo() tea.Cmd {
	f := &m.demo.form
	if i := f.missing(); i >= 0 {
		m.demo.err = f.labels[i] + " is required"
		return f.focusAt(i)
	}
	if m.gateway == nil {
		return nil
	}
	gw := m.gateway
	payload := healthforce.DemoRequest{
		FirstName:        f.value(demoFirstName),
		LastName:         f.value(demoLastName),
		Email:            f.value(demoEmail),
		OrganizationType: f.value(demoOrganization),
		InterestAreas:    []string{},
	}
	f.blur()
	m.demo.loading = true
	m.demo.err = ""
	m.demo.booking = nil
	return m.req.call(slotDemo, func(ctx context.Context) (any, error) {
		return gw.BookDemo(ctx, payload)
	})
}

func (m *Model) onDemoBooked(msg responseMsg) {
	m.demo.loading = false
	var booking healthforce.DemoBooking
	if err := decodeResponse(msg, &booking); err != nil {
		m.demo.err = errorText(err)
		return
	}
	m.demo.booking = &booking
	m.demo.form.clear()
}

func decodeResponse(msg responseMsg, out any) error {
	if msg.err != nil {
		return msg.err
	}
	if err := healthforce.Decode(msg.result, out); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}
	return nil
}
