package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"HealthForce-Goa/internal/navigation"
	"HealthForce-Goa/sdk/go/healthforce"
)

const brand = "HealthForce Goa"

// View 渲染导航栏、当前页面与底部提示。
func (m Model) View() string {
	state := m.nav.State()

	sections := []string{m.navbar(state)}
	if state.MobileMenuOpen && m.narrow() {
		sections = append(sections, m.mobileMenu(state))
	}
	sections = append(sections, m.visibleBody(state), mutedStyle.Render(m.help(state)))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) navbar(state navigation.State) string {
	style := navStyle
	if state.Scrolled {
		style = navScrolled
	}
	if m.narrow() {
		toggle := "[m] Menu"
		if state.MobileMenuOpen {
			toggle = "[m] Close"
		}
		return style.Width(m.width).Render(brandStyle.Render(brand) + "  " + linkStyle.Render(toggle))
	}

	parts := []string{brandStyle.Render(brand)}
	for i, entry := range navigation.MenuEntries() {
		label := fmt.Sprintf("%d %s", i+1, entry.Label)
		switch {
		case entry.Page == state.Page:
			parts = append(parts, activeLink.Render(label))
		case entry.CallToAction:
			parts = append(parts, ctaStyle.Render(label))
		default:
			parts = append(parts, linkStyle.Render(label))
		}
	}
	return style.Width(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) mobileMenu(state navigation.State) string {
	var b strings.Builder
	for i, entry := range navigation.MenuEntries() {
		prefix := "  "
		if i == m.menuCursor {
			prefix = cursorStyle.Render("> ")
		}
		label := entry.Label
		if entry.Page == state.Page {
			label = activeLink.Render(label)
		}
		b.WriteString(prefix + label + "\n")
	}
	return navStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) visibleBody(state navigation.State) string {
	lines := strings.Split(m.body(state), "\n")
	start := min(m.offset, len(lines))
	lines = lines[start:]
	if m.height > 4 && len(lines) > m.height-3 {
		lines = lines[:m.height-3]
	}
	return strings.Join(lines, "\n")
}

func (m Model) help(state navigation.State) string {
	k := m.keys
	if f := m.activeForm(state.Page); f != nil && f.editing() {
		return helpLine(k.Form.Next, k.Form.Submit, k.Form.Blur, k.ForceQuit)
	}
	if state.MobileMenuOpen && m.narrow() {
		return helpLine(k.Select, k.Close, k.Quit)
	}
	bindings := []key.Binding{k.Pages, k.Down, k.Quit}
	if m.narrow() {
		bindings = append([]key.Binding{k.Menu}, bindings...)
	}
	switch state.Page {
	case navigation.PageHome:
		bindings = append(bindings, k.Run)
	case navigation.PageImpact:
		bindings = append(bindings, k.Refresh)
	case navigation.PageLogin, navigation.PageDemo:
		if state.Page == navigation.PageLogin {
			bindings = append(bindings, k.PrevRole, k.NextRole)
		}
		bindings = append(bindings, k.Edit)
	}
	return helpLine(bindings...)
}

// body 返回当前页面的完整内容，滚动时按行截取。
func (m Model) body(state navigation.State) string {
	switch state.Page {
	case navigation.PageAgents:
		return agentsPage()
	case navigation.PageArchitecture:
		return architecturePage()
	case navigation.PageImpact:
		return m.impactPage()
	case navigation.PageDemo:
		return m.demoPage()
	case navigation.PageLogin:
		return m.loginPage(state)
	default:
		return m.homePage()
	}
}

func (m Model) homePage() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("It finds, predicts, and takes action."))
	b.WriteString("\n")
	b.WriteString(bodyStyle.Render("The first Multi-Agent System for healthcare surge management."))
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("Zone: " + m.zone))
	b.WriteString("\n")

	h := m.home
	switch {
	case h.err != "":
		b.WriteString(errorStyle.Render("Error: " + h.err))
	case h.status != nil:
		b.WriteString(fmt.Sprintf("Run %s · %s", h.status.RunID, h.status.Status))
		if h.status.Progress != nil {
			b.WriteString("\n" + mutedStyle.Render(*h.status.Progress))
		}
		if h.status.Error != nil {
			b.WriteString("\n" + errorStyle.Render(*h.status.Error))
		}
		if h.status.Status == healthforce.RunCompleted {
			b.WriteString("\n\n" + summarizeResult(h.status.Result))
		}
	case h.loading:
		b.WriteString(mutedStyle.Render("Submitting analysis..."))
	default:
		b.WriteString(mutedStyle.Render("Press r to run a surge analysis."))
	}
	return b.String()
}

// summarizeResult 摘取结果中的 agent 消息与最终决策。
func summarizeResult(result map[string]any) string {
	var b strings.Builder
	if messages, ok := result["messages"].([]any); ok {
		for _, msg := range messages {
			if text, ok := msg.(string); ok {
				b.WriteString("• " + text + "\n")
			}
		}
	}
	if decision, ok := result["final_decision"].(map[string]any); ok {
		approved, _ := decision["approved"].(bool)
		risk, _ := decision["risk_level"].(string)
		line := fmt.Sprintf("Decision: approved=%t risk=%s", approved, risk)
		if human, _ := decision["human_approval_required"].(bool); human {
			line += " (human approval required)"
		}
		b.WriteString(successStyle.Render(line))
	}
	return strings.TrimRight(b.String(), "\n")
}

var agentCards = []struct{ name, role string }{
	{"Doctor Agent", "Clinical Forecasting"},
	{"Pharmacy Agent", "Inventory & Supply"},
	{"Supplier Agent", "Logistics & Negotiation"},
	{"Public Health Agent", "Advisory & Communication"},
	{"Orchestrator Agent", "Central Command"},
}

func agentsPage() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Meet the Workforce."))
	b.WriteString("\n")
	b.WriteString(bodyStyle.Render("Each agent is an independent entity with specific goals, tools, and permission sets."))
	b.WriteString("\n\n")
	for _, card := range agentCards {
		b.WriteString(brandStyle.Render(card.name) + "  " + mutedStyle.Render(card.role) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var techStack = []struct{ name, desc string }{
	{"LangGraph", "Agent Orchestration"},
	{"MCP", "Context Protocol"},
	{"Google AP2", "Agent Payments"},
	{"PostgreSQL", "Structured Data"},
	{"FastAPI", "Backend API"},
	{"React", "Frontend Dashboard"},
	{"Docker", "Containerization"},
	{"Chroma", "Vector Search"},
}

func architecturePage() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("System Architecture"))
	b.WriteString("\n")
	for _, tech := range techStack {
		b.WriteString(fmt.Sprintf("%-12s %s\n", tech.name, mutedStyle.Render(tech.desc)))
	}
	b.WriteString("\n")
	b.WriteString(bodyStyle.Render("Each agent runs as a separate service communicating via Redis Streams."))
	return b.String()
}

func (m Model) impactPage() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Why we built this."))
	b.WriteString("\n")
	b.WriteString(bodyStyle.Render("HealthForce Goa shifts healthcare from Reactive to Predictive."))
	b.WriteString("\n\n")

	im := m.impact
	if im.err != "" {
		b.WriteString(errorStyle.Render("Error: "+im.err) + "\n")
	}
	if f := im.forecast; f != nil && f.Forecast != nil {
		b.WriteString(fmt.Sprintf("Forecast for %s (%s): %d patients, confidence %.0f%%\n",
			f.Zone, f.Source, f.Forecast.PredictedPatients, f.Forecast.Confidence*100))
		b.WriteString(mutedStyle.Render(formatBreakdown(f.Forecast.SeverityBreakdown)) + "\n")
	} else if im.err == "" {
		b.WriteString(mutedStyle.Render("Loading forecast...") + "\n")
	}
	if inv := im.inventory; inv != nil {
		b.WriteString(fmt.Sprintf("On call: %d doctors, %d nurses\n", inv.Roster.DoctorsOnCall, inv.Roster.NursesOnCall))
		for _, item := range inv.Inventory {
			line := fmt.Sprintf("%-20s %5d / %d", item.Name, item.Stock, item.MinLevel)
			if item.Stock < item.MinLevel {
				line = errorStyle.Render(line + "  below minimum")
			}
			b.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatBreakdown(breakdown map[string]int) string {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, breakdown[k]))
	}
	return strings.Join(parts, " · ")
}

func (m Model) loginPage(state navigation.State) string {
	profile := navigation.RoleProfile(state.ActiveRole)

	var tabs []string
	for _, role := range navigation.Roles() {
		label := navigation.RoleProfile(role).Label
		if role == state.ActiveRole {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Secure Access"))
	b.WriteString("\n")
	b.WriteString(strings.Join(tabs, " ") + "\n")
	b.WriteString(mutedStyle.Render(profile.Description) + "\n")
	b.WriteString(alertStyle(string(profile.AlertLevel)).Render(profile.AlertMessage) + "\n\n")

	f := m.login.form
	f.labels = []string{profile.IdentifierLabel, "Password"}
	b.WriteString(f.render(m.width))

	lv := m.login
	switch {
	case lv.err != "":
		b.WriteString(errorStyle.Render(lv.err))
	case lv.loading:
		b.WriteString(mutedStyle.Render("Signing in..."))
	case lv.dashboard != nil:
		if lv.result != nil {
			b.WriteString(successStyle.Render(lv.result.Message) + "\n")
		}
		b.WriteString(renderDashboard(*lv.dashboard))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderDashboard(d healthforce.Dashboard) string {
	var b strings.Builder
	for _, alert := range d.Alerts {
		b.WriteString(alertStyle(alert.Type).Render(strings.ToUpper(alert.Type)+": "+alert.Message) + "\n")
	}
	keys := make([]string, 0, len(d.Stats))
	for k := range d.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("%-24s %v\n", k, d.Stats[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) demoPage() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Book a Demo"))
	b.WriteString("\n")
	b.WriteString(m.demo.form.render(m.width))

	dv := m.demo
	switch {
	case dv.err != "":
		b.WriteString(errorStyle.Render(dv.err))
	case dv.loading:
		b.WriteString(mutedStyle.Render("Booking..."))
	case dv.booking != nil:
		b.WriteString(successStyle.Render(dv.booking.Message) + "\n")
		b.WriteString(mutedStyle.Render("Reference: " + dv.booking.DemoID))
	}
	return strings.TrimRight(b.String(), "\n")
}
