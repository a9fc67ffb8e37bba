package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorTeal    lipgloss.Color = "#14b8a6"
	colorSky     lipgloss.Color = "#38bdf8"
	colorRed     lipgloss.Color = "#f87171"
	colorAmber   lipgloss.Color = "#fbbf24"
	colorGreen   lipgloss.Color = "#4ade80"
	colorText    lipgloss.Color = "#e2e8f0"
	colorMuted   lipgloss.Color = "#94a3b8"
	colorSurface lipgloss.Color = "#1e293b"
)

var (
	brandStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorTeal)
	navStyle       = lipgloss.NewStyle().Padding(0, 1)
	navScrolled    = navStyle.Background(colorSurface)
	linkStyle      = lipgloss.NewStyle().Foreground(colorMuted)
	activeLink     = lipgloss.NewStyle().Bold(true).Foreground(colorText).Underline(true)
	ctaStyle       = lipgloss.NewStyle().Bold(true).Foreground(colorSky)
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorText).MarginBottom(1)
	bodyStyle      = lipgloss.NewStyle().Foreground(colorText)
	mutedStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle     = lipgloss.NewStyle().Foreground(colorRed)
	successStyle   = lipgloss.NewStyle().Foreground(colorGreen)
	cursorStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorTeal)
	focusedField   = lipgloss.NewStyle().Foreground(colorText).Border(lipgloss.NormalBorder()).BorderForeground(colorTeal).Padding(0, 1)
	blurredField   = lipgloss.NewStyle().Foreground(colorMuted).Border(lipgloss.NormalBorder()).BorderForeground(colorMuted).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Bold(true).Foreground(colorSurface).Background(colorTeal).Padding(0, 1)
	tabStyle       = lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1)
)

var alertStyles = map[string]lipgloss.Style{
	"critical": lipgloss.NewStyle().Bold(true).Foreground(colorRed),
	"warning":  lipgloss.NewStyle().Bold(true).Foreground(colorAmber),
	"advisory": lipgloss.NewStyle().Bold(true).Foreground(colorSky),
}

func alertStyle(level string) lipgloss.Style {
	if s, ok := alertStyles[level]; ok {
		return s
	}
	return bodyStyle
}
