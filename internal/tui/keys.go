package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"HealthForce-Goa/internal/navigation"
)

// keyMap 汇总界面的按键绑定，底部帮助栏也由它生成。
type keyMap struct {
	ForceQuit key.Binding
	Quit      key.Binding
	Menu      key.Binding
	Close     key.Binding
	Select    key.Binding
	Up        key.Binding
	Down      key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Pages     key.Binding
	Run       key.Binding
	Refresh   key.Binding
	PrevRole  key.Binding
	NextRole  key.Binding
	Edit      key.Binding

	Form formKeyMap
}

// formKeyMap 只在输入框获得焦点时生效。
type formKeyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Submit key.Binding
	Blur   key.Binding
}

func newKeyMap() keyMap {
	entries := navigation.MenuEntries()
	pageKeys := make([]string, len(entries))
	for i := range entries {
		pageKeys[i] = fmt.Sprintf("%d", i+1)
	}
	return keyMap{
		ForceQuit: key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		Quit:      key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		Menu:      key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "menu")),
		Close:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		Select:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Up:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/k", "scroll")),
		PageUp:    key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "page up")),
		PageDown:  key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdown", "page down")),
		Pages:     key.NewBinding(key.WithKeys(pageKeys...), key.WithHelp("1-"+pageKeys[len(pageKeys)-1], "pages")),
		Run:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "run surge analysis")),
		Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		PrevRole:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "prev role")),
		NextRole:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "next role")),
		Edit:      key.NewBinding(key.WithKeys("tab", "enter", "i"), key.WithHelp("enter", "fill form")),
		Form: formKeyMap{
			Next:   key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
			Prev:   key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev field")),
			Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
			Blur:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop editing")),
		},
	}
}

// pageIndex 把数字键换算成菜单下标，不是页面键时返回 -1。
func pageIndex(k string) int {
	if len(k) != 1 || k[0] < '1' || k[0] > '9' {
		return -1
	}
	return int(k[0] - '1')
}

// helpLine 把绑定渲染成 "key desc · key desc"，跳过被禁用的绑定。
func helpLine(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " · ")
}
