package navigation

import "strings"

// Page 标识一个顶层页面。
type Page string

const (
	PageHome         Page = "home"
	PageAgents       Page = "agents"
	PageArchitecture Page = "architecture"
	PageImpact       Page = "impact"
	PageDemo         Page = "demo"
	PageLogin        Page = "login"
)

var pageLabels = map[Page]string{
	PageHome:         "Platform",
	PageAgents:       "Agents",
	PageArchitecture: "Architecture",
	PageImpact:       "Impact",
	PageDemo:         "Book Demo",
	PageLogin:        "Log in",
}

// Pages returns every page in menu order.
func Pages() []Page {
	return []Page{PageHome, PageAgents, PageArchitecture, PageImpact, PageDemo, PageLogin}
}

// Valid reports whether p is one of the known pages.
func (p Page) Valid() bool {
	_, ok := pageLabels[p]
	return ok
}

// Label is the text shown for p in the navbar.
func (p Page) Label() string {
	return pageLabels[p]
}

func (p Page) String() string {
	return string(p)
}

// ParsePage resolves an identifier received from outside (CLI flag, deep link,
// stored preference). Anything unknown lands on the home page.
func ParsePage(raw string) Page {
	p := Page(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return PageHome
	}
	return p
}

// MenuEntry is one link in the navbar.
type MenuEntry struct {
	Page  Page
	Label string
	// CallToAction marks the two buttons rendered after the primary links.
	CallToAction bool
}

// MenuEntries lists the primary links followed by the Log in and Book Demo
// calls to action.
func MenuEntries() []MenuEntry {
	entries := make([]MenuEntry, 0, 6)
	for _, p := range []Page{PageHome, PageAgents, PageArchitecture, PageImpact} {
		entries = append(entries, MenuEntry{Page: p, Label: p.Label()})
	}
	entries = append(entries,
		MenuEntry{Page: PageLogin, Label: PageLogin.Label(), CallToAction: true},
		MenuEntry{Page: PageDemo, Label: PageDemo.Label(), CallToAction: true},
	)
	return entries
}
