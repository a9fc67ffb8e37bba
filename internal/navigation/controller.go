package navigation

import (
	"log/slog"
	"sync"

	"HealthForce-Goa/pkg/logger"
)

// ScrollThreshold is the offset past which the navbar switches to its
// scrolled style.
const ScrollThreshold = 20.0

// State is a read-only snapshot of the application shell.
type State struct {
	Page           Page
	Scrolled       bool
	MobileMenuOpen bool
	ActiveRole     Role
}

// Listener is notified with the new state after every effective change.
type Listener func(State)

// Controller owns the shell state shared by the navbar and the pages. The
// application root creates one and hands it to its views; all methods are
// safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	state     State
	listeners map[uint64]Listener
	nextID    uint64
	log       *slog.Logger
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for rejected inputs.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithInitialPage starts the controller on p instead of the home page.
func WithInitialPage(p Page) Option {
	return func(c *Controller) {
		if p.Valid() {
			c.state.Page = p
		}
	}
}

// New returns a controller on the home page, not scrolled, menu closed and
// the hospital tab active.
func New(opts ...Option) *Controller {
	c := &Controller{
		state: State{
			Page:       PageHome,
			ActiveRole: DefaultRole,
		},
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.log == nil {
		c.log = logger.Named("navigation")
	}
	return c
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetPage shows p and closes the mobile menu. Invalid pages show home.
func (c *Controller) SetPage(p Page) {
	if !p.Valid() {
		p = PageHome
	}
	c.update(func(s *State) {
		s.Page = p
		s.MobileMenuOpen = false
	})
}

// Navigate is SetPage for an identifier that has not been validated yet.
func (c *Controller) Navigate(raw string) {
	c.SetPage(ParsePage(raw))
}

// ToggleMobileMenu opens the collapsed menu if closed and vice versa.
func (c *Controller) ToggleMobileMenu() {
	c.update(func(s *State) {
		s.MobileMenuOpen = !s.MobileMenuOpen
	})
}

// ObserveScroll records the vertical scroll offset and reports whether the
// scrolled flag changed.
func (c *Controller) ObserveScroll(offset float64) bool {
	scrolled := offset > ScrollThreshold
	return c.update(func(s *State) {
		s.Scrolled = scrolled
	})
}

// SetActiveRoleTab selects a login tab. Unknown roles are ignored and
// reported as false.
func (c *Controller) SetActiveRoleTab(r Role) bool {
	if !r.Valid() {
		c.log.Debug("忽略未知角色", slog.String("role", string(r)))
		return false
	}
	c.update(func(s *State) {
		s.ActiveRole = r
	})
	return true
}

// Subscribe registers fn for state changes. The returned function removes
// it and may be called more than once.
func (c *Controller) Subscribe(fn Listener) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// update applies mutate under the lock and, if the state changed, notifies
// listeners after releasing it so they may call back into the controller.
func (c *Controller) update(mutate func(*State)) bool {
	c.mu.Lock()
	before := c.state
	mutate(&c.state)
	after := c.state
	if before == after {
		c.mu.Unlock()
		return false
	}
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(after)
	}
	return true
}
