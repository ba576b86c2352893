package views

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"stockdesk/src/session"

	"github.com/sirupsen/logrus"
)

// Page names.
const (
	LoginPageName        = "login"
	UsersPageName        = "users"
	AssetsPageName       = "assets"
	WalletPageName       = "wallet"
	TransactionsPageName = "transactions"
)

// Page is implemented by every screen the navigator can show.
type Page interface {
	Gate() *Gate
	View() interface{}
}

// PageView is what the local surface sends for the active page.
type PageView struct {
	Page    string          `json:"page"`
	State   State           `json:"state"`
	Session session.Session `json:"session"`
	Data    interface{}     `json:"data"`
}

// Navigator owns the one page on screen.
type Navigator struct {
	root   context.Context
	store  *session.Store
	logger *logrus.Logger
	pages  map[string]Page
	login  string
	mutex  sync.Mutex
	active Page
	// mounted trails active; only the goroutine that set settling moves it.
	mounted  Page
	settling bool
	nextID   int
	watches  map[int]func(PageView)
}

func NewNavigator(root context.Context, store *session.Store, logger *logrus.Logger) *Navigator {
	return &Navigator{
		root:    root,
		store:   store,
		logger:  logger,
		pages:   make(map[string]Page),
		login:   LoginPageName,
		watches: make(map[int]func(PageView)),
	}
}

// Register adds a page; a 401 on it sends the navigator to the login page.
func (n *Navigator) Register(page Page) {
	gate := page.Gate()
	gate.OnExpired(n.Redirect)
	gate.OnChange(func() { n.changed(page) })

	n.mutex.Lock()
	n.pages[gate.Name()] = page
	n.mutex.Unlock()
}

func (n *Navigator) Page(name string) (Page, bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	page, ok := n.pages[name]
	return page, ok
}

func (n *Navigator) Names() []string {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	names := make([]string, 0, len(n.pages))
	for name := range n.pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open makes name the active page. Opening the active page re-runs its
// gate. When another Open is still mounting, the page is left for that call
// to mount, so at most one page is ever mounted.
func (n *Navigator) Open(name string) (Page, error) {
	n.mutex.Lock()
	next, ok := n.pages[name]
	if !ok {
		n.mutex.Unlock()
		return nil, fmt.Errorf("unknown page %q", name)
	}
	refresh := n.active == next && n.mounted == next && !n.settling
	n.active = next
	n.mutex.Unlock()

	if refresh {
		next.Gate().Refresh()
		return next, nil
	}

	n.logger.WithField("page", name).Debug("opening page")
	n.settle()
	return next, nil
}

// settle unmounts and mounts until the mounted page is the active one. A
// redirect raised while mounting is picked up by the same loop.
func (n *Navigator) settle() {
	n.mutex.Lock()
	if n.settling {
		n.mutex.Unlock()
		return
	}
	n.settling = true
	n.mutex.Unlock()

	for {
		n.mutex.Lock()
		target, current := n.active, n.mounted
		if target == current {
			n.settling = false
			n.mutex.Unlock()
			return
		}
		n.mounted = target
		n.mutex.Unlock()

		if current != nil {
			current.Gate().Unmount()
		}
		if target != nil {
			target.Gate().Mount(n.root)
		}
	}
}

// Redirect sends the operator to the login page.
func (n *Navigator) Redirect() {
	if _, err := n.Open(n.login); err != nil {
		n.logger.WithError(err).Error("could not open login page")
	}
}

func (n *Navigator) Active() Page {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.active
}

func (n *Navigator) ActiveName() string {
	if page := n.Active(); page != nil {
		return page.Gate().Name()
	}
	return ""
}

// Close unmounts the active page.
func (n *Navigator) Close() {
	n.mutex.Lock()
	n.active = nil
	n.mutex.Unlock()
	n.settle()
}

// Render builds the view of page.
func (n *Navigator) Render(page Page) PageView {
	gate := page.Gate()
	return PageView{
		Page:    gate.Name(),
		State:   gate.State(),
		Session: n.store.Snapshot(),
		Data:    page.View(),
	}
}

// Watch is called with the active page's view after every change.
func (n *Navigator) Watch(fn func(PageView)) func() {
	n.mutex.Lock()
	id := n.nextID
	n.nextID++
	n.watches[id] = fn
	n.mutex.Unlock()

	return func() {
		n.mutex.Lock()
		delete(n.watches, id)
		n.mutex.Unlock()
	}
}

func (n *Navigator) changed(page Page) {
	n.mutex.Lock()
	if n.active != page {
		n.mutex.Unlock()
		return
	}
	watches := make([]func(PageView), 0, len(n.watches))
	for _, fn := range n.watches {
		watches = append(watches, fn)
	}
	n.mutex.Unlock()

	if len(watches) == 0 {
		return
	}
	view := n.Render(page)
	for _, fn := range watches {
		fn(view)
	}
}
