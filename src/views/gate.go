// Package views holds the pages and the gate that decides, from the session,
// what each page may fetch.
package views

import (
	"context"
	"errors"
	"sync"
	"time"

	"stockdesk/src/clients/market"
	"stockdesk/src/scheduler"
	"stockdesk/src/session"
	"stockdesk/src/storage"

	"github.com/sirupsen/logrus"
)

// ErrNotMounted is returned by actions on a page that is not on screen.
var ErrNotMounted = errors.New("page is not active")

// ErrAccessDenied is returned by actions the session may not perform.
var ErrAccessDenied = errors.New("you do not have access to this page")

type State string

const (
	StateUnknown           State = "UNKNOWN"
	StateUnauthorized      State = "UNAUTHORIZED"
	StateAuthorizedLoading State = "AUTHORIZED_LOADING"
	StateAuthorizedReady   State = "AUTHORIZED_READY"
	StateSessionExpired    State = "SESSION_EXPIRED"
)

type Requirement int

const (
	Public Requirement = iota
	RequireAuthenticated
	RequireAdmin
)

func (r Requirement) Allows(s session.Session) bool {
	switch r {
	case RequireAuthenticated:
		return s.Authenticated && s.UserID != ""
	case RequireAdmin:
		return s.IsAdmin()
	default:
		return true
	}
}

// Deps are shared by every page.
type Deps struct {
	Client       market.MarketServiceClientI
	Session      *session.Store
	Storage      storage.Storage
	Logger       *logrus.Logger
	PollInterval time.Duration
	HintTTL      time.Duration
	NewTicker    scheduler.TickerFactory
}

// Poll is a fetch the gate repeats while the page is authorized.
type Poll struct {
	Name  string
	Fetch func(ctx context.Context) error
}

// Hooks connect a page to its gate. Load runs on every authorization, Polls
// are started after it, Reset drops data when access is lost.
type Hooks struct {
	Load  func(ctx context.Context, s session.Session) error
	Polls func(s session.Session) []Poll
	Reset func()
}

type generationKey struct{}

// Gate runs the per-page state machine. Page data may only be written through
// Commit, which drops results from a previous mount or authorization.
type Gate struct {
	name        string
	requirement Requirement
	deps        *Deps
	hooks       Hooks
	logger      *logrus.Entry

	mutex       sync.Mutex
	state       State
	generation  uint64
	mounted     bool
	current     session.Session
	ctx         context.Context
	cancel      context.CancelFunc
	handles     []*scheduler.PollHandle
	unsubscribe func()

	onExpired func()
	onChange  func()
}

func NewGate(name string, requirement Requirement, deps *Deps, hooks Hooks) *Gate {
	return &Gate{
		name:        name,
		requirement: requirement,
		deps:        deps,
		hooks:       hooks,
		logger:      deps.Logger.WithField("page", name),
		state:       StateUnknown,
	}
}

func (g *Gate) Name() string { return g.name }

func (g *Gate) State() State {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.state
}

// OnExpired sets the redirect run after a 401 cleared the session.
func (g *Gate) OnExpired(fn func()) { g.onExpired = fn }

// OnChange sets the hook run whenever the page's view may have changed.
func (g *Gate) OnChange(fn func()) { g.onChange = fn }

// Mount reads the session, fetches what it allows and starts the pollers.
// Loading happens before Mount returns.
func (g *Gate) Mount(ctx context.Context) {
	g.mutex.Lock()
	if g.mounted {
		g.mutex.Unlock()
		return
	}
	g.mounted = true
	g.ctx, g.cancel = context.WithCancel(ctx)
	// the store never calls subscribers under its own lock
	g.unsubscribe = g.deps.Session.Subscribe(g.sessionChanged)
	g.mutex.Unlock()

	g.evaluate(g.deps.Session.Snapshot())
}

// Unmount stops the pollers and turns every pending completion into a no-op.
func (g *Gate) Unmount() {
	g.mutex.Lock()
	if !g.mounted {
		g.mutex.Unlock()
		return
	}
	g.mounted = false
	g.generation++
	handles := g.handles
	g.handles = nil
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	cancel := g.cancel
	if g.state != StateSessionExpired {
		g.state = StateUnknown
	}
	g.mutex.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
}

func (g *Gate) sessionChanged(s session.Session) {
	g.mutex.Lock()
	skip := !g.mounted || g.state == StateSessionExpired || s == g.current
	g.mutex.Unlock()
	if skip {
		return
	}
	// the store notifies from the caller's goroutine; loading must not block it
	go g.evaluate(s)
}

// Refresh re-runs the gate against the current session.
func (g *Gate) Refresh() {
	g.evaluate(g.deps.Session.Snapshot())
}

func (g *Gate) evaluate(s session.Session) {
	g.mutex.Lock()
	if !g.mounted {
		g.mutex.Unlock()
		return
	}
	g.generation++
	gen := g.generation
	g.current = s
	handles := g.handles
	g.handles = nil
	allowed := g.requirement.Allows(s)
	if allowed {
		g.state = StateAuthorizedLoading
	} else {
		g.state = StateUnauthorized
	}
	ctx := context.WithValue(g.ctx, generationKey{}, gen)
	g.mutex.Unlock()

	for _, h := range handles {
		h.Stop()
	}

	if !allowed {
		g.logger.WithField("role", s.Role).Debug("access denied")
		if g.hooks.Reset != nil {
			g.hooks.Reset()
		}
		g.changed()
		return
	}
	g.changed()

	if g.hooks.Load != nil {
		if err := g.hooks.Load(ctx, s); err != nil && g.HandleError(ctx, err) {
			return
		}
	}
	var polls []Poll
	if g.hooks.Polls != nil {
		polls = g.hooks.Polls(s)
	}
	// first round of every poll runs here so the page is complete when ready
	for _, p := range polls {
		if err := p.Fetch(ctx); err != nil && g.HandleError(ctx, err) {
			return
		}
	}

	g.mutex.Lock()
	if !g.mounted || g.generation != gen {
		g.mutex.Unlock()
		return
	}
	g.state = StateAuthorizedReady
	g.mutex.Unlock()
	g.changed()

	g.startPolls(ctx, gen, polls)
}

func (g *Gate) startPolls(ctx context.Context, gen uint64, polls []Poll) {
	for _, p := range polls {
		fetch := p.Fetch
		poller, err := scheduler.NewPoller(
			scheduler.WithName(g.name+"."+p.Name),
			scheduler.WithInterval(g.deps.PollInterval),
			scheduler.WithLogger(g.deps.Logger),
			scheduler.WithTicker(g.deps.NewTicker),
			scheduler.WithImmediate(false),
			scheduler.WithHandler(func(ctx context.Context) error {
				err := fetch(ctx)
				if err != nil {
					g.HandleError(ctx, err)
				}
				return err
			}),
		)
		if err != nil {
			g.logger.WithError(err).Error("could not create poller")
			continue
		}

		g.mutex.Lock()
		if !g.mounted || g.generation != gen {
			g.mutex.Unlock()
			return
		}
		handle, err := poller.Start(ctx)
		if err != nil {
			g.mutex.Unlock()
			g.logger.WithError(err).Error("could not start poller")
			continue
		}
		g.handles = append(g.handles, handle)
		g.mutex.Unlock()
		g.logger.WithFields(logrus.Fields{"poll": p.Name, "interval": poller.Interval()}).Debug("polling started")
	}
}

// Bind tags ctx with the current authorization so an action's result can be
// committed. It fails when the page is not mounted or not authorized.
func (g *Gate) Bind(ctx context.Context) (context.Context, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if !g.mounted {
		return nil, ErrNotMounted
	}
	if g.state == StateUnauthorized || g.state == StateSessionExpired {
		return nil, ErrAccessDenied
	}
	return context.WithValue(ctx, generationKey{}, g.generation), nil
}

// Session is the session the gate last evaluated.
func (g *Gate) Session() session.Session {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.current
}

// Commit runs apply only if ctx still belongs to the current mount and
// authorization. It reports whether apply ran.
func (g *Gate) Commit(ctx context.Context, apply func()) bool {
	gen, _ := ctx.Value(generationKey{}).(uint64)
	g.mutex.Lock()
	if !g.mounted || gen != g.generation || g.state == StateSessionExpired {
		g.mutex.Unlock()
		return false
	}
	apply()
	g.mutex.Unlock()
	g.changed()
	return true
}

// HandleError reacts to a 401 by expiring the session. It reports whether
// err was a 401; every other kind is left to the page to show inline.
// A 401 expires the session even if the gate re-evaluated since the request
// left: the generation only guards view data.
func (g *Gate) HandleError(_ context.Context, err error) bool {
	if !market.IsSessionExpired(err) {
		return false
	}
	g.expire()
	return true
}

func (g *Gate) expire() {
	g.mutex.Lock()
	if !g.mounted || g.state == StateSessionExpired {
		g.mutex.Unlock()
		return
	}
	g.state = StateSessionExpired
	g.generation++
	handles := g.handles
	g.handles = nil
	g.mutex.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	g.logger.Info("session expired, redirecting to login")
	g.deps.Session.Logout()
	if g.hooks.Reset != nil {
		g.hooks.Reset()
	}
	g.changed()
	if g.onExpired != nil {
		g.onExpired()
	}
}

func (g *Gate) changed() {
	if g.onChange != nil {
		g.onChange()
	}
}
