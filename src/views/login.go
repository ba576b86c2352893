package views

import (
	"context"
	"sync"

	"stockdesk/src/clients/market"
	"stockdesk/src/session"
)

type LoginView struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// LoginPage logs the operator in and registers new accounts.
type LoginPage struct {
	gate  *Gate
	deps  *Deps
	mutex sync.Mutex
	view  LoginView
}

func NewLoginPage(deps *Deps) *LoginPage {
	p := &LoginPage{deps: deps}
	p.gate = NewGate(LoginPageName, Public, deps, Hooks{Reset: p.reset})
	return p
}

func (p *LoginPage) Gate() *Gate { return p.gate }

func (p *LoginPage) View() interface{} {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.view
}

func (p *LoginPage) reset() {
	p.mutex.Lock()
	p.view = LoginView{}
	p.mutex.Unlock()
}

// show is not bound to a mount: the outcome of a login stays visible even
// if the page was reopened meanwhile.
func (p *LoginPage) show(view LoginView) {
	p.mutex.Lock()
	p.view = view
	p.mutex.Unlock()
	p.gate.changed()
}

// Login stores the server-asserted identity. A 401 here means wrong
// credentials, not an expired session.
func (p *LoginPage) Login(ctx context.Context, req market.LoginRequest) (session.Session, error) {
	if err := validateForm(req); err != nil {
		p.show(LoginView{Error: err.Error()})
		return session.Session{}, err
	}

	resp, err := p.deps.Client.Login(ctx, req)
	if err != nil {
		message := err.Error()
		if market.IsSessionExpired(err) {
			message = "invalid username or password"
		}
		p.show(LoginView{Error: message})
		return session.Session{}, err
	}

	s := p.deps.Session.Login(resp.UserID.String(), session.ParseRole(resp.Role))
	p.deps.Logger.WithField("user_id", s.UserID).Info("logged in")
	p.show(LoginView{})
	return s, nil
}

func (p *LoginPage) Register(ctx context.Context, req market.RegisterRequest) error {
	if err := validateForm(req); err != nil {
		p.show(LoginView{Error: err.Error()})
		return err
	}

	if err := p.deps.Client.Register(ctx, req); err != nil {
		p.show(LoginView{Error: err.Error()})
		return err
	}
	p.show(LoginView{Message: "account created, you can log in now"})
	return nil
}

// Logout tells the backend and clears the session whatever it answered.
func (p *LoginPage) Logout(ctx context.Context) error {
	err := p.deps.Client.Logout(ctx)
	if err != nil && !market.IsSessionExpired(err) {
		p.deps.Logger.WithError(err).Warn("backend logout failed")
	} else {
		err = nil
	}
	p.deps.Session.Logout()
	return err
}
