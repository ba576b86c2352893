package views

import (
	"context"
	"sync"

	"stockdesk/src/clients/market"
	"stockdesk/src/session"
)

type UsersView struct {
	Users     []market.User `json:"users"`
	Stale     bool          `json:"stale"`
	ListError string        `json:"listError,omitempty"`
	FormError string        `json:"formError,omitempty"`
}

// UsersPage is the admin list of accounts.
type UsersPage struct {
	gate  *Gate
	deps  *Deps
	mutex sync.Mutex
	view  UsersView
}

func NewUsersPage(deps *Deps) *UsersPage {
	p := &UsersPage{deps: deps}
	p.gate = NewGate(UsersPageName, RequireAdmin, deps, Hooks{
		Load:  p.load,
		Reset: p.reset,
	})
	return p
}

func (p *UsersPage) Gate() *Gate { return p.gate }

func (p *UsersPage) View() interface{} {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	view := p.view
	view.Users = append([]market.User(nil), p.view.Users...)
	return view
}

func (p *UsersPage) reset() {
	p.mutex.Lock()
	p.view = UsersView{}
	p.mutex.Unlock()
}

func usersHintKey() string {
	return hintKey("users")
}

func (p *UsersPage) load(ctx context.Context, _ session.Session) error {
	var hint []market.User
	if p.deps.readHint(ctx, usersHintKey(), &hint) {
		p.gate.Commit(ctx, func() {
			p.mutex.Lock()
			p.view.Users = hint
			p.view.Stale = true
			p.mutex.Unlock()
		})
	}
	return p.fetch(ctx)
}

func (p *UsersPage) fetch(ctx context.Context) error {
	users, err := p.deps.Client.GetUsers(ctx)
	p.gate.Commit(ctx, func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		if err != nil {
			p.view.ListError = err.Error()
			return
		}
		p.view.Users = users
		p.view.Stale = false
		p.view.ListError = ""
	})
	if err == nil {
		p.deps.writeHint(ctx, usersHintKey(), users)
	}
	return err
}

// Refetch reloads the list, replacing any local edit.
func (p *UsersPage) Refetch(ctx context.Context) error {
	ctx, err := p.gate.Bind(ctx)
	if err != nil {
		return err
	}
	err = p.fetch(ctx)
	p.gate.HandleError(ctx, err)
	return err
}

// AddUser appends the created user locally; the next full fetch reconciles.
func (p *UsersPage) AddUser(ctx context.Context, req market.UserRequest) (*market.User, error) {
	ctx, err := p.gate.Bind(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateForm(req); err != nil {
		p.setFormError(ctx, err)
		return nil, err
	}

	user, err := p.deps.Client.CreateUser(ctx, req)
	if err != nil {
		if !p.gate.HandleError(ctx, err) {
			p.setFormError(ctx, err)
		}
		return nil, err
	}

	p.gate.Commit(ctx, func() {
		p.mutex.Lock()
		p.view.Users = append(p.view.Users, *user)
		p.view.FormError = ""
		p.mutex.Unlock()
	})
	p.deps.dropHints(ctx, usersHintKey())
	return user, nil
}

// DeleteUser removes the user locally first and puts it back if the backend
// refuses.
func (p *UsersPage) DeleteUser(ctx context.Context, id market.ID) error {
	ctx, err := p.gate.Bind(ctx)
	if err != nil {
		return err
	}

	var (
		removed market.User
		index   = -1
	)
	p.gate.Commit(ctx, func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		for i, u := range p.view.Users {
			if u.ID == id {
				removed, index = u, i
				p.view.Users = append(append([]market.User(nil), p.view.Users[:i]...), p.view.Users[i+1:]...)
				break
			}
		}
	})

	err = p.deps.Client.DeleteUser(ctx, id)
	if err != nil {
		if p.gate.HandleError(ctx, err) {
			return err
		}
		p.gate.Commit(ctx, func() {
			p.mutex.Lock()
			defer p.mutex.Unlock()
			if index >= 0 {
				p.view.Users = insertAt(p.view.Users, index, removed)
			}
			p.view.ListError = err.Error()
		})
		return err
	}
	p.deps.dropHints(ctx, usersHintKey())
	return nil
}

func (p *UsersPage) setFormError(ctx context.Context, err error) {
	p.gate.Commit(ctx, func() {
		p.mutex.Lock()
		p.view.FormError = err.Error()
		p.mutex.Unlock()
	})
}

func insertAt[T any](list []T, index int, item T) []T {
	if index > len(list) {
		index = len(list)
	}
	out := make([]T, 0, len(list)+1)
	out = append(out, list[:index]...)
	out = append(out, item)
	return append(out, list[index:]...)
}
