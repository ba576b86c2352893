package views

import (
	"context"
	"sync"

	"stockdesk/src/clients/market"
	"stockdesk/src/session"
)

type TransactionsView struct {
	Transactions []market.Transaction `json:"transactions"`
	Error        string               `json:"error,omitempty"`
}

// TransactionsPage is the read-only trade history of the session user.
type TransactionsPage struct {
	gate  *Gate
	deps  *Deps
	mutex sync.Mutex
	view  TransactionsView
}

func NewTransactionsPage(deps *Deps) *TransactionsPage {
	p := &TransactionsPage{deps: deps}
	p.gate = NewGate(TransactionsPageName, RequireAuthenticated, deps, Hooks{
		Load:  p.load,
		Reset: p.reset,
	})
	return p
}

func (p *TransactionsPage) Gate() *Gate { return p.gate }

func (p *TransactionsPage) View() interface{} {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	view := p.view
	view.Transactions = append([]market.Transaction(nil), p.view.Transactions...)
	return view
}

func (p *TransactionsPage) reset() {
	p.mutex.Lock()
	p.view = TransactionsView{}
	p.mutex.Unlock()
}

func (p *TransactionsPage) load(ctx context.Context, s session.Session) error {
	transactions, err := p.deps.Client.GetTransactions(ctx, market.ID(s.UserID))
	p.gate.Commit(ctx, func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		if err != nil {
			p.view.Error = err.Error()
			return
		}
		p.view.Transactions = transactions
		p.view.Error = ""
	})
	return err
}
