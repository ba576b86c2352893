package views

import (
	"context"
	"sync"

	"stockdesk/src/clients/market"
	"stockdesk/src/session"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

type WalletView struct {
	UserID       string                 `json:"userId"`
	Account      *market.Account        `json:"account,omitempty"`
	Holdings     []market.WalletHolding `json:"holdings"`
	Available    []market.Asset         `json:"available"`
	Stale        bool                   `json:"stale"`
	WalletError  string                 `json:"walletError,omitempty"`
	AccountError string                 `json:"accountError,omitempty"`
	AssetsError  string                 `json:"assetsError,omitempty"`
	TradeError   string                 `json:"tradeError,omitempty"`
	FundsError   string                 `json:"fundsError,omitempty"`
}

// TradePreview is the value of a trade at the last known price. It is shown,
// never sent.
type TradePreview struct {
	Asset market.Asset     `json:"asset"`
	Type  market.TradeType `json:"type"`
	Value decimal.Decimal  `json:"value"`
}

// WalletPage shows the session user's holdings, balance and profit.
type WalletPage struct {
	gate  *Gate
	deps  *Deps
	mutex sync.Mutex
	view  WalletView
}

func NewWalletPage(deps *Deps) *WalletPage {
	p := &WalletPage{deps: deps}
	p.gate = NewGate(WalletPageName, RequireAuthenticated, deps, Hooks{
		Load:  p.load,
		Polls: p.polls,
		Reset: p.reset,
	})
	return p
}

func (p *WalletPage) Gate() *Gate { return p.gate }

func (p *WalletPage) View() interface{} {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	view := p.view
	view.Holdings = append([]market.WalletHolding(nil), p.view.Holdings...)
	view.Available = append([]market.Asset(nil), p.view.Available...)
	if p.view.Account != nil {
		account := *p.view.Account
		view.Account = &account
	}
	return view
}

func (p *WalletPage) reset() {
	p.mutex.Lock()
	p.view = WalletView{}
	p.mutex.Unlock()
}

func walletHintKey(userID string) string {
	return hintKey("wallet", userID)
}

func (p *WalletPage) update(ctx context.Context, apply func(v *WalletView)) {
	p.gate.Commit(ctx, func() {
		p.mutex.Lock()
		apply(&p.view)
		p.mutex.Unlock()
	})
}

func (p *WalletPage) load(ctx context.Context, s session.Session) error {
	p.update(ctx, func(v *WalletView) { v.UserID = s.UserID })

	var hint []market.WalletHolding
	if p.deps.readHint(ctx, walletHintKey(s.UserID), &hint) {
		p.update(ctx, func(v *WalletView) {
			v.Holdings = hint
			v.Stale = true
		})
	}

	tasks := pool.New().WithErrors()
	tasks.Go(func() error { return p.fetchWallet(ctx, s.UserID) })
	tasks.Go(func() error { return p.fetchAvailable(ctx) })
	return tasks.Wait()
}

// Only the account is polled; holdings change through trades made here.
func (p *WalletPage) polls(s session.Session) []Poll {
	return []Poll{{
		Name:  "account",
		Fetch: func(ctx context.Context) error { return p.fetchAccount(ctx, s.UserID) },
	}}
}

func (p *WalletPage) fetchWallet(ctx context.Context, userID string) error {
	holdings, err := p.deps.Client.GetWalletDetails(ctx, market.ID(userID))
	p.update(ctx, func(v *WalletView) {
		if err != nil {
			v.WalletError = err.Error()
			return
		}
		v.Holdings = holdings
		v.Stale = false
		v.WalletError = ""
	})
	if err == nil {
		p.deps.writeHint(ctx, walletHintKey(userID), holdings)
	}
	return err
}

// fetchAccount renders the balance the server reports; nothing is computed here.
func (p *WalletPage) fetchAccount(ctx context.Context, userID string) error {
	account, err := p.deps.Client.GetAccount(ctx, market.ID(userID))
	p.update(ctx, func(v *WalletView) {
		if err != nil {
			v.AccountError = err.Error()
			return
		}
		v.Account = account
		v.AccountError = ""
	})
	return err
}

func (p *WalletPage) fetchAvailable(ctx context.Context) error {
	page, err := p.deps.Client.GetAssets(ctx, market.AssetQuery{})
	p.update(ctx, func(v *WalletView) {
		if err != nil {
			v.AssetsError = err.Error()
			return
		}
		v.Available = page.Content
		v.AssetsError = ""
	})
	return err
}

// refetch reloads wallet and account at once after a point action, without
// waiting for the next tick.
func (p *WalletPage) refetch(ctx context.Context, userID string, wallet bool) {
	tasks := pool.New().WithErrors()
	if wallet {
		tasks.Go(func() error { return p.fetchWallet(ctx, userID) })
	}
	tasks.Go(func() error { return p.fetchAccount(ctx, userID) })
	if err := tasks.Wait(); err != nil {
		p.gate.HandleError(ctx, err)
	}
}

// HandleTrade buys or sells and then refreshes holdings and balance.
func (p *WalletPage) HandleTrade(ctx context.Context, req market.TradeRequest) error {
	ctx, err := p.gate.Bind(ctx)
	if err != nil {
		return err
	}
	userID := p.gate.Session().UserID

	if err := validateForm(req); err != nil {
		p.update(ctx, func(v *WalletView) { v.TradeError = err.Error() })
		return err
	}
	if err := requirePositive("amount", req.Amount); err != nil {
		p.update(ctx, func(v *WalletView) { v.TradeError = err.Error() })
		return err
	}

	if err := p.deps.Client.Trade(ctx, market.ID(userID), req); err != nil {
		if !p.gate.HandleError(ctx, err) {
			p.update(ctx, func(v *WalletView) { v.TradeError = err.Error() })
		}
		return err
	}
	p.deps.Logger.WithFields(logrus.Fields{
		"user_id": userID,
		"asset":   req.AssetID,
		"type":    req.Type,
	}).Info("trade executed")

	p.update(ctx, func(v *WalletView) { v.TradeError = "" })
	p.refetch(ctx, userID, true)
	return nil
}

// HandleAddFunds tops up the balance and then refreshes the account.
func (p *WalletPage) HandleAddFunds(ctx context.Context, amount decimal.Decimal) error {
	ctx, err := p.gate.Bind(ctx)
	if err != nil {
		return err
	}
	userID := p.gate.Session().UserID

	if err := requirePositive("amount", amount); err != nil {
		p.update(ctx, func(v *WalletView) { v.FundsError = err.Error() })
		return err
	}

	if err := p.deps.Client.AddFunds(ctx, market.ID(userID), market.AddFundsRequest{Amount: amount}); err != nil {
		if !p.gate.HandleError(ctx, err) {
			p.update(ctx, func(v *WalletView) { v.FundsError = err.Error() })
		}
		return err
	}

	p.update(ctx, func(v *WalletView) { v.FundsError = "" })
	p.refetch(ctx, userID, false)
	return nil
}

// Preview prices a trade against the available assets.
func (p *WalletPage) Preview(assetID market.ID, amount decimal.Decimal, tradeType market.TradeType) (TradePreview, bool) {
	if !amount.IsPositive() {
		return TradePreview{}, false
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, asset := range p.view.Available {
		if asset.ID == assetID {
			return TradePreview{Asset: asset, Type: tradeType, Value: amount.Mul(asset.Price)}, true
		}
	}
	return TradePreview{}, false
}
