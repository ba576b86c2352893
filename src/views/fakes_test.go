package views_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stockdesk/src/clients/market"
	"stockdesk/src/scheduler"
	"stockdesk/src/session"
	"stockdesk/src/storage"
	"stockdesk/src/utils"
	"stockdesk/src/views"
)

// fakeClient answers with the funcs that are set and zero values otherwise.
type fakeClient struct {
	mutex sync.Mutex
	calls map[string]int

	login            func(req market.LoginRequest) (*market.LoginResponse, error)
	register         func(req market.RegisterRequest) error
	getUsers         func() ([]market.User, error)
	createUser       func(req market.UserRequest) (*market.User, error)
	deleteUser       func(id market.ID) error
	getAccount       func(userID market.ID) (*market.Account, error)
	addFunds         func(userID market.ID, req market.AddFundsRequest) error
	getWalletDetails func(userID market.ID) ([]market.WalletHolding, error)
	trade            func(userID market.ID, req market.TradeRequest) error
	getTransactions  func(ctx context.Context, userID market.ID) ([]market.Transaction, error)
	getAssets        func(query market.AssetQuery) (*market.AssetPage, error)
	createAsset      func(req market.AssetRequest) (*market.Asset, error)
	deleteAsset      func(id market.ID) error
	getAssetHistory  func(id market.ID) ([]market.PriceHistoryPoint, error)
}

var _ market.MarketServiceClientI = (*fakeClient)(nil)

func (f *fakeClient) count(name string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeClient) Calls(name string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls[name]
}

func (f *fakeClient) Login(_ context.Context, req market.LoginRequest) (*market.LoginResponse, error) {
	f.count("Login")
	if f.login == nil {
		return &market.LoginResponse{}, nil
	}
	return f.login(req)
}

func (f *fakeClient) Register(_ context.Context, req market.RegisterRequest) error {
	f.count("Register")
	if f.register == nil {
		return nil
	}
	return f.register(req)
}

func (f *fakeClient) Logout(context.Context) error {
	f.count("Logout")
	return nil
}

func (f *fakeClient) Me(context.Context) (*market.LoginResponse, error) {
	f.count("Me")
	return &market.LoginResponse{}, nil
}

func (f *fakeClient) GetUsers(context.Context) ([]market.User, error) {
	f.count("GetUsers")
	if f.getUsers == nil {
		return nil, nil
	}
	return f.getUsers()
}

func (f *fakeClient) CreateUser(_ context.Context, req market.UserRequest) (*market.User, error) {
	f.count("CreateUser")
	if f.createUser == nil {
		return &market.User{Name: req.Name, Email: req.Email}, nil
	}
	return f.createUser(req)
}

func (f *fakeClient) DeleteUser(_ context.Context, id market.ID) error {
	f.count("DeleteUser")
	if f.deleteUser == nil {
		return nil
	}
	return f.deleteUser(id)
}

func (f *fakeClient) GetAccount(_ context.Context, userID market.ID) (*market.Account, error) {
	f.count("GetAccount")
	if f.getAccount == nil {
		return &market.Account{ID: userID}, nil
	}
	return f.getAccount(userID)
}

func (f *fakeClient) AddFunds(_ context.Context, userID market.ID, req market.AddFundsRequest) error {
	f.count("AddFunds")
	if f.addFunds == nil {
		return nil
	}
	return f.addFunds(userID, req)
}

func (f *fakeClient) GetWalletDetails(_ context.Context, userID market.ID) ([]market.WalletHolding, error) {
	f.count("GetWalletDetails")
	if f.getWalletDetails == nil {
		return nil, nil
	}
	return f.getWalletDetails(userID)
}

func (f *fakeClient) Trade(_ context.Context, userID market.ID, req market.TradeRequest) error {
	f.count("Trade")
	if f.trade == nil {
		return nil
	}
	return f.trade(userID, req)
}

func (f *fakeClient) GetTransactions(ctx context.Context, userID market.ID) ([]market.Transaction, error) {
	f.count("GetTransactions")
	if f.getTransactions == nil {
		return nil, nil
	}
	return f.getTransactions(ctx, userID)
}

func (f *fakeClient) GetAssets(_ context.Context, query market.AssetQuery) (*market.AssetPage, error) {
	f.count("GetAssets")
	if f.getAssets == nil {
		return &market.AssetPage{}, nil
	}
	return f.getAssets(query)
}

func (f *fakeClient) CreateAsset(_ context.Context, req market.AssetRequest) (*market.Asset, error) {
	f.count("CreateAsset")
	if f.createAsset == nil {
		return &market.Asset{Symbol: req.Symbol, Name: req.Name, Price: req.Price}, nil
	}
	return f.createAsset(req)
}

func (f *fakeClient) DeleteAsset(_ context.Context, id market.ID) error {
	f.count("DeleteAsset")
	if f.deleteAsset == nil {
		return nil
	}
	return f.deleteAsset(id)
}

func (f *fakeClient) GetAssetHistory(_ context.Context, id market.ID) ([]market.PriceHistoryPoint, error) {
	f.count("GetAssetHistory")
	if f.getAssetHistory == nil {
		return nil, nil
	}
	return f.getAssetHistory(id)
}

// fakeTicker hands every poller the same channel; ticks are sent by the test.
type fakeTicker struct {
	ch      chan time.Time
	started atomic.Int32
	stopped atomic.Int32
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() { f.stopped.Add(1) }

func (f *fakeTicker) factory(time.Duration) scheduler.Ticker {
	f.started.Add(1)
	return f
}

func (f *fakeTicker) tick() { f.ch <- time.Now() }

func (f *fakeTicker) tryTick() bool {
	select {
	case f.ch <- time.Now():
		return true
	case <-time.After(20 * time.Millisecond):
		return false
	}
}

type harness struct {
	client *fakeClient
	store  *session.Store
	mem    *storage.Memory
	ticker *fakeTicker
	deps   *views.Deps
	nav    *views.Navigator
}

func newHarness(t *testing.T, client *fakeClient) *harness {
	t.Helper()
	logger := utils.NewDiscardLogger()
	mem := storage.NewMemory()
	store := session.NewStore(mem, logger)
	ticker := newFakeTicker()

	deps := &views.Deps{
		Client:       client,
		Session:      store,
		Storage:      mem,
		Logger:       logger,
		PollInterval: 10 * time.Second,
		HintTTL:      time.Minute,
		NewTicker:    ticker.factory,
	}

	ctx, cancel := context.WithCancel(context.Background())
	nav := views.NewNavigator(ctx, store, logger)
	nav.Register(views.NewLoginPage(deps))
	nav.Register(views.NewUsersPage(deps))
	nav.Register(views.NewAssetsPage(deps))
	nav.Register(views.NewWalletPage(deps))
	nav.Register(views.NewTransactionsPage(deps))
	t.Cleanup(func() {
		nav.Close()
		cancel()
	})

	return &harness{client: client, store: store, mem: mem, ticker: ticker, deps: deps, nav: nav}
}

func (h *harness) open(t *testing.T, name string) views.Page {
	t.Helper()
	page, err := h.nav.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	return page
}
