package views

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"stockdesk/src/clients/market"
	"stockdesk/src/session"
	"stockdesk/src/utils"
)

const historyCacheTTL = 10 * time.Second

var defaultAssetQuery = market.AssetQuery{Page: 0, Size: 10, SortBy: "name", SortDirection: "asc"}

type AssetsView struct {
	Query       market.AssetQuery `json:"query"`
	Assets      []market.Asset    `json:"assets"`
	TotalPages  int               `json:"totalPages"`
	CanManage   bool              `json:"canManage"`
	ListError   string            `json:"listError,omitempty"`
	ActionError string            `json:"actionError,omitempty"`
}

// AssetsPage lists assets for everyone; adding and deleting is left to the
// backend to allow or refuse.
type AssetsPage struct {
	gate    *Gate
	deps    *Deps
	mutex   sync.Mutex
	view    AssetsView
	history map[market.ID]*utils.Cache[[]market.PriceHistoryPoint]
}

func NewAssetsPage(deps *Deps) *AssetsPage {
	p := &AssetsPage{
		deps:    deps,
		view:    AssetsView{Query: defaultAssetQuery},
		history: make(map[market.ID]*utils.Cache[[]market.PriceHistoryPoint]),
	}
	p.gate = NewGate(AssetsPageName, Public, deps, Hooks{
		Load:  p.load,
		Polls: p.polls,
		Reset: p.reset,
	})
	return p
}

func (p *AssetsPage) Gate() *Gate { return p.gate }

func (p *AssetsPage) View() interface{} {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	view := p.view
	view.Assets = append([]market.Asset(nil), p.view.Assets...)
	return view
}

func (p *AssetsPage) reset() {
	p.mutex.Lock()
	p.view = AssetsView{Query: p.view.Query}
	p.mutex.Unlock()
}

func (p *AssetsPage) load(ctx context.Context, s session.Session) error {
	p.gate.Commit(ctx, func() {
		p.mutex.Lock()
		p.view.CanManage = s.IsAdmin()
		p.mutex.Unlock()
	})
	return nil
}

func (p *AssetsPage) polls(session.Session) []Poll {
	return []Poll{{Name: "assets", Fetch: p.fetch}}
}

func (p *AssetsPage) query() market.AssetQuery {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.view.Query
}

// fetch overwrites the list with whatever response completes last.
func (p *AssetsPage) fetch(ctx context.Context) error {
	query := p.query()
	page, err := p.deps.Client.GetAssets(ctx, query)
	p.gate.Commit(ctx, func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		if err != nil {
			p.view.ListError = err.Error()
			return
		}
		p.view.Assets = page.Content
		p.view.TotalPages = page.TotalPages
		p.view.ListError = ""
	})
	return err
}

// SetQuery changes search, sort or page and fetches right away.
func (p *AssetsPage) SetQuery(ctx context.Context, query market.AssetQuery) error {
	ctx, err := p.gate.Bind(ctx)
	if err != nil {
		return err
	}
	if query.Size <= 0 {
		query.Size = defaultAssetQuery.Size
	}
	if query.Page < 0 {
		query.Page = 0
	}
	if query.SortBy == "" {
		query.SortBy = defaultAssetQuery.SortBy
	}
	query.SortDirection = strings.ToLower(query.SortDirection)
	if query.SortDirection != "desc" {
		query.SortDirection = "asc"
	}
	p.gate.Commit(ctx, func() {
		p.mutex.Lock()
		p.view.Query = query
		p.mutex.Unlock()
	})

	err = p.fetch(ctx)
	p.gate.HandleError(ctx, err)
	return err
}

// AddAsset creates the asset and refetches the current page.
func (p *AssetsPage) AddAsset(ctx context.Context, req market.AssetRequest) (*market.Asset, error) {
	ctx, err := p.gate.Bind(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateForm(req); err != nil {
		p.setActionError(ctx, err)
		return nil, err
	}
	if err := requireNotNegative("price", req.Price); err != nil {
		p.setActionError(ctx, err)
		return nil, err
	}

	asset, err := p.deps.Client.CreateAsset(ctx, req)
	if err != nil {
		if !p.gate.HandleError(ctx, err) {
			p.setActionError(ctx, err)
		}
		return nil, err
	}
	p.setActionError(ctx, nil)

	if err := p.fetch(ctx); err != nil {
		p.gate.HandleError(ctx, err)
	}
	return asset, nil
}

// DeleteAsset removes the asset locally first and restores it if the backend
// refuses. The next poll reconciles either way.
func (p *AssetsPage) DeleteAsset(ctx context.Context, id market.ID) error {
	ctx, err := p.gate.Bind(ctx)
	if err != nil {
		return err
	}

	var (
		removed market.Asset
		index   = -1
	)
	p.gate.Commit(ctx, func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		for i, a := range p.view.Assets {
			if a.ID == id {
				removed, index = a, i
				p.view.Assets = append(append([]market.Asset(nil), p.view.Assets[:i]...), p.view.Assets[i+1:]...)
				break
			}
		}
	})

	err = p.deps.Client.DeleteAsset(ctx, id)
	if err != nil {
		if p.gate.HandleError(ctx, err) {
			return err
		}
		p.gate.Commit(ctx, func() {
			p.mutex.Lock()
			defer p.mutex.Unlock()
			if index >= 0 {
				p.view.Assets = insertAt(p.view.Assets, index, removed)
			}
			p.view.ActionError = err.Error()
		})
		return err
	}

	p.mutex.Lock()
	delete(p.history, id)
	p.mutex.Unlock()
	p.setActionError(ctx, nil)
	return nil
}

func (p *AssetsPage) setActionError(ctx context.Context, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	p.gate.Commit(ctx, func() {
		p.mutex.Lock()
		p.view.ActionError = message
		p.mutex.Unlock()
	})
}

func (p *AssetsPage) historyCache(id market.ID) *utils.Cache[[]market.PriceHistoryPoint] {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	cache, ok := p.history[id]
	if !ok {
		cache = utils.NewCache[[]market.PriceHistoryPoint]()
		p.history[id] = cache
	}
	return cache
}

// History returns the price series of one asset, served from a short cache.
func (p *AssetsPage) History(ctx context.Context, id market.ID) ([]market.PriceHistoryPoint, error) {
	ctx, err := p.gate.Bind(ctx)
	if err != nil {
		return nil, err
	}

	cache := p.historyCache(id)
	if points, ok := cache.Get(); ok {
		return points, nil
	}

	points, err := p.deps.Client.GetAssetHistory(ctx, id)
	if err != nil {
		p.gate.HandleError(ctx, err)
		return nil, err
	}
	cache.Set(points, historyCacheTTL)
	return points, nil
}

func (p *AssetsPage) asset(id market.ID) (market.Asset, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, a := range p.view.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return market.Asset{}, false
}

// Chart builds the chart data of one asset.
func (p *AssetsPage) Chart(ctx context.Context, id market.ID) (ChartData, error) {
	points, err := p.History(ctx, id)
	if err != nil {
		return ChartData{}, err
	}
	title := id.String()
	if asset, ok := p.asset(id); ok {
		title = asset.Name + " (" + asset.Symbol + ")"
	}
	return BuildChartData(title, points), nil
}

// RenderChart writes the price chart of one asset as an HTML page.
func (p *AssetsPage) RenderChart(ctx context.Context, id market.ID, w io.Writer) error {
	data, err := p.Chart(ctx, id)
	if err != nil {
		return err
	}
	return RenderPriceChart(w, data)
}
