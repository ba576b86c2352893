package handlers

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"stockdesk/src/clients/market"
	"stockdesk/src/utils"
	"stockdesk/src/views"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// OpenPage mounts the named page and answers with its first view.
func (h *Handler) OpenPage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.Navigator.Page(name); !ok {
		h.HandleErrors(w, utils.NotFound("unknown page "+name))
		return
	}

	page, err := h.Navigator.Open(name)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respondView(w, r, page, http.StatusOK)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req market.UserRequest
	if err := h.decode(r, &req); err != nil {
		h.HandleErrors(w, err)
		return
	}

	if _, err := h.Pages.Users.AddUser(ctx, req); err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respondView(w, r, h.Pages.Users, http.StatusCreated)
}

// RefreshUsers reloads the user list, dropping local edits. A failed load
// shows up in the view's error.
func (h *Handler) RefreshUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.Pages.Users.Refetch(ctx); err != nil && !listError(err) {
		h.HandleErrors(w, err)
		return
	}
	h.respondView(w, r, h.Pages.Users, http.StatusOK)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id := market.ID(chi.URLParam(r, "id"))
	if err := h.Pages.Users.DeleteUser(ctx, id); err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respondView(w, r, h.Pages.Users, http.StatusOK)
}

func parseAssetQuery(r *http.Request) (market.AssetQuery, error) {
	values := r.URL.Query()
	query := market.AssetQuery{
		Search:        values.Get("search"),
		SortBy:        values.Get("sortBy"),
		SortDirection: values.Get("sortDirection"),
	}
	var err error
	if raw := values.Get("page"); raw != "" {
		if query.Page, err = strconv.Atoi(raw); err != nil {
			return query, utils.BadRequest("page must be a number")
		}
	}
	if raw := values.Get("size"); raw != "" {
		if query.Size, err = strconv.Atoi(raw); err != nil {
			return query, utils.BadRequest("size must be a number")
		}
	}
	return query, nil
}

func listError(err error) bool {
	switch market.KindOf(err) {
	case market.KindRequestFailed, market.KindUnreachable, market.KindForbidden:
		return true
	}
	return false
}

// GetAssets opens the assets page if needed and applies the query.
func (h *Handler) GetAssets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	query, err := parseAssetQuery(r)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}

	if h.Navigator.ActiveName() != views.AssetsPageName {
		if _, err := h.Navigator.Open(views.AssetsPageName); err != nil {
			h.HandleErrors(w, err)
			return
		}
	}
	// A failed list fetch is shown inline in the view.
	if err := h.Pages.Assets.SetQuery(ctx, query); err != nil && !listError(err) {
		h.HandleErrors(w, err)
		return
	}
	h.respondView(w, r, h.Pages.Assets, http.StatusOK)
}

func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req market.AssetRequest
	if err := h.decode(r, &req); err != nil {
		h.HandleErrors(w, err)
		return
	}

	if _, err := h.Pages.Assets.AddAsset(ctx, req); err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respondView(w, r, h.Pages.Assets, http.StatusCreated)
}

func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id := market.ID(chi.URLParam(r, "id"))
	if err := h.Pages.Assets.DeleteAsset(ctx, id); err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respondView(w, r, h.Pages.Assets, http.StatusOK)
}

func (h *Handler) GetAssetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	data, err := h.Pages.Assets.Chart(ctx, market.ID(chi.URLParam(r, "id")))
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, data, http.StatusOK)
}

func (h *Handler) GetAssetChart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var buf bytes.Buffer
	if err := h.Pages.Assets.RenderChart(ctx, market.ID(chi.URLParam(r, "id")), &buf); err != nil {
		h.HandleErrors(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) Trade(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req market.TradeRequest
	if err := h.decode(r, &req); err != nil {
		h.HandleErrors(w, err)
		return
	}

	if err := h.Pages.Wallet.HandleTrade(ctx, req); err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respondView(w, r, h.Pages.Wallet, http.StatusOK)
}

func (h *Handler) AddFunds(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req market.AddFundsRequest
	if err := h.decode(r, &req); err != nil {
		h.HandleErrors(w, err)
		return
	}

	if err := h.Pages.Wallet.HandleAddFunds(ctx, req.Amount); err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respondView(w, r, h.Pages.Wallet, http.StatusOK)
}

// PreviewTrade prices a trade without sending it.
func (h *Handler) PreviewTrade(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	amount, err := decimal.NewFromString(values.Get("amount"))
	if err != nil {
		h.HandleErrors(w, utils.BadRequest("amount must be a number"))
		return
	}
	tradeType := market.TradeType(values.Get("type"))
	if tradeType == "" {
		tradeType = market.Buy
	}

	preview, ok := h.Pages.Wallet.Preview(market.ID(values.Get("assetId")), amount, tradeType)
	if !ok {
		h.HandleErrors(w, utils.NotFound("no preview for this asset and amount"))
		return
	}
	h.respond(w, r, preview, http.StatusOK)
}
