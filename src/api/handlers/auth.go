package handlers

import (
	"context"
	"net/http"

	"stockdesk/src/clients/market"
	"stockdesk/src/utils"
	"stockdesk/src/views"
)

// landingPage is where a fresh login goes.
const landingPage = views.WalletPageName

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Session.Snapshot(), http.StatusOK)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req market.LoginRequest
	if err := h.decode(r, &req); err != nil {
		h.HandleErrors(w, err)
		return
	}

	if _, err := h.Pages.Login.Login(ctx, req); err != nil {
		if market.IsSessionExpired(err) {
			h.HandleErrors(w, utils.Unauthorized("invalid username or password"))
			return
		}
		h.HandleErrors(w, err)
		return
	}

	page, err := h.Navigator.Open(landingPage)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respondView(w, r, page, http.StatusOK)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req market.RegisterRequest
	if err := h.decode(r, &req); err != nil {
		h.HandleErrors(w, err)
		return
	}

	if err := h.Pages.Login.Register(ctx, req); err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, h.Pages.Login.View(), http.StatusCreated)
}

// Logout always ends on the login page, even if the backend call failed.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.Pages.Login.Logout(ctx); err != nil {
		utils.LoggerFromContext(r.Context(), h.Logger).WithError(err).Warn("logout finished locally only")
	}
	page, err := h.Navigator.Open(views.LoginPageName)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respondView(w, r, page, http.StatusOK)
}
