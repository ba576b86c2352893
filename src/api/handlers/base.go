package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"stockdesk/src/clients/market"
	"stockdesk/src/session"
	"stockdesk/src/utils"
	"stockdesk/src/views"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const requestTimeout = 10 * time.Second

// Pages are the screens the handlers act on directly.
type Pages struct {
	Login        *views.LoginPage
	Users        *views.UsersPage
	Assets       *views.AssetsPage
	Wallet       *views.WalletPage
	Transactions *views.TransactionsPage
}

type Handler struct {
	Navigator      *views.Navigator
	Session        *session.Store
	Pages          Pages
	Logger         *logrus.Logger
	AllowedOrigins []string
}

func NewHandler(nav *views.Navigator, store *session.Store, pages Pages, logger *logrus.Logger) *Handler {
	return &Handler{
		Navigator: nav,
		Session:   store,
		Pages:     pages,
		Logger:    logger,
	}
}

// RequestLogger attaches a logger tagged with the request id to every request.
func (h *Handler) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := h.Logger.WithFields(logrus.Fields{
			"req_id": middleware.GetReqID(r.Context()),
			"path":   r.URL.Path,
		})
		next.ServeHTTP(w, r.WithContext(utils.WithLogger(r.Context(), entry)))
	})
}

func (h *Handler) respond(w http.ResponseWriter, _ *http.Request, data interface{}, status int) {
	res, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(res)
}

// respondView answers with the view of page as the navigator renders it.
func (h *Handler) respondView(w http.ResponseWriter, r *http.Request, page views.Page, status int) {
	h.respond(w, r, h.Navigator.Render(page), status)
}

func (h *Handler) decode(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return utils.BadRequest("invalid request body: " + err.Error())
	}
	return nil
}

// httpError maps err onto the status the local surface answers with.
// Errors it does not recognise are returned unchanged and become a 500.
func httpError(err error) error {
	var httpErr *utils.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.NewHTTPError(http.StatusGatewayTimeout, "Request timed out")
	}
	if errors.Is(err, views.ErrAccessDenied) {
		return utils.Forbidden(err.Error())
	}
	if errors.Is(err, views.ErrNotMounted) {
		return utils.NewHTTPError(http.StatusConflict, err.Error())
	}

	switch market.KindOf(err) {
	case market.KindValidation:
		return utils.BadRequest(err.Error())
	case market.KindSessionExpired:
		return utils.Unauthorized(err.Error())
	case market.KindForbidden:
		return utils.Forbidden(err.Error())
	case market.KindUnreachable:
		return utils.BadGateway(err.Error())
	case market.KindRequestFailed:
		var failed *market.RequestFailedError
		if errors.As(err, &failed) && failed.StatusCode >= 400 {
			return utils.NewHTTPError(failed.StatusCode, err.Error())
		}
		return utils.BadGateway(err.Error())
	}
	return err
}

func (h *Handler) HandleErrors(w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unhandled error")
	}
	mapped := httpError(err)
	var httpErr *utils.HTTPError
	if !errors.As(mapped, &httpErr) || httpErr.Code >= http.StatusInternalServerError {
		h.Logger.WithError(err).Error("page action failed")
	}
	utils.WriteError(w, mapped)
}
