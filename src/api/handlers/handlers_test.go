package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"stockdesk/src/api"
	"stockdesk/src/api/handlers"
	"stockdesk/src/clients/market"
	"stockdesk/src/config"
	"stockdesk/src/scheduler"
	"stockdesk/src/session"
	"stockdesk/src/storage"
	"stockdesk/src/utils"
	"stockdesk/src/views"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backend fakes the market REST API. Handlers left nil answer with an empty
// success.
type backend struct {
	mutex      sync.Mutex
	role       string
	login      http.HandlerFunc
	addFunds   http.HandlerFunc
	lastAssets url.Values
}

func (b *backend) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", func(w http.ResponseWriter, req *http.Request) {
			if b.login != nil {
				b.login(w, req)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "SESSION", Value: "abc", Path: "/"})
			writeJSON(w, map[string]interface{}{"userId": 7, "role": b.role})
		})
		r.Post("/auth/register", func(w http.ResponseWriter, req *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(req.Body).Decode(&body)
			if body["username"] == "taken" {
				http.Error(w, "Username already taken", http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
		})
		r.Post("/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/users", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, []map[string]interface{}{{"id": 1, "name": "Ana", "email": "ana@example.com"}})
		})
		r.Post("/users", func(w http.ResponseWriter, req *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(req.Body).Decode(&body)
			writeJSON(w, map[string]interface{}{"id": 2, "name": body["name"], "email": body["email"]})
		})
		r.Get("/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]interface{}{"id": 7, "accountBalance": 100, "profit": 5})
		})
		r.Post("/users/{id}/add-funds", func(w http.ResponseWriter, req *http.Request) {
			if b.addFunds != nil {
				b.addFunds(w, req)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/users/{id}/wallet/details", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, []map[string]interface{}{{"id": 1, "symbol": "AAPL", "name": "Apple", "price": 10, "amount": 2}})
		})
		r.Get("/assets", func(w http.ResponseWriter, req *http.Request) {
			b.mutex.Lock()
			b.lastAssets = req.URL.Query()
			b.mutex.Unlock()
			writeJSON(w, map[string]interface{}{
				"content":    []map[string]interface{}{{"id": 1, "symbol": "AAPL", "name": "Apple", "price": 10}},
				"totalPages": 1,
			})
		})
		r.Get("/assets/{id}/history", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, []map[string]interface{}{
				{"price": 11, "timestamp": "2024-05-02T10:00:00"},
				{"price": 10, "timestamp": "2024-05-01T10:00:00"},
			})
		})
	})
	return r
}

func (b *backend) assetsQuery() url.Values {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.lastAssets
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type testServer struct {
	ts       *httptest.Server
	sessions *session.Store
	nav      *views.Navigator
}

func newTestServer(t *testing.T, b *backend) *testServer {
	t.Helper()
	fake := httptest.NewServer(b.router())
	t.Cleanup(fake.Close)

	cfg := &config.Config{
		Service: config.ServiceConfig{Port: "0"},
		Backend: config.BackendConfig{BaseURL: fake.URL, Timeout: 2 * time.Second},
	}
	logger := utils.NewDiscardLogger()
	client, err := market.NewClient(cfg, logger)
	require.NoError(t, err)

	mem := storage.NewMemory()
	sessions := session.NewStore(mem, logger)
	deps := &views.Deps{
		Client:       client,
		Session:      sessions,
		Storage:      mem,
		Logger:       logger,
		PollInterval: time.Hour,
		HintTTL:      time.Minute,
		NewTicker:    scheduler.NewTicker,
	}
	pages := handlers.Pages{
		Login:        views.NewLoginPage(deps),
		Users:        views.NewUsersPage(deps),
		Assets:       views.NewAssetsPage(deps),
		Wallet:       views.NewWalletPage(deps),
		Transactions: views.NewTransactionsPage(deps),
	}

	ctx, cancel := context.WithCancel(context.Background())
	nav := views.NewNavigator(ctx, sessions, logger)
	nav.Register(pages.Login)
	nav.Register(pages.Users)
	nav.Register(pages.Assets)
	nav.Register(pages.Wallet)
	nav.Register(pages.Transactions)

	server := api.NewServer(handlers.NewHandler(nav, sessions, pages, logger), cfg)
	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		ts.Close()
		nav.Close()
		cancel()
	})
	return &testServer{ts: ts, sessions: sessions, nav: nav}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	_ = json.Unmarshal(raw, &decoded)
	return res, decoded
}

func (s *testServer) login(t *testing.T) map[string]interface{} {
	t.Helper()
	res, view := s.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "ana", "password": "secret"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	return view
}

func TestHealthcheck(t *testing.T) {
	s := newTestServer(t, &backend{})
	res, err := http.Get(s.ts.URL + "/alive")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", res.Status)
	}
}

func TestLoginOpensWallet(t *testing.T) {
	s := newTestServer(t, &backend{role: "USER"})

	view := s.login(t)
	assert.Equal(t, views.WalletPageName, view["page"])
	assert.Equal(t, string(views.StateAuthorizedReady), view["state"])

	data := view["data"].(map[string]interface{})
	assert.Equal(t, "7", data["userId"])
	assert.Len(t, data["holdings"], 1)

	res, snapshot := s.do(t, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, snapshot["authenticated"])
	assert.Equal(t, string(session.RoleUser), snapshot["role"])
}

func TestLoginWithWrongCredentials(t *testing.T) {
	s := newTestServer(t, &backend{
		login: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Bad credentials", http.StatusUnauthorized)
		},
	})

	res, body := s.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "ana", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid username or password", body["error"])
	assert.False(t, s.sessions.Snapshot().Authenticated)
}

func TestLoginRequiresCredentials(t *testing.T) {
	s := newTestServer(t, &backend{})

	res, body := s.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "ana"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "password is required", body["error"])
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, &backend{})

	res, body := s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"username": "bo", "email": "bo@example.com", "password": "secret",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "account created, you can log in now", body["message"])

	res, body = s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"username": "taken", "email": "bo@example.com", "password": "secret",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "Username already taken", body["error"])
}

func TestWatchStreamsActiveView(t *testing.T) {
	s := newTestServer(t, &backend{role: "USER"})
	s.login(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var view views.PageView
	require.NoError(t, conn.ReadJSON(&view))
	assert.Equal(t, views.WalletPageName, view.Page)
	assert.Equal(t, views.StateAuthorizedReady, view.State)

	res, _ := s.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	for view.Page != views.LoginPageName {
		require.NoError(t, conn.ReadJSON(&view))
	}
	assert.False(t, view.Session.Authenticated)
}

func TestOpenUnknownPage(t *testing.T) {
	s := newTestServer(t, &backend{})

	res, _ := s.do(t, http.MethodGet, "/pages/notifications", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestUsersPageDeniedToNonAdmin(t *testing.T) {
	s := newTestServer(t, &backend{role: "USER"})
	s.login(t)

	res, view := s.do(t, http.MethodGet, "/pages/users", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, string(views.StateUnauthorized), view["state"])

	res, _ = s.do(t, http.MethodPost, "/pages/users", map[string]string{"name": "Bo", "email": "bo@example.com"})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestAdminAddsUser(t *testing.T) {
	s := newTestServer(t, &backend{role: "ADMIN"})
	s.login(t)

	res, view := s.do(t, http.MethodGet, "/pages/users", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, string(views.StateAuthorizedReady), view["state"])

	res, view = s.do(t, http.MethodPost, "/pages/users", map[string]string{"name": "Bo", "email": "bo@example.com"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	users := view["data"].(map[string]interface{})["users"].([]interface{})
	assert.Len(t, users, 2)
}

func TestRefreshUsersDropsLocalEdits(t *testing.T) {
	s := newTestServer(t, &backend{role: "ADMIN"})
	s.login(t)

	res, _ := s.do(t, http.MethodGet, "/pages/users", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, _ = s.do(t, http.MethodPost, "/pages/users", map[string]string{"name": "Bo", "email": "bo@example.com"})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, view := s.do(t, http.MethodPost, "/pages/users/refresh", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	users := view["data"].(map[string]interface{})["users"].([]interface{})
	require.Len(t, users, 1)
	assert.Equal(t, "Ana", users[0].(map[string]interface{})["name"])
}

func TestRefreshUsersWhenUsersPageIsClosed(t *testing.T) {
	s := newTestServer(t, &backend{role: "ADMIN"})
	s.login(t)

	res, _ := s.do(t, http.MethodPost, "/pages/users/refresh", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestActionOnInactivePage(t *testing.T) {
	s := newTestServer(t, &backend{role: "USER"})
	s.login(t)

	res, _ := s.do(t, http.MethodPost, "/pages/assets", map[string]interface{}{"symbol": "X", "name": "X", "price": 1})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestTradeValidation(t *testing.T) {
	s := newTestServer(t, &backend{role: "USER"})
	s.login(t)

	res, body := s.do(t, http.MethodPost, "/pages/wallet/trade", map[string]interface{}{"assetId": 1, "amount": 1})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "type is required", body["error"])
}

func TestExpiredSessionRedirectsToLogin(t *testing.T) {
	s := newTestServer(t, &backend{
		role: "USER",
		addFunds: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	})
	s.login(t)

	res, _ := s.do(t, http.MethodPost, "/pages/wallet/funds", map[string]interface{}{"amount": 50})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	require.Eventually(t, func() bool {
		return s.nav.ActiveName() == views.LoginPageName
	}, time.Second, 10*time.Millisecond)
	assert.False(t, s.sessions.Snapshot().Authenticated)
}

func TestAssetsQuery(t *testing.T) {
	b := &backend{role: "USER"}
	s := newTestServer(t, b)

	res, view := s.do(t, http.MethodGet, "/pages/assets?search=app&sortBy=price&sortDirection=DESC&page=2&size=5", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, views.AssetsPageName, view["page"])

	query := b.assetsQuery()
	assert.Equal(t, "app", query.Get("search"))
	assert.Equal(t, "price", query.Get("sortBy"))
	assert.Equal(t, "desc", query.Get("sortDirection"))
	assert.Equal(t, "2", query.Get("page"))
	assert.Equal(t, "5", query.Get("size"))

	res, _ = s.do(t, http.MethodGet, "/pages/assets?page=two", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestAssetHistoryAndChart(t *testing.T) {
	s := newTestServer(t, &backend{})

	res, _ := s.do(t, http.MethodGet, "/pages/assets", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, data := s.do(t, http.MethodGet, "/pages/assets/1/history", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Apple (AAPL)", data["title"])
	assert.Equal(t, []interface{}{"2024-05-01 10:00:00", "2024-05-02 10:00:00"}, data["labels"])
	assert.Equal(t, float64(11), data["current"])

	chart, err := http.Get(s.ts.URL + "/pages/assets/1/chart")
	require.NoError(t, err)
	defer chart.Body.Close()
	assert.Equal(t, http.StatusOK, chart.StatusCode)
	assert.True(t, strings.HasPrefix(chart.Header.Get("Content-Type"), "text/html"))
}

func TestPreviewTrade(t *testing.T) {
	s := newTestServer(t, &backend{role: "USER"})
	s.login(t)

	res, preview := s.do(t, http.MethodGet, "/pages/wallet/preview?assetId=1&amount=3&type=BUY", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, float64(30), preview["value"])

	res, _ = s.do(t, http.MethodGet, "/pages/wallet/preview?assetId=99&amount=3", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestLogoutReturnsToLogin(t *testing.T) {
	s := newTestServer(t, &backend{role: "USER"})
	s.login(t)

	res, view := s.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, views.LoginPageName, view["page"])
	assert.False(t, s.sessions.Snapshot().Authenticated)
}

func TestHandleErrorsStatuses(t *testing.T) {
	h := handlers.NewHandler(nil, nil, handlers.Pages{}, utils.NewDiscardLogger())

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"http error", utils.NotFound("missing"), http.StatusNotFound},
		{"validation", market.NewValidationError("name", "name is required"), http.StatusBadRequest},
		{"session expired", &market.SessionExpiredError{Resource: "users"}, http.StatusUnauthorized},
		{"forbidden", &market.ForbiddenError{Resource: "users", Message: "no"}, http.StatusForbidden},
		{"access denied", views.ErrAccessDenied, http.StatusForbidden},
		{"not mounted", views.ErrNotMounted, http.StatusConflict},
		{"request failed", &market.RequestFailedError{StatusCode: http.StatusNotFound, Message: "gone"}, http.StatusNotFound},
		{"request failed without status", &market.RequestFailedError{Message: "bad body"}, http.StatusBadGateway},
		{"unreachable", &market.UnreachableError{Cause: errors.New("dial")}, http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleErrors(rec, tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestRequestLoggerTagsEntries(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	h := handlers.NewHandler(nil, nil, handlers.Pages{}, logger)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.LoggerFromContext(r.Context(), nil).Info("handled")
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	middleware.RequestID(h.RequestLogger(next)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.NotEmpty(t, entry.Data["req_id"])
	assert.Equal(t, "/session", entry.Data["path"])
}

func TestHandleErrorsHidesInternalDetails(t *testing.T) {
	h := handlers.NewHandler(nil, nil, handlers.Pages{}, utils.NewDiscardLogger())

	rec := httptest.NewRecorder()
	h.HandleErrors(rec, errors.New("redis: connection pool exhausted"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body["error"])

	rec = httptest.NewRecorder()
	h.HandleErrors(rec, &market.UnreachableError{Cause: errors.New("dial tcp")})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}
