package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"stockdesk/src/config"
	"stockdesk/src/utils/requests"

	"github.com/sirupsen/logrus"
)

const apiPrefix = "/api/v1"

type MarketServiceClientI interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Register(ctx context.Context, req RegisterRequest) error
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*LoginResponse, error)

	GetUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, req UserRequest) (*User, error)
	DeleteUser(ctx context.Context, id ID) error
	GetAccount(ctx context.Context, userID ID) (*Account, error)
	AddFunds(ctx context.Context, userID ID, req AddFundsRequest) error

	GetWalletDetails(ctx context.Context, userID ID) ([]WalletHolding, error)
	Trade(ctx context.Context, userID ID, req TradeRequest) error
	GetTransactions(ctx context.Context, userID ID) ([]Transaction, error)

	GetAssets(ctx context.Context, query AssetQuery) (*AssetPage, error)
	CreateAsset(ctx context.Context, req AssetRequest) (*Asset, error)
	DeleteAsset(ctx context.Context, id ID) error
	GetAssetHistory(ctx context.Context, id ID) ([]PriceHistoryPoint, error)
}

var (
	opLogin        = operation{"auth", "not allowed to log in", "login failed"}
	opRegister     = operation{"auth", "not allowed to register", "registration failed"}
	opLogout       = operation{"auth", "not allowed to log out", "logout failed"}
	opMe           = operation{"auth", "not allowed to read the session", "failed to confirm the session"}
	opListUsers    = operation{"users", "not allowed to view users list", "failed to fetch users"}
	opCreateUser   = operation{"users", "not allowed to add users", "failed to add user"}
	opDeleteUser   = operation{"users", "not allowed to delete users", "failed to delete user"}
	opAccount      = operation{"account", "not allowed to view this account", "failed to fetch account"}
	opAddFunds     = operation{"account", "not allowed to add funds to this account", "failed to add funds"}
	opWallet       = operation{"wallet", "not allowed to view this wallet", "failed to fetch wallet"}
	opTrade        = operation{"wallet", "not allowed to trade from this wallet", "trade failed"}
	opTransactions = operation{"transactions", "not allowed to view these transactions", "failed to fetch transactions"}
	opListAssets   = operation{"assets", "not allowed to view assets", "failed to fetch assets"}
	opCreateAsset  = operation{"assets", "not allowed to add assets", "failed to add asset"}
	opDeleteAsset  = operation{"assets", "not allowed to delete assets", "failed to delete asset"}
	opHistory      = operation{"assets", "not allowed to view price history", "failed to fetch price history"}
)

// MarketServiceClient talks to the stock market backend. It only reports
// outcomes; reacting to an expired session is up to the caller.
type MarketServiceClient struct {
	API    *requests.ExternalAPIService
	Logger *logrus.Logger
}

// NewClient creates a new instance of MarketServiceClient
func NewClient(cfg *config.Config, logger *logrus.Logger) (*MarketServiceClient, error) {
	api, err := requests.NewExternalAPIService(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
	if err != nil {
		return nil, err
	}
	api.WithRetries(cfg.Backend.Retries, cfg.Backend.RetryDelay)
	return &MarketServiceClient{API: api, Logger: logger}, nil
}

// do runs one call and decodes a 2xx body into out when out is not nil.
func (c *MarketServiceClient) do(ctx context.Context, op operation, method, endpoint string, params url.Values, body, out interface{}) error {
	var (
		resp *http.Response
		err  error
	)
	switch method {
	case http.MethodGet:
		resp, err = c.API.Get(ctx, endpoint, params)
	case http.MethodPost:
		resp, err = c.API.Post(ctx, endpoint, params, body)
	case http.MethodPut:
		resp, err = c.API.Put(ctx, endpoint, params, body)
	case http.MethodDelete:
		resp, err = c.API.Delete(ctx, endpoint, params)
	default:
		return fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return &UnreachableError{Resource: op.resource, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		mapped := mapResponseError(op, resp)
		c.Logger.WithFields(logrus.Fields{
			"resource": op.resource,
			"status":   resp.StatusCode,
		}).WithError(mapped).Info("backend call rejected")
		return mapped
	}

	if out == nil {
		return nil
	}
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UnreachableError{Resource: op.resource, Cause: err}
	}
	if len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return &RequestFailedError{
			Resource:   op.resource,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s: unexpected response", op.failed),
		}
	}
	return nil
}

func userPath(userID ID, suffix string) string {
	return fmt.Sprintf("%s/users/%s%s", apiPrefix, url.PathEscape(userID.String()), suffix)
}

func assetPath(id ID, suffix string) string {
	return fmt.Sprintf("%s/assets/%s%s", apiPrefix, url.PathEscape(id.String()), suffix)
}

// Login authenticates and lets the backend set the session cookie.
func (c *MarketServiceClient) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var result LoginResponse
	if err := c.do(ctx, opLogin, http.MethodPost, apiPrefix+"/auth/login", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *MarketServiceClient) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, opRegister, http.MethodPost, apiPrefix+"/auth/register", nil, req, nil)
}

// Logout tells the backend to drop the session and forgets local cookies
// whatever the answer was.
func (c *MarketServiceClient) Logout(ctx context.Context) error {
	defer c.API.ClearCookies()
	return c.do(ctx, opLogout, http.MethodPost, apiPrefix+"/auth/logout", nil, nil, nil)
}

// Me returns the identity the backend associates with the current cookies.
func (c *MarketServiceClient) Me(ctx context.Context) (*LoginResponse, error) {
	var result LoginResponse
	if err := c.do(ctx, opMe, http.MethodGet, apiPrefix+"/auth/me", nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *MarketServiceClient) GetUsers(ctx context.Context) ([]User, error) {
	var result []User
	if err := c.do(ctx, opListUsers, http.MethodGet, apiPrefix+"/users", nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *MarketServiceClient) CreateUser(ctx context.Context, req UserRequest) (*User, error) {
	var result User
	if err := c.do(ctx, opCreateUser, http.MethodPost, apiPrefix+"/users", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *MarketServiceClient) DeleteUser(ctx context.Context, id ID) error {
	return c.do(ctx, opDeleteUser, http.MethodDelete, userPath(id, ""), nil, nil, nil)
}

// GetAccount reads the balance and profit of a user.
func (c *MarketServiceClient) GetAccount(ctx context.Context, userID ID) (*Account, error) {
	var result Account
	if err := c.do(ctx, opAccount, http.MethodGet, userPath(userID, ""), nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *MarketServiceClient) AddFunds(ctx context.Context, userID ID, req AddFundsRequest) error {
	return c.do(ctx, opAddFunds, http.MethodPost, userPath(userID, "/add-funds"), nil, req, nil)
}

func (c *MarketServiceClient) GetWalletDetails(ctx context.Context, userID ID) ([]WalletHolding, error) {
	var result []WalletHolding
	if err := c.do(ctx, opWallet, http.MethodGet, userPath(userID, "/wallet/details"), nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *MarketServiceClient) Trade(ctx context.Context, userID ID, req TradeRequest) error {
	return c.do(ctx, opTrade, http.MethodPost, userPath(userID, "/wallet/trade"), nil, req, nil)
}

func (c *MarketServiceClient) GetTransactions(ctx context.Context, userID ID) ([]Transaction, error) {
	var result []Transaction
	if err := c.do(ctx, opTransactions, http.MethodGet, userPath(userID, "/transactions"), nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAssets accepts both the paged object and the plain array the backend
// returns when page and size are omitted.
func (c *MarketServiceClient) GetAssets(ctx context.Context, query AssetQuery) (*AssetPage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, opListAssets, http.MethodGet, apiPrefix+"/assets", query.Values(), nil, &raw); err != nil {
		return nil, err
	}

	result := &AssetPage{Page: query.Page, Size: query.Size}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return result, nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &result.Content); err != nil {
			return nil, &RequestFailedError{Resource: opListAssets.resource, StatusCode: http.StatusOK, Message: opListAssets.failed}
		}
		result.TotalElements = len(result.Content)
		result.TotalPages = 1
		return result, nil
	}
	if err := json.Unmarshal(trimmed, result); err != nil {
		return nil, &RequestFailedError{Resource: opListAssets.resource, StatusCode: http.StatusOK, Message: opListAssets.failed}
	}
	return result, nil
}

func (c *MarketServiceClient) CreateAsset(ctx context.Context, req AssetRequest) (*Asset, error) {
	var result Asset
	if err := c.do(ctx, opCreateAsset, http.MethodPost, apiPrefix+"/assets", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *MarketServiceClient) DeleteAsset(ctx context.Context, id ID) error {
	return c.do(ctx, opDeleteAsset, http.MethodDelete, assetPath(id, ""), nil, nil, nil)
}

// GetAssetHistory returns the points ordered by timestamp ascending.
func (c *MarketServiceClient) GetAssetHistory(ctx context.Context, id ID) ([]PriceHistoryPoint, error) {
	var result []PriceHistoryPoint
	if err := c.do(ctx, opHistory, http.MethodGet, assetPath(id, "/history"), nil, nil, &result); err != nil {
		return nil, err
	}
	SortHistory(result)
	return result, nil
}
