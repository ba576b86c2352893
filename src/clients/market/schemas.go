package market

import (
	"bytes"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// the backend parses amounts and prices as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// ID is an identifier assigned by the backend. It accepts JSON numbers and
// strings, and goes back out as a number whenever it looks like one.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

type TradeType string

const (
	Buy  TradeType = "BUY"
	Sell TradeType = "SELL"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the server-asserted identity returned by login and /auth/me.
type LoginResponse struct {
	UserID ID     `json:"userId"`
	Role   string `json:"role"`
}

type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
}

// DisplayName prefers the login name, falling back to the display name.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Name
}

type UserRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type Account struct {
	ID             ID              `json:"id"`
	Username       string          `json:"username,omitempty"`
	Email          string          `json:"email,omitempty"`
	AccountBalance decimal.Decimal `json:"accountBalance"`
	Profit         decimal.Decimal `json:"profit"`
}

type AddFundsRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type Asset struct {
	ID     ID              `json:"id"`
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

type AssetRequest struct {
	Symbol string          `json:"symbol" validate:"required"`
	Name   string          `json:"name" validate:"required"`
	Price  decimal.Decimal `json:"price"`
}

type AssetPage struct {
	Content       []Asset `json:"content"`
	Page          int     `json:"page"`
	Size          int     `json:"size"`
	TotalElements int     `json:"totalElements"`
	TotalPages    int     `json:"totalPages"`
}

// AssetQuery maps to the page, size, search, sortBy and sortDirection parameters.
// A zero Size asks for the plain, unpaged list.
type AssetQuery struct {
	Page          int    `json:"page"`
	Size          int    `json:"size"`
	Search        string `json:"search,omitempty"`
	SortBy        string `json:"sortBy,omitempty"`
	SortDirection string `json:"sortDirection,omitempty"`
}

func (q AssetQuery) Values() url.Values {
	params := url.Values{}
	if q.Size > 0 {
		params.Set("page", strconv.Itoa(q.Page))
		params.Set("size", strconv.Itoa(q.Size))
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.SortBy != "" {
		params.Set("sortBy", q.SortBy)
		direction := strings.ToLower(q.SortDirection)
		if direction != "desc" {
			direction = "asc"
		}
		params.Set("sortDirection", direction)
	}
	return params
}

// WalletHolding is one asset in a wallet. The backend names the asset id "id";
// "assetId" is accepted as well.
type WalletHolding struct {
	AssetID ID              `json:"assetId"`
	Symbol  string          `json:"symbol"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Amount  decimal.Decimal `json:"amount"`
}

func (h *WalletHolding) UnmarshalJSON(data []byte) error {
	type plain WalletHolding
	var raw struct {
		plain
		ID ID `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = WalletHolding(raw.plain)
	if h.AssetID == "" {
		h.AssetID = raw.ID
	}
	return nil
}

// Value is amount × price at the last known price.
func (h WalletHolding) Value() decimal.Decimal {
	return h.Amount.Mul(h.Price)
}

type TradeRequest struct {
	AssetID ID              `json:"assetId" validate:"required"`
	Amount  decimal.Decimal `json:"amount"`
	Type    TradeType       `json:"type" validate:"required,oneof=BUY SELL"`
}

type Transaction struct {
	ID          ID              `json:"id"`
	Type        TradeType       `json:"type"`
	AssetSymbol string          `json:"assetSymbol"`
	AssetName   string          `json:"assetName"`
	Amount      decimal.Decimal `json:"amount"`
	Price       decimal.Decimal `json:"price"`
	TotalValue  decimal.Decimal `json:"totalValue"`
	Timestamp   string          `json:"timestamp"`
}

type PriceHistoryPoint struct {
	Timestamp string          `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Time parses the backend's timestamp, which may come without a zone.
func (p PriceHistoryPoint) Time() (time.Time, bool) {
	return ParseTimestamp(p.Timestamp)
}

func ParseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SortHistory orders points by timestamp ascending. Unparseable timestamps
// are compared as strings, which keeps ISO-8601 values in order.
func SortHistory(points []PriceHistoryPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		ti, okI := points[i].Time()
		tj, okJ := points[j].Time()
		if okI && okJ {
			return ti.Before(tj)
		}
		return points[i].Timestamp < points[j].Timestamp
	})
}
