package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client wraps public REST market data access.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a REST client. An empty baseURL selects the production
// or testnet endpoint.
func NewClient(baseURL string, testnet bool) *Client {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
		if testnet {
			baseURL = "https://testnet.binance.vision"
		}
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetKlines fetches the most recent klines, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var raw [][]any
	if err := c.getJSON(ctx, "/api/v3/klines", params, &raw); err != nil {
		return nil, err
	}

	klines := make([]Kline, 0, len(raw))
	for _, item := range raw {
		// 12 fields per kline; the trailing ones are unused here
		if len(item) < 7 {
			return nil, fmt.Errorf("klines: short row (%d fields)", len(item))
		}
		closePrice, err := toFloat(item[4])
		if err != nil {
			return nil, fmt.Errorf("klines: close price: %w", err)
		}
		open, _ := toFloat(item[1])
		high, _ := toFloat(item[2])
		low, _ := toFloat(item[3])
		volume, _ := toFloat(item[5])
		klines = append(klines, Kline{
			Symbol:    symbol,
			OpenTime:  toInt64(item[0]),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: toInt64(item[6]),
		})
	}
	return klines, nil
}

// GetTickerPrice returns the latest traded price for symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.getJSON(ctx, "/api/v3/ticker/price", params, &resp); err != nil {
		return Ticker{}, err
	}
	price, err := toFloat(resp.Price)
	if err != nil {
		return Ticker{}, fmt.Errorf("ticker: price: %w", err)
	}
	return Ticker{Symbol: resp.Symbol, Price: price, Time: time.Now().UnixMilli()}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("market %s status %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// toFloat parses the venue's string-encoded decimals exactly before
// converting to float64.
func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return 0, err
		}
		return d.InexactFloat64(), nil
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	default:
		return 0
	}
}
