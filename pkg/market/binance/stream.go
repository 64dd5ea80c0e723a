package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Trade is one public trade from the <symbol>@trade stream.
type Trade struct {
	Symbol string
	Price  float64
	Qty    float64
	Time   int64 // ms
}

// StreamClient manages lightweight streaming from Binance public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
	log       logrus.FieldLogger
}

// NewStreamClient builds a websocket client. An empty baseURL selects the
// production or testnet host.
func NewStreamClient(baseURL string, testnet bool, log logrus.FieldLogger) *StreamClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if baseURL == "" {
		host := "stream.binance.com:9443"
		if testnet {
			host = "testnet.binance.vision"
		}
		baseURL = (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String()
	}
	return &StreamClient{
		StreamURL: strings.TrimRight(baseURL, "/"),
		dialer:    websocket.DefaultDialer,
		log:       log.WithField("component", "binance-stream"),
	}
}

// SubscribeTrades dials the trade stream and emits parsed trades. The channel
// is closed when the connection ends, ctx is cancelled or stop is called.
func (c *StreamClient) SubscribeTrades(ctx context.Context, symbol string) (<-chan Trade, func(), error) {
	// Binance requires lowercase symbols for WebSocket streams
	u := fmt.Sprintf("%s/%s@trade", c.StreamURL, strings.ToLower(symbol))

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws trades: %w", err)
	}

	out := make(chan Trade, 100)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}

	// unblock ReadMessage on cancellation
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer stop()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if !isClosedErr(err) {
					c.log.WithError(err).Warn("binance ws trade read error")
				}
				return
			}

			parsed, err := parseTradeMessage(msg)
			if err != nil {
				c.log.WithError(err).Debug("binance ws trade parse error")
				continue
			}
			select {
			case out <- parsed:
			case <-done:
				return
			}
		}
	}()

	return out, stop, nil
}

func isClosedErr(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}

func parseTradeMessage(msg []byte) (Trade, error) {
	// encoding/json falls back to case-insensitive key matching, so "E" and
	// "t" need their own fields or they land on "e" and "T".
	var raw struct {
		Event     string `json:"e"`
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		TradeID   int64  `json:"t"`
		Price     any    `json:"p"`
		Qty       any    `json:"q"`
		TradeTime any    `json:"T"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Trade{}, err
	}
	if raw.Event != "" && raw.Event != "trade" {
		return Trade{}, fmt.Errorf("unexpected event %q", raw.Event)
	}
	price, err := toFloat(raw.Price)
	if err != nil {
		return Trade{}, fmt.Errorf("trade price: %w", err)
	}
	qty, _ := toFloat(raw.Qty)
	return Trade{
		Symbol: raw.Symbol,
		Price:  price,
		Qty:    qty,
		Time:   toInt64(raw.TradeTime),
	}, nil
}
