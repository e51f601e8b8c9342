package binancews

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"ChainCast/internal/domain/models"
	drepo "ChainCast/internal/domain/repository"
	applogger "ChainCast/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a LiveStream backed by the Binance trade WebSocket.
type Client struct {
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	subSeq    int
}

// New creates a Binance trade stream client.
func New(websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) drepo.LiveStream {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("binance ws connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	if c.l != nil {
		c.l.Info("binance ws connected", applogger.String("url", c.websocketURL))
	}
	return nil
}

// Subscribe subscribes to the trade stream of every configured symbol.
func (c *Client) Subscribe(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("binance ws not connected")
	}
	params := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		params = append(params, strings.ToLower(s)+"@trade")
	}
	c.subSeq++
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     c.subSeq,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if c.l != nil {
		c.l.Info("binance ws subscribed", applogger.Int("streams", len(params)))
	}
	return nil
}

type wsTrade struct {
	Event    string `json:"e"`
	Symbol   string `json:"s"`
	Price    string `json:"p"`
	Quantity string `json:"q"`
	TradeTs  int64  `json:"T"` // ms
}

// Read streams observations and errors until the context ends or the
// connection drops. Backpressure drops frames instead of blocking the
// read loop.
func (c *Client) Read(ctx context.Context) (<-chan *models.MarketObservation, <-chan error) {
	obs := make(chan *models.MarketObservation, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(obs)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn == nil {
					errs <- fmt.Errorf("binance ws conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("binance ws read: %w", err)
					return
				}
				var t wsTrade
				if err := json.Unmarshal(b, &t); err != nil || t.Event != "trade" {
					// subscription acks and non-trade frames
					continue
				}
				price, err1 := strconv.ParseFloat(t.Price, 64)
				qty, err2 := strconv.ParseFloat(t.Quantity, 64)
				if err1 != nil || err2 != nil {
					continue
				}
				o := &models.MarketObservation{
					Timestamp: t.TradeTs / 1000,
					Price:     price,
					Volume:    qty,
					High:      price,
					Low:       price,
					Open:      price,
					Close:     price,
				}
				select {
				case obs <- o:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return obs, errs
}

// Reconnect closes and reconnects, then re-subscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates connection status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
