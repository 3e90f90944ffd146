package metricfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"StratGov/pkg/logger"
)

// Client subscribes to a WebSocket metric feed and writes every
// observation into the Store. Reconnects with a fixed delay on read
// failure; the store keeps serving its window while the feed is down.
type Client struct {
	apiKey         string
	url            string
	metrics        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	store          *Store
	log            *logger.Logger

	conn *websocket.Conn
}

// NewClient creates a metric feed client for the named metric series.
func NewClient(apiKey, url string, metrics []string, reconnectDelay, pingInterval time.Duration, store *Store, log *logger.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		apiKey:         apiKey,
		url:            url,
		metrics:        metrics,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		store:          store,
		log:            log,
	}
}

func (c *Client) connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.url, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("metric feed connect: %w", err)
	}
	c.conn = conn

	for _, m := range c.metrics {
		msg := map[string]string{"type": "subscribe", "metric": m}
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return fmt.Errorf("subscribe %s: %w", m, err)
		}
	}
	c.log.Info("metric feed connected", logger.Int("series", len(c.metrics)))
	return nil
}

type feedFrame struct {
	Type string `json:"type"`
	Data []struct {
		Metric string  `json:"metric"`
		Symbol string  `json:"symbol,omitempty"`
		Value  float64 `json:"value"`
		TS     int64   `json:"ts"` // ms
	} `json:"data"`
}

// Run connects and pumps observations into the store until ctx is done,
// reconnecting on failure.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.connect(ctx); err != nil {
			c.log.Error("metric feed connect failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.reconnectDelay):
				continue
			}
		}

		c.pump(ctx)
		_ = c.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// pump reads frames until the connection breaks or ctx is done.
func (c *Client) pump(ctx context.Context) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Warn("metric feed read failed, reconnecting", logger.Error(err))
			return
		}
		var frame feedFrame
		if err := json.Unmarshal(b, &frame); err != nil {
			// Non-data frames (acks, heartbeats) are ignored.
			continue
		}
		if frame.Type != "metric" {
			continue
		}
		for _, d := range frame.Data {
			c.store.Record(Observation{
				Metric:    d.Metric,
				Symbol:    d.Symbol,
				Value:     d.Value,
				Timestamp: time.UnixMilli(d.TS),
			})
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
