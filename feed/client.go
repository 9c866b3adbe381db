package feed

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event kinds delivered by the commerce feed
const (
	EventOrderRecorded   = "order_recorded"
	EventHarvestRecorded = "harvest_recorded"
)

// Envelope is one feed message. The feed deliberately carries only the row
// id; the handler re-reads the row from the database so stale or re-ordered
// envelopes never carry stale payloads.
type Envelope struct {
	Event     string `json:"event"` // order_recorded, harvest_recorded
	OrderID   int64  `json:"order_id,omitempty"`
	HarvestID int64  `json:"harvest_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Client represents a WebSocket client for the commerce feed
type Client struct {
	url        string
	conn       *websocket.Conn
	header     http.Header
	writeMu    sync.Mutex
	pingCancel chan struct{}
}

// NewClient creates a new feed client
func NewClient(url string) *Client {
	header := make(http.Header)
	header.Set("User-Agent", "FarmPulse-Feed/1.0")

	return &Client{
		url:    url,
		header: header,
	}
}

// Connect establishes WebSocket connection
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, c.header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.conn = conn
	log.Printf("✅ Connected to %s", c.url)
	return nil
}

// StartPing starts periodic pings to keep the connection alive
func (c *Client) StartPing(interval time.Duration) {
	stop := make(chan struct{})
	c.pingCancel = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.writeControl(websocket.PingMessage); err != nil {
					log.Println("Failed to send ping:", err)
					return
				}
			}
		}
	}()
}

func (c *Client) writeControl(messageType int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return c.conn.WriteControl(messageType, nil, time.Now().Add(5*time.Second))
}

// ReadEnvelope reads and decodes one feed envelope
func (c *Client) ReadEnvelope() (*Envelope, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("connection is nil")
	}

	var env Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Close closes the WebSocket connection
func (c *Client) Close() error {
	if c.pingCancel != nil {
		close(c.pingCancel)
		c.pingCancel = nil
	}

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
