package kalshi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/betbot/kalshibot/pkg/logger"
)

const wsPath = "/trade-api/ws/v2"

// Channels the exchange streams over the websocket.
const (
	ChannelTicker         = "ticker"
	ChannelOrderbookDelta = "orderbook_delta"
	ChannelTrades         = "trades"
	ChannelFill           = "fill"
)

// StreamMessage is one frame from the exchange, with the payload left
// raw for the consumer to decode per channel.
type StreamMessage struct {
	Type string          `json:"type"`
	SID  int             `json:"sid"`
	Msg  json.RawMessage `json:"msg"`
}

type wsCommand struct {
	ID     int      `json:"id"`
	Cmd    string   `json:"cmd"`
	Params wsParams `json:"params"`
}

type wsParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

// StreamClient maintains a signed websocket session to the exchange's
// market data feed. It reconnects with capped backoff and replays
// subscriptions after each reconnect.
type StreamClient struct {
	wsURL string
	auth  *Auth

	conn   *websocket.Conn
	connMu sync.Mutex

	subs  []wsParams
	subMu sync.Mutex

	msgC   chan StreamMessage
	nextID int

	cancel  context.CancelFunc
	doneC   chan struct{}
	started bool
	startMu sync.Mutex
}

// NewStreamClient builds a stream client for an API host. The http(s)
// host is rewritten to its ws(s) equivalent.
func NewStreamClient(host string, auth *Auth) *StreamClient {
	host = strings.TrimRight(host, "/")
	wsHost := strings.Replace(host, "https://", "wss://", 1)
	wsHost = strings.Replace(wsHost, "http://", "ws://", 1)
	return &StreamClient{
		wsURL: wsHost + wsPath,
		auth:  auth,
		msgC:  make(chan StreamMessage, 256),
		doneC: make(chan struct{}),
	}
}

// Messages delivers decoded frames. The channel is closed when the
// client stops.
func (c *StreamClient) Messages() <-chan StreamMessage { return c.msgC }

// Start connects and begins the read loop. The websocket upgrade
// request carries the same PSS auth headers as a REST call.
func (c *StreamClient) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.connect(runCtx); err != nil {
		cancel()
		return err
	}
	c.started = true
	go c.run(runCtx)
	return nil
}

// Stop closes the session and the message channel.
func (c *StreamClient) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	c.cancel()

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	select {
	case <-c.doneC:
	case <-time.After(5 * time.Second):
		logger.Warnf("stream: close timed out")
	}
}

// Subscribe adds a channel subscription for the given tickers. It is
// replayed automatically after reconnects.
func (c *StreamClient) Subscribe(channels, tickers []string) error {
	params := wsParams{Channels: channels, MarketTickers: tickers}

	c.subMu.Lock()
	c.subs = append(c.subs, params)
	c.subMu.Unlock()

	return c.sendCommand("subscribe", params)
}

func (c *StreamClient) sendCommand(cmd string, params wsParams) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil // replayed on reconnect
	}
	c.nextID++
	return c.conn.WriteJSON(wsCommand{ID: c.nextID, Cmd: cmd, Params: params})
}

func (c *StreamClient) connect(ctx context.Context) error {
	headers, err := c.auth.SignRequest(http.MethodGet, wsPath)
	if err != nil {
		return err
	}
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, h)
	if err != nil {
		return err
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.replaySubscriptions()
	return nil
}

func (c *StreamClient) replaySubscriptions() {
	c.subMu.Lock()
	subs := make([]wsParams, len(c.subs))
	copy(subs, c.subs)
	c.subMu.Unlock()

	for _, params := range subs {
		if err := c.sendCommand("subscribe", params); err != nil {
			logger.Warnf("stream: resubscribe failed: %v", err)
		}
	}
}

func (c *StreamClient) run(ctx context.Context) {
	defer close(c.doneC)
	defer close(c.msgC)

	go c.pingLoop(ctx)

	backoff := time.Second
	for ctx.Err() == nil {
		err := c.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Warnf("stream: connection lost: %v (reconnecting in %s)", err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}

		if err := c.connect(ctx); err != nil {
			logger.Warnf("stream: reconnect failed: %v", err)
			continue
		}
		backoff = time.Second
	}
}

func (c *StreamClient) readLoop(ctx context.Context) error {
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return websocket.ErrCloseSent
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debugf("stream: undecodable frame: %v", err)
			continue
		}

		select {
		case c.msgC <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Consumer is behind; dropping market data beats blocking
			// the read loop and stalling the whole session.
			logger.Warnf("stream: message buffer full, dropping %s frame", msg.Type)
		}
	}
}

func (c *StreamClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			c.connMu.Unlock()
		}
	}
}
