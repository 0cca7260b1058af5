package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/kalshibot/pkg/logger"
	"github.com/betbot/kalshibot/pkg/ratelimit"
)

// API hosts. The demo environment uses separate credentials.
const (
	ProdHost = "https://api.elections.kalshi.com"
	DemoHost = "https://demo-api.kalshi.co"

	apiPrefix = "/trade-api/v2"
)

// Client is an authenticated REST client for the exchange. Every call
// is one signed round trip; nothing is cached and nothing is retried
// here. Callers own the retry policy.
type Client struct {
	auth   *Auth
	http   *resty.Client
	limits *ratelimit.Manager
}

// NewClient builds a client for the given host. The signer must
// already hold a loaded key.
func NewClient(host string, auth *Auth) *Client {
	host = strings.TrimRight(host, "/")
	if host == "" {
		host = ProdHost
	}
	return &Client{
		auth: auth,
		http: resty.New().
			SetBaseURL(host).
			SetTimeout(30 * time.Second).
			SetRetryCount(0),
		limits: ratelimit.NewManager(),
	}
}

// do signs and performs one request. path is the exact string that is
// sent on the wire, query included; the signature is computed over it.
func (c *Client) do(ctx context.Context, class, method, path string, body, out any) error {
	if err := c.limits.Wait(ctx, class); err != nil {
		return err
	}

	headers, err := c.auth.SignRequest(method, path)
	if err != nil {
		return err
	}

	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}

	var resp *resty.Response
	switch method {
	case http.MethodGet:
		resp, err = req.Get(path)
	case http.MethodPost:
		resp, err = req.Post(path)
	case http.MethodDelete:
		resp, err = req.Delete(path)
	default:
		return errors.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}

	if resp.StatusCode() != http.StatusOK {
		bodyText := string(resp.Body())
		logger.WithFields(map[string]interface{}{
			"status": resp.StatusCode(),
			"path":   path,
			"body":   truncate(bodyText, 512),
		}).Errorf("exchange request failed")
		return &StatusError{Code: resp.StatusCode(), Body: bodyText}
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return errors.Wrapf(err, "decode %s %s", method, path)
		}
	}
	return nil
}

// GetMarkets lists markets, optionally filtered by status.
func (c *Client) GetMarkets(ctx context.Context, limit int, status string) (*MarketsResponse, error) {
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("%s/markets?limit=%d", apiPrefix, limit)
	if status != "" {
		path += "&status=" + status
	}
	out := new(MarketsResponse)
	if err := c.do(ctx, ratelimit.ClassRead, http.MethodGet, path, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEvents lists events with nested markets. cursor comes from a
// previous page and is passed back exactly as received; iterate until
// the response cursor is empty.
func (c *Client) GetEvents(ctx context.Context, limit int, status, cursor string) (*EventsResponse, error) {
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("%s/events?limit=%d&with_nested_markets=true", apiPrefix, limit)
	if status != "" {
		path += "&status=" + status
	}
	if cursor != "" {
		path += "&cursor=" + cursor
	}
	out := new(EventsResponse)
	if err := c.do(ctx, ratelimit.ClassRead, http.MethodGet, path, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMarket fetches one market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*MarketResponse, error) {
	path := apiPrefix + "/markets/" + ticker
	out := new(MarketResponse)
	if err := c.do(ctx, ratelimit.ClassRead, http.MethodGet, path, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrderbook fetches the resting book for one market.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*OrderbookResponse, error) {
	path := apiPrefix + "/markets/" + ticker + "/orderbook"
	out := new(OrderbookResponse)
	if err := c.do(ctx, ratelimit.ClassRead, http.MethodGet, path, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBalance fetches the portfolio cash balance.
func (c *Client) GetBalance(ctx context.Context) (*BalanceResponse, error) {
	path := apiPrefix + "/portfolio/balance"
	out := new(BalanceResponse)
	if err := c.do(ctx, ratelimit.ClassRead, http.MethodGet, path, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOrder submits an order payload. Idempotency rests entirely on
// the client_order_id inside the payload.
func (c *Client) CreateOrder(ctx context.Context, payload any) (*CreateOrderResponse, error) {
	path := apiPrefix + "/portfolio/orders"
	out := new(CreateOrderResponse)
	if err := c.do(ctx, ratelimit.ClassOrder, http.MethodPost, path, payload, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CancelOrder cancels a resting order by exchange order id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*CancelOrderResponse, error) {
	path := apiPrefix + "/portfolio/orders/" + orderID
	out := new(CancelOrderResponse)
	if err := c.do(ctx, ratelimit.ClassOrder, http.MethodDelete, path, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOrderGroup registers an exchange-side order group capped at
// contractsLimit contracts.
func (c *Client) CreateOrderGroup(ctx context.Context, contractsLimit int) (*CreateOrderGroupResponse, error) {
	path := apiPrefix + "/portfolio/order_groups/create"
	body := map[string]any{"contracts_limit": contractsLimit}
	out := new(CreateOrderGroupResponse)
	if err := c.do(ctx, ratelimit.ClassOrder, http.MethodPost, path, body, out); err != nil {
		return nil, err
	}
	return out, nil
}

// HealthCheck is a liveness probe: fetch one market and report whether
// it worked. Errors are logged, not propagated.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if _, err := c.GetMarkets(ctx, 1, ""); err != nil {
		logger.Warnf("health check failed: %v", err)
		return false
	}
	return true
}
