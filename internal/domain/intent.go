package domain

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Action is the order direction.
type Action string

// Side is the contract side being priced.
type Side string

// Purpose tags why the strategy placed the order.
type Purpose string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"

	SideYes Side = "yes"
	SideNo  Side = "no"

	PurposeEntry Purpose = "entry"
	PurposeExit  Purpose = "exit"
)

// OrderIntent describes one order a strategy wants to place. It is a
// value object: built once, never mutated. ClientOrderID is the sole
// key used to correlate the submission with its fill or cancellation.
type OrderIntent struct {
	Ticker        string
	Strategy      string
	Purpose       Purpose
	Action        Action
	Side          Side
	PriceCents    int
	Count         int
	PostOnly      bool
	ExpirationTs  int64 // unix seconds, 0 means GTC
	OrderGroupID  string
	ClientOrderID string
	HedgeWith     string // client order id of a paired hedge, optional
}

// NewClientOrderID returns a process-unique order id.
func NewClientOrderID() string {
	return uuid.NewString()
}

// Validate rejects intents the exchange would refuse anyway.
func (oi *OrderIntent) Validate() error {
	if oi.Ticker == "" {
		return errors.New("intent: ticker is empty")
	}
	if oi.ClientOrderID == "" {
		return errors.New("intent: client order id is empty")
	}
	if oi.Action != ActionBuy && oi.Action != ActionSell {
		return errors.Errorf("intent: bad action %q", oi.Action)
	}
	if oi.Side != SideYes && oi.Side != SideNo {
		return errors.Errorf("intent: bad side %q", oi.Side)
	}
	if oi.PriceCents < 1 || oi.PriceCents > 99 {
		return errors.Errorf("intent: price %d out of range", oi.PriceCents)
	}
	if oi.Count <= 0 {
		return errors.Errorf("intent: count %d must be positive", oi.Count)
	}
	return nil
}

// Payload renders the wire format for order submission. The price key
// is yes_price or no_price depending on side; expiration_ts and
// hedge_with_client_order_id appear only when set.
func (oi *OrderIntent) Payload() map[string]any {
	priceField := "yes_price"
	if oi.Side == SideNo {
		priceField = "no_price"
	}
	payload := map[string]any{
		"action":          string(oi.Action),
		"side":            string(oi.Side),
		"ticker":          oi.Ticker,
		priceField:        oi.PriceCents,
		"count":           oi.Count,
		"post_only":       oi.PostOnly,
		"client_order_id": oi.ClientOrderID,
		"order_group_id":  oi.OrderGroupID,
	}
	if oi.ExpirationTs != 0 {
		payload["expiration_ts"] = oi.ExpirationTs
	}
	if oi.HedgeWith != "" {
		payload["hedge_with_client_order_id"] = oi.HedgeWith
	}
	return payload
}
