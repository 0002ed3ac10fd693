package telemetry

import (
	"time"

	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// EventType identifies the payload of an Event.
type EventType string

const (
	EventProposal  EventType = "trade_proposal"
	EventOrder     EventType = "order_request"
	EventRejection EventType = "rejection"
	EventExecution EventType = "execution_result"
)

// Event is one structured engine emission. Subscribers decide how or
// whether it is displayed; the engine never knows.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Proposal  *ProposalEvent  `json:"proposal,omitempty"`
	Order     *OrderEvent     `json:"order,omitempty"`
	Rejection *RejectionEvent `json:"rejection,omitempty"`
	Execution *ExecutionEvent `json:"execution,omitempty"`
}

type ProposalEvent struct {
	Instrument      string   `json:"instrument"`
	Side            string   `json:"side"`
	EntryPrice      float64  `json:"entry_price"`
	StopLoss        float64  `json:"stop_loss"`
	TakeProfit      float64  `json:"take_profit"`
	SignalStrength  float64  `json:"signal_strength"`
	ConfluenceCount int      `json:"confluence_count"`
	Factors         []string `json:"factors"`
	Regime          string   `json:"regime"`
}

type OrderEvent struct {
	AccountID  string  `json:"account_id"`
	Instrument string  `json:"instrument"`
	Side       string  `json:"side"`
	Units      float64 `json:"units"`
	EntryPrice float64 `json:"entry_price"`
}

type RejectionEvent struct {
	AccountID  string `json:"account_id,omitempty"`
	Instrument string `json:"instrument,omitempty"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail,omitempty"`
}

type ExecutionEvent struct {
	AccountID     string `json:"account_id"`
	Instrument    string `json:"instrument"`
	Success       bool   `json:"success"`
	BrokerOrderID string `json:"broker_order_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// NewOrderEvent builds an order event from a request.
func NewOrderEvent(order *types.OrderRequest) Event {
	return Event{
		Type:      EventOrder,
		Timestamp: time.Now().UTC(),
		Order: &OrderEvent{
			AccountID:  order.AccountID,
			Instrument: order.Instrument,
			Side:       order.Side.String(),
			Units:      order.Units,
			EntryPrice: order.EntryPrice,
		},
	}
}
