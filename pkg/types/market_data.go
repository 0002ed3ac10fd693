package types

import "time"

// PriceBar is one OHLCV candle. Bars are immutable once appended to a
// history and are ordered per instrument by non-decreasing timestamp.
type PriceBar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// MarketSnapshot is the per-tick quote for one instrument. It is ephemeral
// and never persisted.
type MarketSnapshot struct {
	Instrument string
	Bid        float64
	Ask        float64
	Mid        float64
	Spread     float64
	Volume     float64
	Timestamp  time.Time
}

// Side is the direction of a proposal or order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// OrderRequest is a sized, account-targeted instruction derived from an
// accepted trade proposal. AccountID may be empty, meaning "use the
// default route".
type OrderRequest struct {
	Instrument string
	Side       Side
	Units      float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Confidence float64
	StrategyID string
	AccountID  string
	Timestamp  time.Time
}

// ExecutionResult is what a broker gateway reports back for one order.
type ExecutionResult struct {
	Success       bool
	BrokerOrderID string
	Error         string
}
