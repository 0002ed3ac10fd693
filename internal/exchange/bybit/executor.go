package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// Executor places engine orders on Bybit. It satisfies the router's
// executor contract; transient broker retries belong to the caller's
// gateway policy, not here.
type Executor struct {
	client *Client
}

// NewExecutor creates a new Bybit order executor
func NewExecutor(client *Client) *Executor {
	return &Executor{client: client}
}

// Execute places a market order with attached stop loss and take profit.
func (e *Executor) Execute(ctx context.Context, order *types.OrderRequest) (*types.ExecutionResult, error) {
	params := map[string]interface{}{
		"category":   e.client.category,
		"symbol":     toSymbol(order.Instrument),
		"side":       sideString(order.Side),
		"orderType":  "Market",
		"qty":        strconv.FormatFloat(order.Units, 'f', -1, 64),
		"takeProfit": strconv.FormatFloat(order.TakeProfit, 'f', -1, 64),
		"stopLoss":   strconv.FormatFloat(order.StopLoss, 'f', -1, 64),
	}

	result, err := e.client.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	orderID, err := parseOrderID(result)
	if err != nil {
		return &types.ExecutionResult{Success: false, Error: err.Error()}, nil
	}
	return &types.ExecutionResult{Success: true, BrokerOrderID: orderID}, nil
}

// parseOrderID extracts the broker order id from a PlaceOrder response.
func parseOrderID(response interface{}) (string, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return "", fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return "", fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	var placed struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(resultBytes, &placed); err != nil {
		return "", fmt.Errorf("failed to parse order response: %w", err)
	}
	if placed.OrderID == "" {
		return "", fmt.Errorf("response carried no order id")
	}
	return placed.OrderID, nil
}

// toSymbol converts an instrument name like EUR_USD to Bybit's EURUSD
// form.
func toSymbol(instrument string) string {
	return strings.ReplaceAll(instrument, "_", "")
}

func sideString(side types.Side) string {
	if side == types.SideSell {
		return "Sell"
	}
	return "Buy"
}
