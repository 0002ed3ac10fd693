package bybit

import (
	"testing"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

func TestToSymbol(t *testing.T) {
	assert.Equal(t, "EURUSD", toSymbol("EUR_USD"))
	assert.Equal(t, "XAUUSD", toSymbol("XAU_USD"))
	assert.Equal(t, "BTCUSDT", toSymbol("BTCUSDT"))
}

func TestSideString(t *testing.T) {
	assert.Equal(t, "Buy", sideString(types.SideBuy))
	assert.Equal(t, "Sell", sideString(types.SideSell))
}

func TestParseOrderID(t *testing.T) {
	id, err := parseOrderID(&bybit_api.ServerResponse{
		RetCode: 0,
		Result:  map[string]interface{}{"orderId": "1234", "orderLinkId": "link-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1234", id)
}

func TestParseOrderID_APIError(t *testing.T) {
	_, err := parseOrderID(&bybit_api.ServerResponse{RetCode: 10001, RetMsg: "params error"})
	assert.Error(t, err)
}

func TestParseKlineResponse_SortsOldestFirst(t *testing.T) {
	// Bybit returns newest candles first
	resp := &bybit_api.ServerResponse{
		RetCode: 0,
		Result: map[string]interface{}{
			"symbol": "EURUSD",
			"list": [][]string{
				{"1717340400000", "1.102", "1.103", "1.101", "1.1025", "900", "0"},
				{"1717336800000", "1.100", "1.102", "1.099", "1.1015", "1100", "0"},
			},
		},
	}

	bars, err := parseKlineResponse(resp)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
	assert.Equal(t, 1.1015, bars[0].Close)
	assert.Equal(t, 1.1025, bars[1].Close)
}
