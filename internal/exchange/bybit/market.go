package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

// KlineParams holds parameters for fetching historical bars
type KlineParams struct {
	Instrument string
	Interval   string // "1", "5", "60", "D" per Bybit kline intervals
	Start      *time.Time
	End        *time.Time
	Limit      int // max 1000, default 200
}

// GetKlines fetches historical bars for backfilling the engine's history
// store. Bars come back in ascending timestamp order.
func (c *Client) GetKlines(ctx context.Context, params KlineParams) ([]types.PriceBar, error) {
	if params.Interval == "" {
		params.Interval = "60"
	}
	if params.Limit == 0 {
		params.Limit = 200
	}
	if params.Limit > 1000 {
		params.Limit = 1000
	}

	reqParams := map[string]interface{}{
		"category": c.category,
		"symbol":   toSymbol(params.Instrument),
		"interval": params.Interval,
		"limit":    params.Limit,
	}
	if params.Start != nil {
		reqParams["start"] = params.Start.UnixMilli()
	}
	if params.End != nil {
		reqParams["end"] = params.End.UnixMilli()
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(reqParams).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}
	return parseKlineResponse(result)
}

// GetSnapshot fetches the current ticker as a market snapshot.
func (c *Client) GetSnapshot(ctx context.Context, instrument string) (*types.MarketSnapshot, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   toSymbol(instrument),
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickers: %w", err)
	}

	serverResp, ok := interface{}(result).(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	var tickerResult struct {
		List []struct {
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			LastPrice string `json:"lastPrice"`
			Volume24h string `json:"volume24h"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &tickerResult); err != nil {
		return nil, fmt.Errorf("failed to parse ticker response: %w", err)
	}
	if len(tickerResult.List) == 0 {
		return nil, fmt.Errorf("no ticker data for %s", instrument)
	}

	t := tickerResult.List[0]
	bid, _ := strconv.ParseFloat(t.Bid1Price, 64)
	ask, _ := strconv.ParseFloat(t.Ask1Price, 64)
	volume, _ := strconv.ParseFloat(t.Volume24h, 64)
	mid := (bid + ask) / 2
	if bid == 0 || ask == 0 {
		mid, _ = strconv.ParseFloat(t.LastPrice, 64)
	}

	return &types.MarketSnapshot{
		Instrument: instrument,
		Bid:        bid,
		Ask:        ask,
		Mid:        mid,
		Spread:     ask - bid,
		Volume:     volume,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// parseKlineResponse converts the Bybit kline payload into price bars.
// Bybit returns candles newest first; the engine wants oldest first.
func parseKlineResponse(response interface{}) ([]types.PriceBar, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	var klineResult struct {
		Symbol string     `json:"symbol"`
		List   [][]string `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &klineResult); err != nil {
		return nil, fmt.Errorf("failed to parse kline response: %w", err)
	}

	bars := make([]types.PriceBar, 0, len(klineResult.List))
	for _, raw := range klineResult.List {
		if len(raw) < 6 {
			continue
		}
		ts, err := strconv.ParseInt(raw[0], 10, 64)
		if err != nil {
			continue
		}
		open, _ := strconv.ParseFloat(raw[1], 64)
		high, _ := strconv.ParseFloat(raw[2], 64)
		low, _ := strconv.ParseFloat(raw[3], 64)
		closePrice, _ := strconv.ParseFloat(raw[4], 64)
		volume, _ := strconv.ParseFloat(raw[5], 64)

		bars = append(bars, types.PriceBar{
			Timestamp: time.UnixMilli(ts).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	return bars, nil
}
