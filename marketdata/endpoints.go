package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNoData = errors.New("no market data for ticker")

type LastTrade struct {
	Ticker    string          `json:"T"`
	Price     decimal.Decimal `json:"p"`
	Size      decimal.Decimal `json:"s"`
	Timestamp int64           `json:"t"` // unix nanoseconds
}

func (lt LastTrade) Time() time.Time {
	return time.Unix(0, lt.Timestamp).UTC()
}

type LastTradeResponse struct {
	StandardResp
	Results *LastTrade `json:"results"`
}

// most recent trade for a stock ticker or an O: option ticker
func (c *Client) LastTrade(ctx context.Context, ticker string) (LastTrade, error) {
	var resp LastTradeResponse
	err := c.get(ctx, "/v2/last/trade/"+ticker, url.Values{}, &resp)
	if err != nil {
		return LastTrade{}, fmt.Errorf("failed to get last trade for %s, %w", ticker, err)
	}
	if resp.Results == nil {
		return LastTrade{}, fmt.Errorf("%s, %w", ticker, ErrNoData)
	}
	return *resp.Results, nil
}

// one daily bar
type Bar struct {
	Open      decimal.Decimal `json:"o"`
	High      decimal.Decimal `json:"h"`
	Low       decimal.Decimal `json:"l"`
	Close     decimal.Decimal `json:"c"`
	Volume    decimal.Decimal `json:"v"`
	VWAP      decimal.Decimal `json:"vw"`
	Timestamp int64           `json:"t"` // unix milliseconds
}

func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

type AggregatesResponse struct {
	StandardResp
	Ticker       string `json:"ticker"`
	ResultsCount int    `json:"resultsCount"`
	Results      []Bar  `json:"results"`
}

// daily bars for ticker between from and to inclusive, oldest first
func (c *Client) Aggregates(ctx context.Context, ticker string, from time.Time, to time.Time) ([]Bar, error) {
	path := fmt.Sprintf(
		"/v2/aggs/ticker/%s/range/1/day/%s/%s",
		ticker, from.Format("2006-01-02"), to.Format("2006-01-02"),
	)
	query := url.Values{}
	query.Set("adjusted", "true")
	query.Set("sort", "asc")

	var resp AggregatesResponse
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("failed to get aggregates for %s, %w", ticker, err)
	}
	return resp.Results, nil
}

// OptionTicker builds the OCC style ticker polygon uses for a contract,
// eg OptionTicker("NVDA", 2025-01-17, "CALL", 118) = "O:NVDA250117C00118000"
func OptionTicker(underlying string, expiration time.Time, optionType string, strike decimal.Decimal) (string, error) {
	var cp string
	switch strings.ToUpper(optionType) {
	case "CALL", "C":
		cp = "C"
	case "PUT", "P":
		cp = "P"
	default:
		return "", fmt.Errorf("invalid option type %q", optionType)
	}

	if !strike.IsPositive() {
		return "", fmt.Errorf("invalid strike %s", strike)
	}

	// strike in thousandths, 8 digits
	milli := strike.Mul(decimal.NewFromInt(1000))
	if !milli.Equal(milli.Truncate(0)) || milli.GreaterThanOrEqual(decimal.NewFromInt(100000000)) {
		return "", fmt.Errorf("strike %s cannot be encoded", strike)
	}

	return fmt.Sprintf(
		"O:%s%s%s%08d",
		strings.ToUpper(underlying), expiration.Format("060102"), cp, milli.IntPart(),
	), nil
}
