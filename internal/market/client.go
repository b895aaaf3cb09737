// Package market fetches per-stock, per-date facts from a FinMind-style
// market data API.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/bull/twstock-rag/internal/document"
)

const (
	datasetPrice      = "TaiwanStockPrice"
	datasetStatements = "TaiwanStockFinancialStatements"
)

// Client talks to the market data provider. It performs no retries itself;
// classification into retryable and terminal errors is its whole contract,
// the orchestrator owns the retry policy.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a provider client. token may be empty (unauthenticated
// access with a lower quota).
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch returns the facts for one (security, date, category) item.
func (c *Client) Fetch(ctx context.Context, securityID string, date time.Time, category document.Category) (document.Facts, error) {
	switch category {
	case document.CategoryPriceTechnical:
		return c.fetchPrice(ctx, securityID, date)
	case document.CategoryFundamental:
		return c.fetchFundamentals(ctx, securityID, date)
	default:
		return nil, fmt.Errorf("%w: unknown category %q", ErrNotFound, category)
	}
}

// apiResponse is the provider's envelope: a status code, a message, and a
// dataset-shaped row list.
type apiResponse struct {
	Status int               `json:"status"`
	Msg    string            `json:"msg"`
	Data   []json.RawMessage `json:"data"`
}

type priceRow struct {
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
	Open   float64 `json:"open"`
	High   float64 `json:"max"`
	Low    float64 `json:"min"`
	Volume int64   `json:"Trading_Volume"`
	Spread float64 `json:"spread"`
}

type statementRow struct {
	Date            string  `json:"date"`
	Revenue         float64 `json:"revenue"`
	OperatingIncome float64 `json:"OperatingIncome"`
	NetIncome       float64 `json:"NetIncome"`
	EPS             float64 `json:"eps"`
}

// indicatorLookbackDays is the calendar window fetched per price item. It
// covers the 60-day moving average plus the MACD warmup in trading days.
const indicatorLookbackDays = 200

func (c *Client) fetchPrice(ctx context.Context, securityID string, date time.Time) (document.Facts, error) {
	day := date.Format(time.DateOnly)
	start := date.AddDate(0, 0, -indicatorLookbackDays).Format(time.DateOnly)
	rows, err := c.get(ctx, datasetPrice, securityID, start, day)
	if err != nil {
		return nil, err
	}

	history := make([]priceRow, 0, len(rows))
	for _, raw := range rows {
		var row priceRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("%w: decode price row: %v", ErrTransient, err)
		}
		if row.Date > day {
			continue
		}
		history = append(history, row)
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Date < history[j].Date })

	if len(history) == 0 || history[len(history)-1].Date != day {
		return nil, fmt.Errorf("%w: %s has no quote for %s", ErrNotFound, securityID, day)
	}

	closes := make([]float64, len(history))
	highs := make([]float64, len(history))
	lows := make([]float64, len(history))
	for i, row := range history {
		closes[i] = row.Close
		highs[i] = row.High
		lows[i] = row.Low
	}

	latest := history[len(history)-1]
	facts := &document.PriceTechnicalFacts{
		Close:  &latest.Close,
		Volume: latest.Volume,
	}
	if prev := latest.Close - latest.Spread; prev > 0 {
		facts.ChangePct = latest.Spread / prev * 100
	}

	facts.MA5 = latestSMA(closes, 5)
	facts.MA20 = latestSMA(closes, 20)
	facts.MA60 = latestSMA(closes, 60)
	facts.RSI14 = latestRSI(closes, 14)
	facts.MACD, facts.MACDSignal = latestMACD(closes)
	facts.BBHigh, facts.BBLow = latestBollinger(closes)
	facts.K, facts.D = latestStochastic(highs, lows, closes)
	return facts, nil
}

func (c *Client) fetchFundamentals(ctx context.Context, securityID string, date time.Time) (document.Facts, error) {
	// Statements are published quarterly; look back far enough to find the
	// latest one at or before the requested date.
	start := date.AddDate(-2, 0, 0).Format(time.DateOnly)
	rows, err := c.get(ctx, datasetStatements, securityID, start, date.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s has no financial statements", ErrNotFound, securityID)
	}

	var latest statementRow
	if err := json.Unmarshal(rows[len(rows)-1], &latest); err != nil {
		return nil, fmt.Errorf("%w: decode statement row: %v", ErrTransient, err)
	}

	facts := &document.FundamentalFacts{
		ReportDate:      latest.Date,
		Revenue:         &latest.Revenue,
		OperatingIncome: latest.OperatingIncome,
		NetIncome:       latest.NetIncome,
		EPS:             latest.EPS,
	}

	// Latest close feeds the P/E line; a missing quote just omits it.
	if price, err := c.fetchPrice(ctx, securityID, date); err == nil {
		facts.Price = *price.(*document.PriceTechnicalFacts).Close
	}
	return facts, nil
}

func (c *Client) get(ctx context.Context, dataset, securityID, startDate, endDate string) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("dataset", dataset)
	params.Set("data_id", securityID)
	params.Set("start_date", startDate)
	params.Set("end_date", endDate)
	if c.token != "" {
		params.Set("token", c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransient, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusPaymentRequired:
		// The provider signals quota exhaustion with 402.
		return nil, fmt.Errorf("%w: HTTP %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: HTTP 404", ErrNotFound)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTransient, err)
	}
	if body.Status != 0 && body.Status != http.StatusOK {
		return nil, fmt.Errorf("%w: provider status %d: %s", ErrTransient, body.Status, body.Msg)
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("%w: empty dataset %s for %s", ErrNotFound, dataset, securityID)
	}
	return body.Data, nil
}
