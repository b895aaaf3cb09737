package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/twstock-rag/internal/document"
)

func jan2() time.Time {
	return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, rows ...any) {
	t.Helper()
	data := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		raw, err := json.Marshal(row)
		require.NoError(t, err)
		data = append(data, raw)
	}
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"status": 200,
		"msg":    "success",
		"data":   data,
	}))
}

// priceHistory builds n daily rows ending at end. Every close is 600 except
// the final day, which closes at 605 on a spread of 5. Highs and lows track
// the close at +-5.
func priceHistory(n int, end time.Time) []any {
	rows := make([]any, 0, n)
	for i := n - 1; i >= 0; i-- {
		day := end.AddDate(0, 0, -i)
		close, spread, volume := 600.0, 0.0, 20_000_000
		if i == 0 {
			close, spread, volume = 605.0, 5.0, 31_000_000
		}
		rows = append(rows, map[string]any{
			"date":           day.Format(time.DateOnly),
			"close":          close,
			"open":           close - 1,
			"max":            close + 5,
			"min":            close - 5,
			"Trading_Volume": volume,
			"spread":         spread,
		})
	}
	return rows
}

func TestFetchPriceComputesIndicators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "TaiwanStockPrice", q.Get("dataset"))
		assert.Equal(t, "2330", q.Get("data_id"))
		assert.Equal(t, "2024-06-16", q.Get("start_date"))
		assert.Equal(t, "2025-01-02", q.Get("end_date"))
		assert.Equal(t, "secret", q.Get("token"))

		writeEnvelope(t, w, priceHistory(60, jan2())...)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", time.Second)
	facts, err := client.Fetch(context.Background(), "2330", jan2(), document.CategoryPriceTechnical)
	require.NoError(t, err)

	price, ok := facts.(*document.PriceTechnicalFacts)
	require.True(t, ok)
	require.NotNil(t, price.Close)
	assert.Equal(t, 605.0, *price.Close)
	assert.Equal(t, int64(31_000_000), price.Volume)
	// spread 5 on a previous close of 600 is +0.83%.
	assert.InDelta(t, 0.8333, price.ChangePct, 0.001)

	// 59 days at 600 plus one at 605.
	require.NotNil(t, price.MA5)
	assert.InDelta(t, 601.0, *price.MA5, 1e-9)
	require.NotNil(t, price.MA20)
	assert.InDelta(t, 600.25, *price.MA20, 1e-9)
	require.NotNil(t, price.MA60)
	assert.InDelta(t, 600.0+5.0/60, *price.MA60, 1e-9)

	// The only move in the series is a gain, so RSI saturates.
	require.NotNil(t, price.RSI14)
	assert.InDelta(t, 100.0, *price.RSI14, 1e-9)

	require.NotNil(t, price.MACD)
	require.NotNil(t, price.MACDSignal)
	require.NotNil(t, price.BBHigh)
	require.NotNil(t, price.BBLow)
	assert.Greater(t, *price.BBHigh, *price.BBLow)

	// Last 14-day window: high 610, low 595, close 605.
	require.NotNil(t, price.K)
	assert.InDelta(t, 66.667, *price.K, 0.01)
	require.NotNil(t, price.D)
	assert.InDelta(t, 55.556, *price.D, 0.01)
}

func TestFetchPriceShortHistoryOmitsIndicators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, priceHistory(3, jan2())...)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	facts, err := client.Fetch(context.Background(), "2330", jan2(), document.CategoryPriceTechnical)
	require.NoError(t, err)

	price := facts.(*document.PriceTechnicalFacts)
	assert.Nil(t, price.MA5)
	assert.Nil(t, price.MA60)
	assert.Nil(t, price.RSI14)
	assert.Nil(t, price.MACD)
	assert.Nil(t, price.BBLow)
	assert.Nil(t, price.K)

	// Documents built from short history never claim indicator values.
	doc, err := document.Build("2330", "台積電", jan2(), facts)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "close: 605.00")
	assert.NotContains(t, doc.Text, "ma5:")
	assert.NotContains(t, doc.Text, "rsi14:")
	assert.NotContains(t, doc.Text, "bb_low:")
}

func TestFetchPriceNoQuoteForDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// History exists but not for the requested day; a future row is
		// outside the window entirely.
		writeEnvelope(t, w,
			map[string]any{"date": "2025-01-01", "close": 600.0},
			map[string]any{"date": "2025-01-03", "close": 610.0},
		)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	_, err := client.Fetch(context.Background(), "2330", jan2(), document.CategoryPriceTechnical)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchFundamentals(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("dataset") {
		case "TaiwanStockFinancialStatements":
			writeEnvelope(t, w,
				map[string]any{
					"date": "2024-06-30", "revenue": 673_510_000_000.0,
					"OperatingIncome": 286_560_000_000.0, "NetIncome": 247_840_000_000.0, "eps": 9.56,
				},
				map[string]any{
					"date": "2024-09-30", "revenue": 759_690_000_000.0,
					"OperatingIncome": 360_770_000_000.0, "NetIncome": 325_260_000_000.0, "eps": 12.54,
				},
			)
		case "TaiwanStockPrice":
			writeEnvelope(t, w, map[string]any{"date": "2025-01-02", "close": 605.0})
		default:
			t.Errorf("unexpected dataset %q", r.URL.Query().Get("dataset"))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	facts, err := client.Fetch(context.Background(), "2330", jan2(), document.CategoryFundamental)
	require.NoError(t, err)

	fund, ok := facts.(*document.FundamentalFacts)
	require.True(t, ok)
	assert.Equal(t, "2024-09-30", fund.ReportDate)
	require.NotNil(t, fund.Revenue)
	assert.Equal(t, 759_690_000_000.0, *fund.Revenue)
	assert.Equal(t, 12.54, fund.EPS)
	assert.Equal(t, 605.0, fund.Price)
}

func TestFetchFundamentalsWithoutQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("dataset") {
		case "TaiwanStockFinancialStatements":
			writeEnvelope(t, w, map[string]any{"date": "2024-09-30", "revenue": 1000.0, "eps": 2.0})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	facts, err := client.Fetch(context.Background(), "2330", jan2(), document.CategoryFundamental)
	require.NoError(t, err)

	fund := facts.(*document.FundamentalFacts)
	assert.Zero(t, fund.Price)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       error
	}{
		{"too many requests", http.StatusTooManyRequests, ErrRateLimited},
		{"quota exhausted", http.StatusPaymentRequired, ErrRateLimited},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"server error", http.StatusInternalServerError, ErrTransient},
		{"bad gateway", http.StatusBadGateway, ErrTransient},
		{"unexpected status", http.StatusForbidden, ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client := NewClient(server.URL, "", time.Second)
			_, err := client.Fetch(context.Background(), "2330", jan2(), document.CategoryPriceTechnical)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEmptyDataIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	_, err := client.Fetch(context.Background(), "2330", jan2(), document.CategoryPriceTechnical)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProviderLevelErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"status": 400, "msg": "bad request", "data": []any{},
		}))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	_, err := client.Fetch(context.Background(), "2330", jan2(), document.CategoryPriceTechnical)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestUnreachableHostIsTransient(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "", 200*time.Millisecond)
	_, err := client.Fetch(context.Background(), "2330", jan2(), document.CategoryPriceTechnical)
	assert.ErrorIs(t, err, ErrTransient)
}
