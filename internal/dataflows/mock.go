package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MockVendor serves deterministic canned payloads for every data type.
// Used in mock mode and in tests so runs complete without network access
// or API keys.
type MockVendor struct {
	now func() time.Time
}

// NewMockVendor creates a canned-data vendor.
func NewMockVendor() *MockVendor {
	return &MockVendor{now: time.Now}
}

// Name returns the vendor identifier used in cache keys.
func (m *MockVendor) Name() string { return "mock" }

// Fetch returns a canned payload for the requested data type.
func (m *MockVendor) Fetch(_ context.Context, req Request, _ Conditional) (*VendorResponse, error) {
	body, err := m.payload(req)
	if err != nil {
		return nil, err
	}
	return &VendorResponse{Status: 200, Body: body}, nil
}

func (m *MockVendor) payload(req Request) (json.RawMessage, error) {
	now := m.now().UTC()
	sym := req.Symbol
	if sym == "" {
		sym = "MOCK"
	}

	switch req.Type {
	case TypeQuote:
		return json.Marshal(Quote{
			Symbol:        sym,
			Current:       187.42,
			High:          189.10,
			Low:           185.05,
			Open:          186.00,
			PreviousClose: 184.90,
			Timestamp:     now.Unix(),
		})

	case TypeProfile:
		return json.Marshal(Profile{
			Symbol:    sym,
			Name:      sym + " Corporation",
			Exchange:  "NASDAQ",
			Industry:  "Technology",
			IPO:       "1995-06-12",
			MarketCap: 1250000,
			WebURL:    "https://example.com/" + sym,
		})

	case TypeMetrics:
		return json.Marshal(Metrics{
			Symbol: sym,
			Values: map[string]float64{
				"peBasicExclExtraTTM":   28.4,
				"psTTM":                 6.1,
				"roeTTM":                0.31,
				"grossMarginTTM":        0.46,
				"52WeekHigh":            199.62,
				"52WeekLow":             142.33,
				"beta":                  1.18,
				"epsGrowth5Y":           0.14,
				"currentRatioQuarterly": 1.3,
			},
		})

	case TypeCompanyNews, TypeGlobalNews, TypeSearchNews:
		return json.Marshal([]NewsArticle{
			{
				Category: "company",
				Datetime: now.Add(-2 * time.Hour).Unix(),
				Headline: sym + " beats quarterly revenue estimates on cloud strength",
				Source:   "MockWire",
				Summary:  "Revenue grew 11% year over year, ahead of consensus.",
				URL:      "https://example.com/news/1",
			},
			{
				Category: "company",
				Datetime: now.Add(-26 * time.Hour).Unix(),
				Headline: "Analysts split on " + sym + " valuation after recent rally",
				Source:   "MockWire",
				Summary:  "Price targets range widely following a 15% month-to-date gain.",
				URL:      "https://example.com/news/2",
			},
		})

	case TypeBalanceSheet, TypeCashflow, TypeIncomeStmt:
		kind := map[DataType]string{TypeBalanceSheet: "bs", TypeCashflow: "cf", TypeIncomeStmt: "ic"}[req.Type]
		return json.Marshal(Statements{
			Symbol: sym,
			Kind:   kind,
			Reports: []FinancialReport{
				{
					Year: now.Year() - 1, Quarter: 0, Form: "10-K", FiledDate: fmt.Sprintf("%d-02-15", now.Year()),
					Items: []FinancialItem{
						{Label: "Total revenue", Value: 394328000000, Unit: "usd"},
						{Label: "Net income", Value: 96995000000, Unit: "usd"},
						{Label: "Total assets", Value: 352755000000, Unit: "usd"},
					},
				},
			},
		})

	case TypeInsiderTransactions:
		return json.Marshal([]InsiderTransaction{
			{Name: "DOE JANE", Share: 12000, Change: -4000, TransactionDate: now.AddDate(0, 0, -9).Format("2006-01-02"), TransactionCode: "S", Price: 186.20},
			{Name: "SMITH ALEX", Share: 33000, Change: 5000, TransactionDate: now.AddDate(0, 0, -20).Format("2006-01-02"), TransactionCode: "P", Price: 179.85},
		})

	case TypeInsiderSentiment:
		return json.Marshal([]InsiderSentiment{
			{Year: now.Year(), Month: int(now.Month()), Change: 1200, MSPR: 12.6},
			{Year: now.Year(), Month: int(now.AddDate(0, -1, 0).Month()), Change: -800, MSPR: -4.2},
		})

	case TypeReddit:
		return json.Marshal([]RedditPost{
			{
				Title:       "Why I'm still holding " + sym + " through earnings",
				Subreddit:   "stocks",
				Score:       842,
				NumComments: 310,
				CreatedUTC:  now.Add(-5 * time.Hour).Unix(),
				Permalink:   "/r/stocks/comments/mock1",
				Preview:     "Fundamentals look solid and the dip seems overdone.",
			},
			{
				Title:       sym + " put options printing today",
				Subreddit:   "wallstreetbets",
				Score:       1575,
				NumComments: 689,
				CreatedUTC:  now.Add(-9 * time.Hour).Unix(),
				Permalink:   "/r/wallstreetbets/comments/mock2",
				Preview:     "Volatility play ahead of the Fed meeting.",
			},
		})

	default:
		return nil, fmt.Errorf("mock vendor has no payload for data type %s", req.Type)
	}
}
