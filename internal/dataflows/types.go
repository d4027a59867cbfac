package dataflows

import (
	"context"
	"encoding/json"
)

// DataType identifies one class of upstream payload. The string value is
// also the cache-key segment and the cache-policy lookup key.
type DataType string

const (
	TypeQuote               DataType = "quote"
	TypeProfile             DataType = "profile"
	TypeMetrics             DataType = "metrics"
	TypeCompanyNews         DataType = "company_news"
	TypeGlobalNews          DataType = "global_news"
	TypeSearchNews          DataType = "search_news"
	TypeBalanceSheet        DataType = "balance_sheet"
	TypeCashflow            DataType = "cashflow"
	TypeIncomeStmt          DataType = "income_stmt"
	TypeInsiderTransactions DataType = "insider_transactions"
	TypeInsiderSentiment    DataType = "insider_sentiment"
	TypeReddit              DataType = "reddit"
)

// AllDataTypes lists every payload class in declaration order.
func AllDataTypes() []DataType {
	return []DataType{
		TypeQuote,
		TypeProfile,
		TypeMetrics,
		TypeCompanyNews,
		TypeGlobalNews,
		TypeSearchNews,
		TypeBalanceSheet,
		TypeCashflow,
		TypeIncomeStmt,
		TypeInsiderTransactions,
		TypeInsiderSentiment,
		TypeReddit,
	}
}

// Request describes one fetch against a vendor.
type Request struct {
	Type      DataType
	Symbol    string
	Qualifier string // cache-key discriminator, e.g. "annual" or a subreddit
	Window    int    // lookback window in days, 0 = vendor default
}

// Conditional carries validators from a prior cache entry so the vendor
// can answer 304 Not Modified.
type Conditional struct {
	ETag         string
	LastModified string
}

// VendorResponse is the normalized result of one upstream HTTP exchange.
// Body is the parsed, normalized payload (not the raw vendor bytes) so the
// fingerprint is stable across cosmetic vendor changes.
type VendorResponse struct {
	Status       int
	Body         json.RawMessage
	ETag         string
	LastModified string
}

// Vendor fetches one payload class from an upstream provider.
type Vendor interface {
	Name() string
	Fetch(ctx context.Context, req Request, cond Conditional) (*VendorResponse, error)
}

// Normalized payload shapes. These are what vendors emit as VendorResponse
// bodies and what renderers consume.

// Quote is a point-in-time price snapshot.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Current       float64 `json:"current"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Open          float64 `json:"open"`
	PreviousClose float64 `json:"previousClose"`
	Timestamp     int64   `json:"timestamp"`
}

// Profile describes the company behind a symbol.
type Profile struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Exchange  string  `json:"exchange"`
	Industry  string  `json:"industry"`
	IPO       string  `json:"ipo"`
	MarketCap float64 `json:"marketCap"` // millions USD
	WebURL    string  `json:"webUrl"`
}

// Metrics is a flat bag of fundamental and technical indicators.
type Metrics struct {
	Symbol string             `json:"symbol"`
	Values map[string]float64 `json:"values"`
}

// NewsArticle is one headline with its source and summary.
type NewsArticle struct {
	Category string `json:"category"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// FinancialReport is one reported statement period.
type FinancialReport struct {
	Year      int             `json:"year"`
	Quarter   int             `json:"quarter"`
	Form      string          `json:"form"`
	FiledDate string          `json:"filedDate"`
	Items     []FinancialItem `json:"items"`
}

// FinancialItem is one labeled line of a financial statement.
type FinancialItem struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Statements groups the reports for one statement type of one symbol.
type Statements struct {
	Symbol  string            `json:"symbol"`
	Kind    string            `json:"kind"` // bs | ic | cf
	Reports []FinancialReport `json:"reports"`
}

// InsiderTransaction is one reported insider trade.
type InsiderTransaction struct {
	Name            string  `json:"name"`
	Share           int64   `json:"share"`
	Change          int64   `json:"change"`
	TransactionDate string  `json:"transactionDate"`
	TransactionCode string  `json:"transactionCode"`
	Price           float64 `json:"price"`
}

// InsiderSentiment is one month of aggregated insider sentiment.
type InsiderSentiment struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Change int64   `json:"change"`
	MSPR   float64 `json:"mspr"` // monthly share purchase ratio
}

// RedditPost is one discussion thread relevant to a symbol or market.
type RedditPost struct {
	Title       string `json:"title"`
	Subreddit   string `json:"subreddit"`
	Score       int    `json:"score"`
	NumComments int    `json:"numComments"`
	CreatedUTC  int64  `json:"createdUtc"`
	Permalink   string `json:"permalink"`
	Preview     string `json:"preview"`
}
