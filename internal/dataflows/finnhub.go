package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

// FinnhubClient serves all finance data types from the Finnhub REST API.
// Responses are normalized before they reach the cache so fingerprints do
// not churn on cosmetic vendor changes.
type FinnhubClient struct {
	http   *resty.Client
	apiKey string
	now    func() time.Time
	log    *logger.Logger
}

// NewFinnhubClient creates a Finnhub vendor client.
func NewFinnhubClient(apiKey string, timeout time.Duration) *FinnhubClient {
	client := resty.New()
	client.SetBaseURL(finnhubBaseURL)
	client.SetTimeout(timeout)

	return &FinnhubClient{
		http:   client,
		apiKey: apiKey,
		now:    time.Now,
		log:    logger.Get().With("component", "finnhub"),
	}
}

// Name returns the vendor identifier used in cache keys.
func (c *FinnhubClient) Name() string { return "finnhub" }

// Fetch issues one conditional GET for the requested data type and
// normalizes the payload.
func (c *FinnhubClient) Fetch(ctx context.Context, req Request, cond Conditional) (*VendorResponse, error) {
	if c.apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "finnhub API key not configured")
	}

	path, query := c.endpoint(req)
	if path == "" {
		return nil, errors.Wrapf(errors.ErrInternal, "finnhub does not serve data type %s", req.Type)
	}
	query["token"] = c.apiKey

	r := c.http.R().SetContext(ctx).SetQueryParams(query)
	if cond.ETag != "" {
		r.SetHeader("If-None-Match", cond.ETag)
	}
	if cond.LastModified != "" {
		r.SetHeader("If-Modified-Since", cond.LastModified)
	}

	resp, err := r.Get(path)
	if err != nil {
		return nil, errors.Wrapf(err, "finnhub %s %s", req.Type, req.Symbol)
	}

	out := &VendorResponse{
		Status:       resp.StatusCode(),
		ETag:         resp.Header().Get("ETag"),
		LastModified: resp.Header().Get("Last-Modified"),
	}

	if out.Status == 304 {
		return out, nil
	}
	if out.Status < 200 || out.Status >= 300 {
		return out, nil
	}

	body, err := c.normalize(req, resp.Body())
	if err != nil {
		return nil, err
	}
	out.Body = body

	return out, nil
}

// endpoint maps a data type to a Finnhub path and query.
func (c *FinnhubClient) endpoint(req Request) (string, map[string]string) {
	window := req.Window
	if window <= 0 {
		window = 7
	}
	to := c.now().UTC()
	from := to.AddDate(0, 0, -window)

	switch req.Type {
	case TypeQuote:
		return "/quote", map[string]string{"symbol": req.Symbol}
	case TypeProfile:
		return "/stock/profile2", map[string]string{"symbol": req.Symbol}
	case TypeMetrics:
		return "/stock/metric", map[string]string{"symbol": req.Symbol, "metric": "all"}
	case TypeCompanyNews:
		return "/company-news", map[string]string{
			"symbol": req.Symbol,
			"from":   from.Format("2006-01-02"),
			"to":     to.Format("2006-01-02"),
		}
	case TypeGlobalNews, TypeSearchNews:
		return "/news", map[string]string{"category": "general"}
	case TypeBalanceSheet, TypeCashflow, TypeIncomeStmt:
		return "/stock/financials-reported", map[string]string{"symbol": req.Symbol, "freq": "annual"}
	case TypeInsiderTransactions:
		return "/stock/insider-transactions", map[string]string{"symbol": req.Symbol}
	case TypeInsiderSentiment:
		return "/stock/insider-sentiment", map[string]string{
			"symbol": req.Symbol,
			"from":   from.AddDate(0, -3, 0).Format("2006-01-02"),
			"to":     to.Format("2006-01-02"),
		}
	default:
		return "", nil
	}
}

func (c *FinnhubClient) normalize(req Request, raw []byte) (json.RawMessage, error) {
	switch req.Type {
	case TypeQuote:
		var wire struct {
			C  float64 `json:"c"`
			H  float64 `json:"h"`
			L  float64 `json:"l"`
			O  float64 `json:"o"`
			PC float64 `json:"pc"`
			T  int64   `json:"t"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, errors.Wrapf(errors.ErrUpstream, "parse quote: %v", err)
		}
		return marshalNormalized(Quote{
			Symbol:        req.Symbol,
			Current:       wire.C,
			High:          wire.H,
			Low:           wire.L,
			Open:          wire.O,
			PreviousClose: wire.PC,
			Timestamp:     wire.T,
		})

	case TypeProfile:
		var wire struct {
			Name      string  `json:"name"`
			Ticker    string  `json:"ticker"`
			Exchange  string  `json:"exchange"`
			Industry  string  `json:"finnhubIndustry"`
			IPO       string  `json:"ipo"`
			MarketCap float64 `json:"marketCapitalization"`
			WebURL    string  `json:"weburl"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, errors.Wrapf(errors.ErrUpstream, "parse profile: %v", err)
		}
		return marshalNormalized(Profile{
			Symbol:    req.Symbol,
			Name:      wire.Name,
			Exchange:  wire.Exchange,
			Industry:  wire.Industry,
			IPO:       wire.IPO,
			MarketCap: wire.MarketCap,
			WebURL:    wire.WebURL,
		})

	case TypeMetrics:
		var wire struct {
			Metric map[string]interface{} `json:"metric"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, errors.Wrapf(errors.ErrUpstream, "parse metrics: %v", err)
		}
		values := make(map[string]float64, len(wire.Metric))
		for k, v := range wire.Metric {
			if f, ok := v.(float64); ok {
				values[k] = f
			}
		}
		return marshalNormalized(Metrics{Symbol: req.Symbol, Values: values})

	case TypeCompanyNews, TypeGlobalNews, TypeSearchNews:
		var articles []NewsArticle
		if err := json.Unmarshal(raw, &articles); err != nil {
			return nil, errors.Wrapf(errors.ErrUpstream, "parse news: %v", err)
		}
		if len(articles) > 25 {
			articles = articles[:25]
		}
		return marshalNormalized(articles)

	case TypeBalanceSheet, TypeCashflow, TypeIncomeStmt:
		return c.normalizeStatements(req, raw)

	case TypeInsiderTransactions:
		var wire struct {
			Data []struct {
				Name            string  `json:"name"`
				Share           int64   `json:"share"`
				Change          int64   `json:"change"`
				TransactionDate string  `json:"transactionDate"`
				TransactionCode string  `json:"transactionCode"`
				Price           float64 `json:"transactionPrice"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, errors.Wrapf(errors.ErrUpstream, "parse insider transactions: %v", err)
		}
		txs := make([]InsiderTransaction, 0, len(wire.Data))
		for _, d := range wire.Data {
			txs = append(txs, InsiderTransaction{
				Name:            d.Name,
				Share:           d.Share,
				Change:          d.Change,
				TransactionDate: d.TransactionDate,
				TransactionCode: d.TransactionCode,
				Price:           d.Price,
			})
		}
		return marshalNormalized(txs)

	case TypeInsiderSentiment:
		var wire struct {
			Data []struct {
				Year   int     `json:"year"`
				Month  int     `json:"month"`
				Change int64   `json:"change"`
				MSPR   float64 `json:"mspr"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, errors.Wrapf(errors.ErrUpstream, "parse insider sentiment: %v", err)
		}
		rows := make([]InsiderSentiment, 0, len(wire.Data))
		for _, d := range wire.Data {
			rows = append(rows, InsiderSentiment{Year: d.Year, Month: d.Month, Change: d.Change, MSPR: d.MSPR})
		}
		return marshalNormalized(rows)

	default:
		return nil, errors.Wrapf(errors.ErrInternal, "no normalizer for data type %s", req.Type)
	}
}

func (c *FinnhubClient) normalizeStatements(req Request, raw []byte) (json.RawMessage, error) {
	kind := map[DataType]string{
		TypeBalanceSheet: "bs",
		TypeCashflow:     "cf",
		TypeIncomeStmt:   "ic",
	}[req.Type]

	var wire struct {
		Data []struct {
			Year      int    `json:"year"`
			Quarter   int    `json:"quarter"`
			Form      string `json:"form"`
			FiledDate string `json:"filedDate"`
			Report    map[string][]struct {
				Label string      `json:"label"`
				Value interface{} `json:"value"`
				Unit  string      `json:"unit"`
			} `json:"report"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, errors.Wrapf(errors.ErrUpstream, "parse financials: %v", err)
	}

	stmts := Statements{Symbol: req.Symbol, Kind: kind}
	for _, period := range wire.Data {
		report := FinancialReport{
			Year:      period.Year,
			Quarter:   period.Quarter,
			Form:      period.Form,
			FiledDate: period.FiledDate,
		}
		for _, row := range period.Report[kind] {
			value, ok := row.Value.(float64)
			if !ok {
				continue
			}
			report.Items = append(report.Items, FinancialItem{Label: row.Label, Value: value, Unit: row.Unit})
		}
		stmts.Reports = append(stmts.Reports, report)
	}

	// Most recent two periods are enough for analysis prompts
	if len(stmts.Reports) > 2 {
		stmts.Reports = stmts.Reports[:2]
	}

	return marshalNormalized(stmts)
}

func marshalNormalized(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized payload: %w", err)
	}
	return data, nil
}
