package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"minerva/internal/dataflows"
	"minerva/pkg/logger"
)

// Catalog builds the analyst tool set over the cached data adapter.
// All finance tools resolve their ticker defensively: a missing or
// malformed argument falls back to the run symbol with a logged warning,
// and a ticker that contradicts the run symbol is substituted.
type Catalog struct {
	adapter *dataflows.Adapter
	log     *logger.Logger
}

// NewCatalog creates the tool catalog over the given data adapter.
func NewCatalog(adapter *dataflows.Adapter) *Catalog {
	return &Catalog{
		adapter: adapter,
		log:     logger.Get().With("component", "tool_catalog"),
	}
}

// RegisterAll registers every catalog tool into the registry.
func (c *Catalog) RegisterAll(registry *Registry) error {
	all := []Tool{
		c.dataTool("get_stock_quote", "Get the current price quote for a stock ticker.", dataflows.TypeQuote, ""),
		c.technicalIndicators(),
		c.dataTool("get_company_profile", "Get the company profile for a stock ticker: name, exchange, industry, market cap.", dataflows.TypeProfile, ""),
		c.dataTool("get_company_news", "Get recent news articles about the company behind a stock ticker.", dataflows.TypeCompanyNews, ""),
		c.globalNews(),
		c.dataTool("get_reddit_company_news", "Get reddit discussion threads mentioning the company.", dataflows.TypeReddit, "stocks,investing"),
		c.redditGlobalNews(),
		c.dataTool("get_reddit_stock_info", "Get reddit retail-sentiment threads about a stock ticker.", dataflows.TypeReddit, "wallstreetbets"),
		c.fundamentalsSummary(),
		c.dataTool("get_finnhub_balance_sheet", "Get the most recent reported balance sheet for a stock ticker.", dataflows.TypeBalanceSheet, "annual"),
		c.dataTool("get_finnhub_cashflow", "Get the most recent reported cash flow statement for a stock ticker.", dataflows.TypeCashflow, "annual"),
		c.dataTool("get_finnhub_income_stmt", "Get the most recent reported income statement for a stock ticker.", dataflows.TypeIncomeStmt, "annual"),
		c.dataTool("get_finnhub_insider_transactions", "Get recent insider buy and sell transactions for a stock ticker.", dataflows.TypeInsiderTransactions, ""),
		c.dataTool("get_finnhub_insider_sentiment", "Get aggregated monthly insider sentiment (MSPR) for a stock ticker.", dataflows.TypeInsiderSentiment, ""),
	}

	for _, t := range all {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// dataTool builds the standard fetch-and-render tool for one data type.
func (c *Catalog) dataTool(name, description string, dataType dataflows.DataType, qualifier string) Tool {
	return New(name, description, TickerSchema(), func(ctx context.Context, args map[string]interface{}) (string, error) {
		symbol, note := c.resolveTicker(ctx, name, args)
		out, err := c.fetchAndRender(ctx, dataflows.Request{Type: dataType, Symbol: symbol, Qualifier: qualifier})
		if err != nil {
			return "", err
		}
		return note + out, nil
	})
}

// globalNews takes no ticker: it reports macro headlines.
func (c *Catalog) globalNews() Tool {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
	return New("get_global_news", "Get recent global macroeconomic and market news headlines.", schema,
		func(ctx context.Context, _ map[string]interface{}) (string, error) {
			return c.fetchAndRender(ctx, dataflows.Request{Type: dataflows.TypeGlobalNews})
		})
}

func (c *Catalog) redditGlobalNews() Tool {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
	return New("get_reddit_global_news", "Get reddit threads discussing overall market and macro conditions.", schema,
		func(ctx context.Context, _ map[string]interface{}) (string, error) {
			return c.fetchAndRender(ctx, dataflows.Request{Type: dataflows.TypeReddit, Qualifier: "investing,economy"})
		})
}

// technicalIndicators derives a momentum/volatility view from the metrics payload.
func (c *Catalog) technicalIndicators() Tool {
	return New("get_technical_indicators",
		"Get technical indicators for a stock ticker: 52-week range, beta, moving-average and momentum readings.",
		TickerSchema(),
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			symbol, note := c.resolveTicker(ctx, "get_technical_indicators", args)
			metrics, err := c.fetchMetrics(ctx, symbol)
			if err != nil {
				return "", err
			}
			return note + renderMetricSubset(symbol, "technical indicators", metrics, isTechnicalMetric), nil
		})
}

// fundamentalsSummary condenses valuation and profitability metrics.
func (c *Catalog) fundamentalsSummary() Tool {
	return New("get_fundamentals_summary",
		"Get a fundamentals summary for a stock ticker: valuation, margins, growth, and returns.",
		TickerSchema(),
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			symbol, note := c.resolveTicker(ctx, "get_fundamentals_summary", args)
			metrics, err := c.fetchMetrics(ctx, symbol)
			if err != nil {
				return "", err
			}
			return note + renderMetricSubset(symbol, "fundamentals summary", metrics, func(k string) bool {
				return !isTechnicalMetric(k)
			}), nil
		})
}

func (c *Catalog) fetchAndRender(ctx context.Context, req dataflows.Request) (string, error) {
	result, err := c.adapter.Fetch(ctx, req, dataflows.WithStaleServe())
	if err != nil {
		// Upstream failures become text so the model can route around them
		return fmt.Sprintf("No data available for %s: %v", req.Type, err), nil
	}
	return dataflows.Render(req.Type, result.Data)
}

func (c *Catalog) fetchMetrics(ctx context.Context, symbol string) (*dataflows.Metrics, error) {
	result, err := c.adapter.Fetch(ctx, dataflows.Request{Type: dataflows.TypeMetrics, Symbol: symbol}, dataflows.WithStaleServe())
	if err != nil {
		return nil, err
	}
	var m dataflows.Metrics
	if err := unmarshalPayload(result.Data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// resolveTicker extracts the ticker argument, falling back to and
// enforcing the run symbol from context. The second return value is a
// warning line for the model when a mismatched ticker was substituted.
func (c *Catalog) resolveTicker(ctx context.Context, toolName string, args map[string]interface{}) (string, string) {
	meta, hasMeta := MetadataFromContext(ctx)

	raw, _ := args["ticker"].(string)
	ticker := strings.ToUpper(strings.TrimSpace(raw))

	if ticker == "" {
		if hasMeta {
			c.log.Warnw("Tool called without ticker, using run symbol",
				"tool", toolName, "run_id", meta.RunID, "symbol", meta.Symbol)
			return meta.Symbol, ""
		}
		return "", ""
	}

	if hasMeta && meta.Symbol != "" && ticker != meta.Symbol {
		c.log.Warnw("Tool called with mismatched ticker, substituting run symbol",
			"tool", toolName, "run_id", meta.RunID, "requested", ticker, "symbol", meta.Symbol)
		note := fmt.Sprintf("Warning: requested ticker %s does not match the active analysis symbol %s; showing %s instead.\n\n",
			ticker, meta.Symbol, meta.Symbol)
		return meta.Symbol, note
	}

	return ticker, ""
}

func unmarshalPayload(data json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode cached payload: %w", err)
	}
	return nil
}

func isTechnicalMetric(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range []string{"52week", "beta", "volatil", "price", "return", "momentum", "average", "high", "low"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func renderMetricSubset(symbol, title string, m *dataflows.Metrics, keep func(string) bool) string {
	keys := make([]string, 0, len(m.Values))
	for k := range m.Values {
		if keep(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "## %s %s\n", symbol, title)
	if len(keys) == 0 {
		b.WriteString("No matching metrics available.\n")
		return b.String()
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, humanize.CommafWithDigits(m.Values[k], 2))
	}
	return b.String()
}
