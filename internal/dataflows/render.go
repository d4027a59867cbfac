package dataflows

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"minerva/pkg/errors"
)

// Render formats a normalized payload as a prompt-ready text block.
// Tool outputs go through here so every persona sees the same shape of
// data regardless of which vendor served it.
func Render(dataType DataType, body json.RawMessage) (string, error) {
	switch dataType {
	case TypeQuote:
		var q Quote
		if err := json.Unmarshal(body, &q); err != nil {
			return "", errors.Wrapf(err, "render %s", dataType)
		}
		return renderQuote(q), nil

	case TypeProfile:
		var p Profile
		if err := json.Unmarshal(body, &p); err != nil {
			return "", errors.Wrapf(err, "render %s", dataType)
		}
		return renderProfile(p), nil

	case TypeMetrics:
		var m Metrics
		if err := json.Unmarshal(body, &m); err != nil {
			return "", errors.Wrapf(err, "render %s", dataType)
		}
		return renderMetrics(m), nil

	case TypeCompanyNews, TypeGlobalNews, TypeSearchNews:
		var articles []NewsArticle
		if err := json.Unmarshal(body, &articles); err != nil {
			return "", errors.Wrapf(err, "render %s", dataType)
		}
		return renderNews(articles), nil

	case TypeBalanceSheet, TypeCashflow, TypeIncomeStmt:
		var s Statements
		if err := json.Unmarshal(body, &s); err != nil {
			return "", errors.Wrapf(err, "render %s", dataType)
		}
		return renderStatements(s), nil

	case TypeInsiderTransactions:
		var txs []InsiderTransaction
		if err := json.Unmarshal(body, &txs); err != nil {
			return "", errors.Wrapf(err, "render %s", dataType)
		}
		return renderInsiderTransactions(txs), nil

	case TypeInsiderSentiment:
		var rows []InsiderSentiment
		if err := json.Unmarshal(body, &rows); err != nil {
			return "", errors.Wrapf(err, "render %s", dataType)
		}
		return renderInsiderSentiment(rows), nil

	case TypeReddit:
		var posts []RedditPost
		if err := json.Unmarshal(body, &posts); err != nil {
			return "", errors.Wrapf(err, "render %s", dataType)
		}
		return renderReddit(posts), nil

	default:
		return "", errors.Wrapf(errors.ErrInternal, "no renderer for data type %s", dataType)
	}
}

func renderQuote(q Quote) string {
	change := decimal.NewFromFloat(q.Current).Sub(decimal.NewFromFloat(q.PreviousClose))
	pct := decimal.Zero
	if q.PreviousClose != 0 {
		pct = change.Div(decimal.NewFromFloat(q.PreviousClose)).Mul(decimal.NewFromInt(100))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s quote\n", q.Symbol)
	fmt.Fprintf(&b, "Current: %s (%s, %s%%)\n", money(q.Current), change.StringFixed(2), pct.StringFixed(2))
	fmt.Fprintf(&b, "Open: %s | High: %s | Low: %s | Prev close: %s\n",
		money(q.Open), money(q.High), money(q.Low), money(q.PreviousClose))
	if q.Timestamp > 0 {
		fmt.Fprintf(&b, "As of: %s\n", time.Unix(q.Timestamp, 0).UTC().Format(time.RFC1123))
	}
	return b.String()
}

func renderProfile(p Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s company profile\n", p.Symbol)
	fmt.Fprintf(&b, "Name: %s\nExchange: %s\nIndustry: %s\n", p.Name, p.Exchange, p.Industry)
	if p.IPO != "" {
		fmt.Fprintf(&b, "IPO: %s\n", p.IPO)
	}
	if p.MarketCap > 0 {
		// Finnhub reports market cap in millions of USD
		fmt.Fprintf(&b, "Market cap: $%s\n", humanize.CommafWithDigits(p.MarketCap, 0)+"M")
	}
	return b.String()
}

func renderMetrics(m Metrics) string {
	keys := make([]string, 0, len(m.Values))
	for k := range m.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "## %s key metrics\n", m.Symbol)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, humanize.CommafWithDigits(m.Values[k], 2))
	}
	return b.String()
}

func renderNews(articles []NewsArticle) string {
	if len(articles) == 0 {
		return "No recent news found.\n"
	}

	var b strings.Builder
	b.WriteString("## Recent news\n")
	for _, a := range articles {
		when := time.Unix(a.Datetime, 0).UTC()
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", humanize.Time(when), a.Headline, a.Source)
		if a.Summary != "" {
			fmt.Fprintf(&b, "  %s\n", a.Summary)
		}
	}
	return b.String()
}

func renderStatements(s Statements) string {
	title := map[string]string{"bs": "balance sheet", "cf": "cash flow statement", "ic": "income statement"}[s.Kind]

	var b strings.Builder
	fmt.Fprintf(&b, "## %s %s\n", s.Symbol, title)
	if len(s.Reports) == 0 {
		b.WriteString("No reported periods available.\n")
		return b.String()
	}
	for _, r := range s.Reports {
		period := fmt.Sprintf("%d", r.Year)
		if r.Quarter > 0 {
			period = fmt.Sprintf("%d Q%d", r.Year, r.Quarter)
		}
		fmt.Fprintf(&b, "### %s (%s, filed %s)\n", period, r.Form, r.FiledDate)
		for _, item := range r.Items {
			fmt.Fprintf(&b, "- %s: %s %s\n", item.Label, humanize.CommafWithDigits(item.Value, 0), item.Unit)
		}
	}
	return b.String()
}

func renderInsiderTransactions(txs []InsiderTransaction) string {
	if len(txs) == 0 {
		return "No recent insider transactions.\n"
	}

	var b strings.Builder
	b.WriteString("## Insider transactions\n")
	for _, t := range txs {
		action := "bought"
		if t.Change < 0 {
			action = "sold"
		}
		shares := t.Change
		if shares < 0 {
			shares = -shares
		}
		fmt.Fprintf(&b, "- %s: %s %s shares at %s on %s (code %s, holds %s)\n",
			t.Name, action, humanize.Comma(shares), money(t.Price),
			t.TransactionDate, t.TransactionCode, humanize.Comma(t.Share))
	}
	return b.String()
}

func renderInsiderSentiment(rows []InsiderSentiment) string {
	if len(rows) == 0 {
		return "No insider sentiment data.\n"
	}

	var b strings.Builder
	b.WriteString("## Insider sentiment (MSPR = monthly share purchase ratio)\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "- %d-%02d: net change %s shares, MSPR %s\n",
			r.Year, r.Month, humanize.Comma(r.Change), humanize.CommafWithDigits(r.MSPR, 2))
	}
	return b.String()
}

func renderReddit(posts []RedditPost) string {
	if len(posts) == 0 {
		return "No relevant discussion threads found.\n"
	}

	var b strings.Builder
	b.WriteString("## Social discussion\n")
	for _, p := range posts {
		when := time.Unix(p.CreatedUTC, 0).UTC()
		fmt.Fprintf(&b, "- r/%s (%s, score %d, %d comments): %s\n",
			p.Subreddit, humanize.Time(when), p.Score, p.NumComments, p.Title)
		if p.Preview != "" {
			fmt.Fprintf(&b, "  %s\n", p.Preview)
		}
	}
	return b.String()
}

func money(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}
