package fetch

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mfriman/daybrief/internal/digest"
)

const (
	marketSource    = "www.alphavantage.co"
	alphaVantageURL = "https://www.alphavantage.co/query"
)

var indexNames = map[string]string{
	"^GSPC": "S&P 500",
	"^IXIC": "NASDAQ",
	"^DJI":  "Dow Jones",
}

// MarketFetcher queries Alpha Vantage for a quote per configured symbol.
type MarketFetcher struct {
	symbols   []string
	apiKey    string
	apiKeyEnv string
	baseURL   string
	client    *http.Client
}

// NewMarketFetcher binds the fetcher to its index symbols.
func NewMarketFetcher(symbols []string, apiKeyEnv string) *MarketFetcher {
	return &MarketFetcher{
		symbols:   symbols,
		apiKey:    os.Getenv(apiKeyEnv),
		apiKeyEnv: apiKeyEnv,
		baseURL:   alphaVantageURL,
		client:    newHTTPClient(),
	}
}

func (f *MarketFetcher) Domain() digest.Domain { return digest.DomainMarket }

// Fetch retrieves a global quote for every symbol. The data-origin
// timestamp is the most recent trading day across the quotes.
func (f *MarketFetcher) Fetch(ctx context.Context) (*digest.FetchResult, error) {
	if f.apiKey == "" {
		return nil, keyMissingError(marketSource, f.apiKeyEnv)
	}

	report := &digest.MarketReport{}
	var newestDay string

	for _, symbol := range f.symbols {
		quote, tradingDay, err := f.fetchQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		report.Indexes = append(report.Indexes, *quote)
		if tradingDay > newestDay {
			newestDay = tradingDay
		}
	}

	fetchedAt := time.Now().UTC()
	if newestDay != "" {
		// Quote dates carry no time of day; assume the 16:00 close.
		if day, err := time.Parse("2006-01-02", newestDay); err == nil {
			fetchedAt = day.Add(16 * time.Hour)
		}
	}

	return &digest.FetchResult{
		Source:    marketSource,
		FetchedAt: fetchedAt,
		Payload:   report,
	}, nil
}

func (f *MarketFetcher) fetchQuote(ctx context.Context, symbol string) (*digest.IndexQuote, string, error) {
	params := url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
		"apikey":   {f.apiKey},
	}

	var result struct {
		GlobalQuote struct {
			Symbol        string `json:"01. symbol"`
			Price         string `json:"05. price"`
			LatestDay     string `json:"07. latest trading day"`
			Change        string `json:"09. change"`
			ChangePercent string `json:"10. change percent"`
		} `json:"Global Quote"`
		Note        string `json:"Note"`
		Information string `json:"Information"`
	}
	if err := getJSON(ctx, f.client, marketSource, f.baseURL+"?"+params.Encode(), &result); err != nil {
		return nil, "", err
	}

	// Alpha Vantage reports throttling as a 200 with a Note body.
	if result.GlobalQuote.Symbol == "" {
		msg := result.Note
		if msg == "" {
			msg = result.Information
		}
		if msg == "" {
			msg = "empty quote for " + symbol
		}
		return nil, "", &RequestError{
			Source:    marketSource,
			Code:      http.StatusTooManyRequests,
			Message:   msg,
			Retryable: true,
		}
	}

	q := result.GlobalQuote
	quote := &digest.IndexQuote{
		Name:          indexName(q.Symbol),
		Symbol:        q.Symbol,
		Value:         parseFloat(q.Price),
		Change:        parseFloat(q.Change),
		ChangePercent: parseFloat(strings.TrimSuffix(q.ChangePercent, "%")),
	}
	return quote, q.LatestDay, nil
}

func indexName(symbol string) string {
	if name, ok := indexNames[symbol]; ok {
		return name
	}
	return symbol
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
