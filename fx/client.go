package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fetcher is one stage of the resolution fallback chain.
type Fetcher interface {
	Fetch(ctx context.Context) (Rate, error)
}

type quoteResponse struct {
	Rates map[string]float64 `json:"rates"`
	Date  string             `json:"date"`
}

type httpFetcher struct {
	endpoint string
	source   Source
	http     *http.Client
}

// NewProviderFetcher queries the primary external FX provider for a USD-base
// EUR quote.
func NewProviderFetcher() Fetcher {
	endpoint := strings.TrimSpace(os.Getenv("FX_PROVIDER_URL"))
	if endpoint == "" {
		endpoint = "https://api.exchangerate.host/latest?base=USD&symbols=EUR"
	}
	return &httpFetcher{
		endpoint: endpoint,
		source:   SourceProvider,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// NewMirrorFetcher queries the internal endpoint wrapping the same provider,
// used when the provider itself is unreachable.
func NewMirrorFetcher() Fetcher {
	endpoint := strings.TrimSpace(os.Getenv("FX_MIRROR_URL"))
	if endpoint == "" {
		return nil
	}
	return &httpFetcher{
		endpoint: endpoint,
		source:   SourceMirror,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *httpFetcher) Fetch(ctx context.Context) (Rate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return Rate{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return Rate{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Rate{}, fmt.Errorf("fx api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Rate{}, err
	}

	eur, ok := parsed.Rates["EUR"]
	if !ok {
		return Rate{}, errors.New("fx response missing EUR rate")
	}
	if math.IsNaN(eur) || math.IsInf(eur, 0) || eur <= 0 {
		return Rate{}, fmt.Errorf("fx response rate %v is not a positive finite number", eur)
	}

	asOf := parsed.Date
	if asOf == "" {
		asOf = time.Now().UTC().Format("2006-01-02")
	}

	return Rate{
		Rate:          decimal.NewFromFloat(eur),
		BaseCurrency:  "USD",
		QuoteCurrency: "EUR",
		AsOf:          asOf,
		Source:        f.source,
	}, nil
}
