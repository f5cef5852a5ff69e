package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/exchangerate/domain"
	"github.com/smallbiznis/estate/internal/observability/tracing"
)

const maxResponseBytes = 1 << 20

// HTTP fetches `{"base":"USD","rates":{"SAR":3.75}}` from a rate endpoint.
type HTTP struct {
	url    string
	client *http.Client
	clock  clock.Clock
}

func NewHTTP(url string, timeout time.Duration, clk clock.Clock) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		url:    url,
		client: tracing.WrapHTTPClient(&http.Client{Timeout: timeout}),
		clock:  clk,
	}
}

func (h *HTTP) Name() string { return "http" }

type ratesResponse struct {
	Base  string                 `json:"base"`
	Rates map[string]json.Number `json:"rates"`
}

func (h *HTTP) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var body ratesResponse
	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrUpstreamUnavailable, err)
	}

	rates := make(map[string]decimal.Decimal, len(body.Rates))
	for code, raw := range body.Rates {
		rate, err := decimal.NewFromString(raw.String())
		if err != nil {
			continue
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	if len(rates) == 0 {
		return nil, domain.ErrEmptySnapshot
	}

	return &domain.Snapshot{
		Base:      strings.ToUpper(strings.TrimSpace(body.Base)),
		Source:    h.Name(),
		FetchedAt: h.clock.Now(),
		Rates:     rates,
	}, nil
}
