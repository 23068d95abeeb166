package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dnldd/crossover/shared"
	"github.com/tidwall/gjson"
)

const (
	// TradingURL is the paper trading api base url.
	TradingURL = "https://paper-api.alpaca.markets"
	// DataURL is the market data api base url.
	DataURL = "https://data.alpaca.markets"
	// defaultTimeout is the default http request timeout.
	defaultTimeout = time.Second * 15
	// pageLimit is the maximum number of bars requested per page.
	pageLimit = 1000
	// maxPages bounds paginated bar requests.
	maxPages = 50
	// cryptoLocation is the crypto market data location.
	cryptoLocation = "us"
)

// AlpacaConfig represents the configuration for the Alpaca client.
type AlpacaConfig struct {
	// APIKey is the Alpaca API key id.
	APIKey string
	// APISecret is the Alpaca API secret key.
	APISecret string
	// TradingURL is the trading api base url.
	TradingURL string
	// DataURL is the market data api base url.
	DataURL string
	// Feed optionally selects the stock data feed (iex, sip).
	Feed string
	// Timeout is the http request timeout.
	Timeout time.Duration
}

// Validate asserts the config sane inputs.
func (cfg *AlpacaConfig) Validate() error {
	var errs error

	if cfg.APIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("alpaca api key cannot be an empty string"))
	}
	if cfg.APISecret == "" {
		errs = errors.Join(errs, fmt.Errorf("alpaca api secret cannot be an empty string"))
	}
	if cfg.TradingURL == "" {
		errs = errors.Join(errs, fmt.Errorf("alpaca trading url cannot be an empty string"))
	}
	if cfg.DataURL == "" {
		errs = errors.Join(errs, fmt.Errorf("alpaca data url cannot be an empty string"))
	}
	if cfg.Timeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("alpaca timeout cannot be negative"))
	}

	return errs
}

// AlpacaClient represents the Alpaca market data and trading API client.
type AlpacaClient struct {
	cfg   *AlpacaConfig
	httpc *http.Client
}

// Ensure the AlpacaClient implements the MarketFetcher and OrderSubmitter interfaces.
var _ shared.MarketFetcher = (*AlpacaClient)(nil)
var _ shared.OrderSubmitter = (*AlpacaClient)(nil)

// NewAlpacaClient instantiates a new Alpaca client.
func NewAlpacaClient(cfg *AlpacaConfig) (*AlpacaClient, error) {
	cfg.APIKey = cleanCredential(cfg.APIKey)
	cfg.APISecret = cleanCredential(cfg.APISecret)
	cfg.TradingURL = strings.TrimRight(strings.TrimSpace(cfg.TradingURL), "/")
	cfg.DataURL = strings.TrimRight(strings.TrimSpace(cfg.DataURL), "/")

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating alpaca config: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &AlpacaClient{
		cfg:   cfg,
		httpc: &http.Client{Timeout: timeout},
	}, nil
}

// cleanCredential strips whitespace and accidental quotes from the provided credential.
func cleanCredential(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

// formURL creates full urls including parameters for the api.
func (c *AlpacaClient) formURL(base string, path string, params url.Values) string {
	if len(params) == 0 {
		return base + path
	}

	return base + path + "?" + params.Encode()
}

// do executes the provided request with the client's credentials, returning the response
// body of successful requests.
func (c *AlpacaClient) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("APCA-API-KEY-ID", c.cfg.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.cfg.APISecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}

		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
	}

	return body, resp.StatusCode, nil
}

// transientStatus reports whether the provided status code is worth retrying.
func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// transientErr reports whether the provided transport error is a timeout.
func transientErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// barsPath returns the bars endpoint path for the provided symbol.
func barsPath(symbol string) string {
	if shared.IsCrypto(symbol) {
		return "/v1beta3/crypto/" + cryptoLocation + "/bars"
	}

	return "/v2/stocks/bars"
}

// FetchBars fetches ordered bars for the provided symbol and timeframe, following
// pagination. A zero end fetches up to the latest available bar.
func (c *AlpacaClient) FetchBars(ctx context.Context, symbol string, timeframe shared.Timeframe, start time.Time, end time.Time) ([]shared.Bar, error) {
	op := fmt.Sprintf("fetching %s bars for %s", timeframe.String(), symbol)

	if timeframe.Duration() == 0 {
		return nil, &shared.MarketDataError{Op: op,
			Err: fmt.Errorf("unknown timeframe provided: %d", timeframe)}
	}

	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("timeframe", timeframe.String())
	params.Set("limit", fmt.Sprint(pageLimit))
	params.Set("sort", "asc")
	if !start.IsZero() {
		params.Set("start", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		params.Set("end", end.UTC().Format(time.RFC3339))
	}
	if !shared.IsCrypto(symbol) {
		params.Set("adjustment", "raw")
		if c.cfg.Feed != "" {
			params.Set("feed", c.cfg.Feed)
		}
	}

	bars := make([]shared.Bar, 0)
	for page := 0; page < maxPages; page++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.formURL(c.cfg.DataURL, barsPath(symbol), params), nil)
		if err != nil {
			return nil, &shared.MarketDataError{Op: op, Err: err}
		}

		body, status, err := c.do(req)
		if err != nil {
			transient := transientErr(err)
			if status != 0 {
				transient = transientStatus(status)
			}

			return nil, &shared.MarketDataError{Op: op, Transient: transient, Err: err}
		}

		var data []gjson.Result
		gjson.GetBytes(body, "bars").ForEach(func(key, value gjson.Result) bool {
			if key.String() == symbol {
				data = value.Array()
				return false
			}

			return true
		})

		pageBars, err := shared.ParseBars(data, symbol, timeframe)
		if err != nil {
			return nil, &shared.MarketDataError{Op: op, Err: err}
		}

		bars = append(bars, pageBars...)

		token := gjson.GetBytes(body, "next_page_token").String()
		if token == "" {
			return bars, nil
		}

		params.Set("page_token", token)
	}

	return nil, &shared.MarketDataError{Op: op,
		Err: fmt.Errorf("exceeded %d pages of bars", maxPages)}
}

// SubmitOrder submits the provided market order. Crypto orders are good till cancelled,
// stock orders expire at the end of the day.
func (c *AlpacaClient) SubmitOrder(ctx context.Context, order shared.OrderRequest) (*shared.OrderResult, error) {
	if !(order.Quantity > 0) {
		return nil, fmt.Errorf("order quantity must be positive, got %f", order.Quantity)
	}

	timeInForce := "day"
	if shared.IsCrypto(order.Symbol) {
		timeInForce = "gtc"
	}

	payload, err := json.Marshal(map[string]string{
		"symbol":        order.Symbol,
		"qty":           shared.FormatDecimal(order.Quantity),
		"side":          order.Side.String(),
		"type":          order.Type.String(),
		"time_in_force": timeInForce,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.formURL(c.cfg.TradingURL, "/v2/orders", nil), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, _, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("submitting %s order for %s: %w", order.Side.String(), order.Symbol, err)
	}

	filled, err := shared.ParseDecimal(gjson.GetBytes(body, "filled_avg_price").Value())
	if err != nil {
		return nil, fmt.Errorf("parsing fill price: %w", err)
	}

	result := &shared.OrderResult{
		ID:          gjson.GetBytes(body, "id").String(),
		Status:      gjson.GetBytes(body, "status").String(),
		FilledPrice: filled,
	}

	return result, nil
}
