// Package wildberries fetches current product attributes from the Wildberries card API.
package wildberries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"wbtrack-rest-api/internal/model"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public product card endpoint.
	DefaultBaseURL = "https://card.wb.ru/cards/v1/detail"

	appType     = "1"
	currency    = "rub"
	destination = "-1257786"
	spp         = "30"

	// maxBodySize caps how much of a response is read.
	maxBodySize = 4 << 20
)

// Config holds client settings.
type Config struct {
	BaseURL        string
	APIToken       string
	MaxAttempts    int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
	RatePerSecond  float64 // zero disables throttling
	RateBurst      int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		MaxAttempts:    3,
		RetryDelay:     2 * time.Second,
		AttemptTimeout: 30 * time.Second,
		RatePerSecond:  5,
		RateBurst:      5,
	}
}

// Client fetches product details with bounded retries.
// It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
}

// NewClient creates a new Wildberries client.
func NewClient(httpClient *http.Client, cfg Config) *Client {
	def := DefaultConfig()
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// cardResponse mirrors the subset of the card API payload the client reads.
// Absent numbers decode as zero.
type cardResponse struct {
	Data struct {
		Products []cardProduct `json:"products"`
	} `json:"data"`
}

type cardProduct struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	PriceU       float64 `json:"priceU"`
	SalePriceU   float64 `json:"salePriceU"`
	ReviewRating float64 `json:"reviewRating"`
	Rating       float64 `json:"rating"`
	Sizes        []struct {
		Stocks []struct {
			Qty int `json:"qty"`
		} `json:"stocks"`
	} `json:"sizes"`
}

// statusError is a non-200 upstream reply.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "upstream returned status " + strconv.Itoa(e.code)
}

// FetchDetails returns the current attributes of one product.
//
// A 404 or an empty product list is definitive and returns
// model.ErrProductNotFound at once. Transport errors and other statuses are
// retried after a fixed delay; exhausting all attempts returns
// model.ErrUpstreamUnavailable.
func (c *Client) FetchDetails(ctx context.Context, artikul string) (*model.ProductDetails, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		details, err := c.fetchOnce(ctx, artikul)
		if err == nil {
			return details, nil
		}
		if errors.Is(err, model.ErrProductNotFound) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		log.Printf("[Wildberries] Attempt %d/%d for artikul=%s failed: %v", attempt, c.cfg.MaxAttempts, artikul, err)

		if attempt < c.cfg.MaxAttempts {
			if err := sleep(ctx, c.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%w: artikul %s after %d attempts: %v",
		model.ErrUpstreamUnavailable, artikul, c.cfg.MaxAttempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, artikul string) (*model.ProductDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.detailURL(artikul), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: artikul %s", model.ErrProductNotFound, artikul)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var card cardResponse
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(card.Data.Products) == 0 {
		return nil, fmt.Errorf("%w: artikul %s", model.ErrProductNotFound, artikul)
	}

	return toDetails(artikul, &card.Data.Products[0]), nil
}

func (c *Client) detailURL(artikul string) string {
	q := url.Values{}
	q.Set("appType", appType)
	q.Set("curr", currency)
	q.Set("dest", destination)
	q.Set("sp", spp)
	q.Set("nm", artikul)
	return c.cfg.BaseURL + "?" + q.Encode()
}

func toDetails(requested string, p *cardProduct) *model.ProductDetails {
	artikul := requested
	if p.ID != 0 {
		artikul = strconv.FormatInt(p.ID, 10)
	}

	rating := p.ReviewRating
	if rating == 0 {
		rating = p.Rating
	}

	quantity := 0
	for _, size := range p.Sizes {
		for _, stock := range size.Stocks {
			quantity += stock.Qty
		}
	}

	return &model.ProductDetails{
		Artikul:       artikul,
		Name:          p.Name,
		StandardPrice: p.PriceU / 100,
		SellPrice:     p.SalePriceU / 100,
		TotalQuantity: quantity,
		Rating:        rating,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
