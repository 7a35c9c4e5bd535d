package mercury

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

const (
	defaultBaseURL = "https://api.mercury.com/api/v1"
	requestTimeout = 30 * time.Second
	maxRetries     = 3
	pageSize       = 100
)

// Client is an HTTP client for the Mercury banking API
type Client struct {
	apiToken   string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// NewClient creates a new Mercury API client
func NewClient(apiToken string, log *logger.Logger) *Client {
	return &Client{
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL: defaultBaseURL,
		// Mercury allows 60 requests per minute per token
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		logger:  log.WithField("component", "mercury"),
	}
}

// SetBaseURL overrides the default base URL (useful for testing)
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// doRequest performs an authenticated GET with rate-limit retry. 429s are
// retried up to maxRetries times with exponential backoff before surfacing a
// rate-limited connector error.
func (c *Client) doRequest(ctx context.Context, reqURL string, params url.Values) ([]byte, error) {
	if len(params) > 0 {
		parsed, err := url.Parse(reqURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse URL: %w", err)
		}
		parsed.RawQuery = params.Encode()
		reqURL = parsed.String()
	}

	backoff := time.Second
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		c.logger.Debug("API request", "url", reqURL, "attempt", attempt)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, connector.NewError(connector.KindTransient, "mercury", "request failed", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, connector.NewError(connector.KindTransient, "mercury", "failed to read response body", readErr)
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			c.logger.Warn("rate limited, retrying", "attempt", attempt, "backoff_ms", backoff.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				continue
			}
		}

		kind := connector.KindFromStatus(resp.StatusCode)
		c.logger.Error("API error", "status_code", resp.StatusCode, "kind", kind)
		return nil, connector.NewError(kind, "mercury",
			fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(body, 200)), nil)
	}

	return nil, connector.NewError(connector.KindRateLimited, "mercury", "rate limit retries exhausted", nil)
}

// GetTransactions fetches one page of bank transactions starting after the
// given opaque token (empty for the beginning of history).
func (c *Client) GetTransactions(ctx context.Context, startAfter string) (*TransactionsResponse, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("order", "asc")
	if startAfter != "" {
		params.Set("start_after", startAfter)
	}

	body, err := c.doRequest(ctx, c.baseURL+"/transactions", params)
	if err != nil {
		return nil, fmt.Errorf("GetTransactions failed: %w", err)
	}

	var resp TransactionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, connector.NewError(connector.KindPermanent, "mercury", "failed to decode transactions response", err)
	}
	return &resp, nil
}

// GetAccounts fetches all bank accounts visible to the token
func (c *Client) GetAccounts(ctx context.Context) (*AccountsResponse, error) {
	body, err := c.doRequest(ctx, c.baseURL+"/accounts", nil)
	if err != nil {
		return nil, fmt.Errorf("GetAccounts failed: %w", err)
	}

	var resp AccountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, connector.NewError(connector.KindPermanent, "mercury", "failed to decode accounts response", err)
	}
	return &resp, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
