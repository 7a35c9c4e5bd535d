package doorloop

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
	defaultBaseURL = "https://app.doorloop.com/api"
	requestTimeout = 30 * time.Second
	maxRetries     = 3
	pageSize       = 100
)

// Client is an HTTP client for the DoorLoop property-management API
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// NewClient creates a new DoorLoop API client
func NewClient(apiKey string, log *logger.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL: defaultBaseURL,
		limiter: rate.NewLimiter(rate.Limit(2), 5),
		logger:  log.WithField("component", "doorloop"),
	}
}

// SetBaseURL overrides the default base URL (useful for testing)
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

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
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, connector.NewError(connector.KindTransient, "doorloop", "request failed", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, connector.NewError(connector.KindTransient, "doorloop", "failed to read response body", readErr)
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
		return nil, connector.NewError(kind, "doorloop",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	return nil, connector.NewError(connector.KindRateLimited, "doorloop", "rate limit retries exhausted", nil)
}

// GetTransactions fetches one page of property transactions. DoorLoop
// paginates by page number; page 1 is the beginning of history.
func (c *Client) GetTransactions(ctx context.Context, page int) (*TransactionsResponse, error) {
	params := url.Values{}
	params.Set("page_size", strconv.Itoa(pageSize))
	params.Set("page_number", strconv.Itoa(page))
	params.Set("sort_by", "date")

	body, err := c.doRequest(ctx, c.baseURL+"/transactions", params)
	if err != nil {
		return nil, fmt.Errorf("GetTransactions failed: %w", err)
	}

	var resp TransactionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, connector.NewError(connector.KindPermanent, "doorloop", "failed to decode transactions response", err)
	}
	return &resp, nil
}

// GetBankAccounts fetches the portfolio's operating accounts
func (c *Client) GetBankAccounts(ctx context.Context) (*AccountsResponse, error) {
	body, err := c.doRequest(ctx, c.baseURL+"/accounts", nil)
	if err != nil {
		return nil, fmt.Errorf("GetBankAccounts failed: %w", err)
	}

	var resp AccountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, connector.NewError(connector.KindPermanent, "doorloop", "failed to decode accounts response", err)
	}
	return &resp, nil
}
