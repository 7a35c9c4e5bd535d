package wave

import (
	"bytes"
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
	defaultBaseURL = "https://api.waveapps.com/v1"
	requestTimeout = 30 * time.Second
	maxRetries     = 3
	pageSize       = 50
)

// Client is an HTTP client for the Wave accounting API
type Client struct {
	apiToken   string
	businessID string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// NewClient creates a new Wave API client scoped to one business
func NewClient(apiToken, businessID string, log *logger.Logger) *Client {
	return &Client{
		apiToken:   apiToken,
		businessID: businessID,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL: defaultBaseURL,
		limiter: rate.NewLimiter(rate.Limit(2), 5),
		logger:  log.WithField("component", "wave"),
	}
}

// SetBaseURL overrides the default base URL (useful for testing)
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// doRequest performs an authenticated request with rate-limit retry
func (c *Client) doRequest(ctx context.Context, method, reqURL string, params url.Values, payload any) ([]byte, error) {
	if len(params) > 0 {
		parsed, err := url.Parse(reqURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse URL: %w", err)
		}
		parsed.RawQuery = params.Encode()
		reqURL = parsed.String()
	}

	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	backoff := time.Second
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		c.logger.Debug("API request", "method", method, "url", reqURL, "attempt", attempt)

		var bodyReader io.Reader
		if reqBody != nil {
			bodyReader = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
		req.Header.Set("Accept", "application/json")
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, connector.NewError(connector.KindTransient, "wave", "request failed", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, connector.NewError(connector.KindTransient, "wave", "failed to read response body", readErr)
		}

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
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
		return nil, connector.NewError(kind, "wave",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	return nil, connector.NewError(connector.KindRateLimited, "wave", "rate limit retries exhausted", nil)
}

// GetTransactions fetches one page of ledger transactions
func (c *Client) GetTransactions(ctx context.Context, pageToken string) (*TransactionsResponse, error) {
	params := url.Values{}
	params.Set("page_size", strconv.Itoa(pageSize))
	if pageToken != "" {
		params.Set("page_token", pageToken)
	}

	reqURL := fmt.Sprintf("%s/businesses/%s/transactions", c.baseURL, c.businessID)
	body, err := c.doRequest(ctx, http.MethodGet, reqURL, params, nil)
	if err != nil {
		return nil, fmt.Errorf("GetTransactions failed: %w", err)
	}

	var resp TransactionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, connector.NewError(connector.KindPermanent, "wave", "failed to decode transactions response", err)
	}
	return &resp, nil
}

// GetAccounts fetches the business's accounts
func (c *Client) GetAccounts(ctx context.Context) (*AccountsResponse, error) {
	reqURL := fmt.Sprintf("%s/businesses/%s/accounts", c.baseURL, c.businessID)
	body, err := c.doRequest(ctx, http.MethodGet, reqURL, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("GetAccounts failed: %w", err)
	}

	var resp AccountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, connector.NewError(connector.KindPermanent, "wave", "failed to decode accounts response", err)
	}
	return &resp, nil
}

// CreateTransactions pushes a batch of transactions. Wave deduplicates on
// external_reference, so re-pushing the same batch is safe.
func (c *Client) CreateTransactions(ctx context.Context, req CreateTransactionsRequest) (*CreateTransactionsResponse, error) {
	reqURL := fmt.Sprintf("%s/businesses/%s/transactions", c.baseURL, c.businessID)
	body, err := c.doRequest(ctx, http.MethodPost, reqURL, nil, req)
	if err != nil {
		return nil, fmt.Errorf("CreateTransactions failed: %w", err)
	}

	var resp CreateTransactionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, connector.NewError(connector.KindPermanent, "wave", "failed to decode create response", err)
	}
	return &resp, nil
}
