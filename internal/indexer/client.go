// Package indexer reads recent token transfers from a TronGrid-compatible
// event indexer.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"guardian-sentinel-bot/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Default configuration values.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
	DefaultLimit       = 5
)

// Client fetches transfer events over HTTP.
type Client struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithAPIKey sets the key sent as TRON-PRO-API-KEY.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a new indexer client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type eventsResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    []struct {
		TransactionID  string `json:"transaction_id"`
		BlockTimestamp int64  `json:"block_timestamp"`
		EventName      string `json:"event_name"`
		Result         struct {
			From  string `json:"from"`
			To    string `json:"to"`
			Value string `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// RecentTransfers returns the latest transfer events of the target contract,
// newest first. Amounts are left raw; scaling is the caller's concern.
func (c *Client) RecentTransfers(ctx context.Context, target types.WatchTarget, limit int) ([]types.TransferEvent, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := url.Values{}
	q.Set("event_name", "Transfer")
	q.Set("only_confirmed", "true")
	q.Set("order_by", "block_timestamp,desc")
	q.Set("limit", fmt.Sprintf("%d", limit))
	endpoint := fmt.Sprintf("%s/v1/contracts/%s/events?%s", c.baseURL, url.PathEscape(target.ContractAddress), q.Encode())

	var resp eventsResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, errors.Wrapf(err, "transfers for %s", target.Name)
	}
	if !resp.Success && resp.Error != "" {
		return nil, errors.Errorf("indexer error for %s: %s", target.Name, resp.Error)
	}

	events := make([]types.TransferEvent, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.EventName != "" && d.EventName != "Transfer" {
			continue
		}
		from, err := DisplayAddress(d.Result.From)
		if err != nil {
			log.Warnf("⚠️ Unresolvable sender in tx %s: %v", d.TransactionID, err)
			from = d.Result.From
		}
		to, err := DisplayAddress(d.Result.To)
		if err != nil {
			to = d.Result.To
		}
		events = append(events, types.TransferEvent{
			TxID:      d.TransactionID,
			Token:     target.Name,
			From:      from,
			To:        to,
			RawAmount: d.Result.Value,
			Timestamp: time.UnixMilli(d.BlockTimestamp).UTC(),
		})
	}
	return events, nil
}

// get performs a GET with retries and exponential backoff.
func (c *Client) get(ctx context.Context, endpoint string, result interface{}) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.Wrap(err, "create request")
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = errors.Wrap(err, "http request")
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = errors.Wrap(err, "read response")
			continue
		}

		// Retry on rate limiting and server errors.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = errors.Errorf("http status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("http status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, result); err != nil {
			return errors.Wrap(err, "unmarshal response")
		}
		return nil
	}

	return errors.Wrapf(lastErr, "max retries exceeded")
}
