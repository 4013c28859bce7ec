// Package avatar fetches deterministic seeded art for a decision.
package avatar

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

const maxImageSize = 5 << 20

// Client downloads images from a seed-addressed endpoint such as robohash.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an avatar client. httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: httpClient}
}

// Seed derives a stable hash-like token from the given parts.
func Seed(parts ...string) string {
	sum := blake3.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}

// Fetch downloads the PNG for seed.
func (c *Client) Fetch(ctx context.Context, seed string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s.png?size=512x512&set=set1", c.baseURL, url.PathEscape(seed))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create avatar request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "avatar request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("avatar endpoint returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, errors.Wrap(err, "read avatar")
	}
	if len(data) == 0 {
		return nil, errors.New("empty avatar")
	}
	return data, nil
}
