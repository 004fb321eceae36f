// Package analyzer calls the remote video analysis API.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout  = 60 * time.Second
	maxResponseSize = 4 << 20

	StandardCommentLimit = 100
	DeepCommentLimit     = 500
)

type Request struct {
	URL      string
	Tier     string
	Platform string
	Deep     bool
}

// Client is the HTTP client of the analysis API.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// PlatformOf guesses the platform from the video host.
func PlatformOf(videoURL string) string {
	u, err := url.Parse(videoURL)
	if err == nil && strings.Contains(strings.ToLower(u.Host), "tiktok") {
		return "tiktok"
	}
	return "youtube"
}

// Analyze returns the raw JSON result. A response carrying an "error" field is
// a failure even with a 2xx status.
func (c *Client) Analyze(ctx context.Context, req Request) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("analyzer url not configured")
	}

	platform := req.Platform
	if platform == "" {
		platform = PlatformOf(req.URL)
	}
	limit := StandardCommentLimit
	if req.Deep {
		limit = DeepCommentLimit
	}

	q := url.Values{}
	q.Set("url", req.URL)
	q.Set("tier", req.Tier)
	q.Set("platform", platform)
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/m3/analyze?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("url", req.URL).Dur("elapsed", elapsed).Msg("analyzer request error")
		return nil, fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read analyzer response: %w", err)
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode analyzer response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || envelope.Error != "" {
		log.Warn().
			Str("url", req.URL).
			Int("status", resp.StatusCode).
			Str("error", envelope.Error).
			Dur("elapsed", elapsed).
			Msg("analyzer rejected request")
		if envelope.Error != "" {
			return nil, fmt.Errorf("analyzer error: %s", envelope.Error)
		}
		return nil, fmt.Errorf("analyzer failed with status %d", resp.StatusCode)
	}

	log.Info().
		Str("url", req.URL).
		Str("platform", platform).
		Dur("elapsed", elapsed).
		Msg("analysis completed")
	return json.RawMessage(body), nil
}
