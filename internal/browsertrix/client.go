// Package browsertrix implements archive.CrawlClient against the
// Browsertrix REST API.
package browsertrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sudan-digital-archive/archive-api/internal/archive"
)

const defaultTimeout = 60 * time.Second

// Config captures the parameters required to talk to a Browsertrix org.
type Config struct {
	// BaseURL is the API root, e.g. https://app.browsertrix.com/api.
	BaseURL string
	// LoginPath is resolved against BaseURL; defaults to /auth/jwt/login.
	LoginPath string
	OrgID     string
	Username  string
	Password  string
	// Timeout bounds every single HTTP call, downloads included.
	Timeout time.Duration
}

// Client is a CrawlClient backed by the Browsertrix HTTP API. The cached
// bearer token is owned by the client and guarded for concurrent sagas;
// any call that comes back 401 re-authenticates once and retries once.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

// New constructs a Client. It does not authenticate; the first API call
// (or an explicit Authenticate) obtains the token.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("browsertrix base URL is required")
	}
	if cfg.OrgID == "" {
		return nil, fmt.Errorf("browsertrix org id is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("browsertrix credentials are required")
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/auth/jwt/login"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

type authResponse struct {
	AccessToken string `json:"access_token"`
}

type createCrawlResponse struct {
	ID        string `json:"id"`
	RunNowJob string `json:"run_now_job"`
}

type crawlConfigResponse struct {
	LastCrawlState string `json:"lastCrawlState"`
}

// Authenticate logs in with the configured credentials and replaces the
// cached bearer token.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.LoginPath, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer closeBody(resp.Body, c.logger)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed with status %d", resp.StatusCode)
	}
	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if auth.AccessToken == "" {
		return fmt.Errorf("login response contained no access token")
	}

	c.mu.Lock()
	c.token = auth.AccessToken
	c.mu.Unlock()
	return nil
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do sends an authenticated request. On 401 it refreshes the token and
// retries exactly once; every other failure surfaces to the caller.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, contentType string) (*http.Response, error) {
	if c.bearer() == "" {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.send(ctx, method, rawURL, body, contentType)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	closeBody(resp.Body, c.logger)

	c.logger.Info("browsertrix token rejected, reauthenticating", zap.String("url", rawURL))
	if err := c.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("reauthenticate: %w", err)
	}
	return c.send(ctx, method, rawURL, body, contentType)
}

func (c *Client) send(ctx context.Context, method, rawURL string, body []byte, contentType string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}

// Create launches a single-page crawl for the URL and returns its handle.
func (c *Client) Create(ctx context.Context, targetURL string, browserProfile string) (archive.CrawlHandle, error) {
	payload, err := json.Marshal(newCrawlConfig(targetURL, browserProfile))
	if err != nil {
		return archive.CrawlHandle{}, fmt.Errorf("marshal crawl config: %w", err)
	}

	endpoint := fmt.Sprintf("%s/orgs/%s/crawlconfigs/", c.cfg.BaseURL, c.cfg.OrgID)
	resp, err := c.do(ctx, http.MethodPost, endpoint, payload, "application/json")
	if err != nil {
		return archive.CrawlHandle{}, fmt.Errorf("create crawl: %w", err)
	}
	defer closeBody(resp.Body, c.logger)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return archive.CrawlHandle{}, fmt.Errorf("create crawl returned status %d", resp.StatusCode)
	}
	var created createCrawlResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return archive.CrawlHandle{}, fmt.Errorf("decode create response: %w", err)
	}
	if created.ID == "" || created.RunNowJob == "" {
		return archive.CrawlHandle{}, fmt.Errorf("create response missing crawl or job id")
	}
	return archive.CrawlHandle{CrawlID: created.ID, JobRunID: created.RunNowJob}, nil
}

// Status reports the last crawl state for the handle's configuration.
func (c *Client) Status(ctx context.Context, handle archive.CrawlHandle) (archive.CrawlOutcome, error) {
	endpoint := fmt.Sprintf("%s/orgs/%s/crawlconfigs/%s", c.cfg.BaseURL, c.cfg.OrgID, handle.CrawlID)
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return archive.OutcomeUnknown, fmt.Errorf("get crawl status: %w", err)
	}
	defer closeBody(resp.Body, c.logger)

	if resp.StatusCode != http.StatusOK {
		return archive.OutcomeUnknown, fmt.Errorf("crawl status returned status %d", resp.StatusCode)
	}
	var status crawlConfigResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return archive.OutcomeUnknown, fmt.Errorf("decode status response: %w", err)
	}
	return mapCrawlState(status.LastCrawlState), nil
}

// Fetch downloads the finished crawl's WACZ file as a single artifact.
func (c *Client) Fetch(ctx context.Context, handle archive.CrawlHandle) ([]byte, error) {
	endpoint := fmt.Sprintf(
		"%s/orgs/%s/crawls/%s/download?prefer_single_wacz=true",
		c.cfg.BaseURL, c.cfg.OrgID, handle.JobRunID,
	)
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, fmt.Errorf("download wacz: %w", err)
	}
	defer closeBody(resp.Body, c.logger)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wacz download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read wacz body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("wacz download was empty")
	}
	return data, nil
}

func mapCrawlState(state string) archive.CrawlOutcome {
	switch state {
	case "complete":
		return archive.OutcomeComplete
	case "running", "starting", "waiting", "pending", "generate-wacz", "uploading-wacz":
		return archive.OutcomePending
	default:
		return archive.OutcomeUnknown
	}
}

func closeBody(body io.Closer, logger *zap.Logger) {
	if err := body.Close(); err != nil {
		logger.Warn("close response body failed", zap.Error(err))
	}
}
