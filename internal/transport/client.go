package transport

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// CheckExternalIPAddressURL answers with the caller's outbound IP address.
const CheckExternalIPAddressURL = "https://domains.google.com/checkip"

// ClientConfig holds the per-registry query policy knobs.
type ClientConfig struct {
	BaseURL     string
	AuthKey     string
	KeyEnvName  string
	KeyFilePath string
	MaxTrials   int
	Sleep       time.Duration
}

func (cfg *ClientConfig) applyDefaults() {
	if cfg.MaxTrials == 0 {
		cfg.MaxTrials = 6
	}
	if cfg.Sleep == 0 {
		cfg.Sleep = 60 * time.Second
	}
	if cfg.KeyFilePath == "" {
		cfg.KeyFilePath = ".env"
	}
}

// Client layers the status-code and retry policy over a Fetcher:
// 200 parses, 401/403 raises a permission error, 404 is value-absent,
// 500 is retried briefly then skipped, 502 sleeps a backoff then retries.
type Client struct {
	cfg     ClientConfig
	fetcher Fetcher

	// sleepFn is swapped out in tests so retries do not really wait.
	sleepFn func(time.Duration)
	// Metrics, when set, is called after each query attempt completes.
	Metrics func(succeeded bool)
	// Timing, when set, receives each attempt's round-trip duration.
	Timing func(time.Duration)
}

// NewClient creates a query client over the given fetcher.
func NewClient(fetcher Fetcher, cfg ClientConfig) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:     cfg,
		fetcher: fetcher,
		sleepFn: time.Sleep,
	}
}

// BaseURL returns the configured registry base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

func (c *Client) recordQuery(succeeded bool) {
	if c.Metrics != nil {
		c.Metrics(succeeded)
	}
}

func (c *Client) recordTiming(start time.Time) {
	if c.Timing != nil {
		c.Timing(time.Since(start))
	}
}

// Get queries path with params and returns the raw JSON payload.
// A (nil, nil) return means the entity was not found (404): the caller
// skips it and the crawl continues.
func (c *Client) Get(query string, params url.Values) (json.RawMessage, error) {
	fullURL := c.cfg.BaseURL + query
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	header := make(http.Header)
	if c.cfg.AuthKey != "" {
		// Registry basic auth: the key is the username, the password blank.
		header.Set("Authorization",
			"Basic "+base64.StdEncoding.EncodeToString([]byte(c.cfg.AuthKey+":")))
	}

	trials := c.cfg.MaxTrials
	for trials > 0 {
		start := time.Now()
		status, body, err := c.fetcher.Fetch(http.MethodGet, fullURL, header, nil)
		c.recordTiming(start)
		if err != nil {
			c.recordQuery(false)
			return nil, err
		}
		if status == http.StatusOK {
			c.recordQuery(true)
			return json.RawMessage(body), nil
		}

		c.recordQuery(false)
		logrus.Warnf("Status code %d from %s", status, query)
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, c.permissionError(query)
		case http.StatusNotFound:
			logrus.Errorf("Skipping %s", query)
			return nil, nil
		case http.StatusInternalServerError:
			logrus.Warnf("Will skip after %d repeat", c.cfg.MaxTrials-trials)
			if trials < c.cfg.MaxTrials-1 {
				return nil, nil
			}
		case http.StatusBadGateway:
			// Likely registry overload, so wait longer before the retry.
			logrus.Warnf("Adding a %s wait", c.cfg.Sleep)
			c.sleepFn(c.cfg.Sleep)
		}
		logrus.Warnf("Trying again in %s...", c.cfg.Sleep)
		c.sleepFn(c.cfg.Sleep)
		trials--
	}
	return nil, &RetryExhaustedError{Query: c.cfg.BaseURL + query, Trials: c.cfg.MaxTrials}
}

// Post issues one un-retried request with the given body and content type.
// The charity SOAP surface sits on this.
func (c *Client) Post(query string, contentType string, body []byte, extra http.Header) (int, []byte, error) {
	header := make(http.Header)
	header.Set("Content-Type", contentType)
	for k, vals := range extra {
		for _, v := range vals {
			header.Add(k, v)
		}
	}
	start := time.Now()
	status, payload, err := c.fetcher.Fetch(http.MethodPost, c.cfg.BaseURL+query, header, body)
	c.recordTiming(start)
	c.recordQuery(err == nil && status == http.StatusOK)
	return status, payload, err
}

func (c *Client) permissionError(query string) error {
	ip, err := ExternalIPAddress(c.fetcher)
	if err != nil {
		logrus.Warnf("Could not determine external IP address: %v", err)
		ip = "unknown"
	}
	return newPermissionError(query, ip, c.cfg.KeyEnvName, c.cfg.KeyFilePath)
}

// ExternalIPAddress checks the computer's outbound IP address. A failure is a
// ConnectivityError, distinct from a permission problem.
func ExternalIPAddress(fetcher Fetcher) (string, error) {
	status, body, err := fetcher.Fetch(http.MethodGet, CheckExternalIPAddressURL, nil, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &ConnectivityError{Cause: &RetryExhaustedError{Query: CheckExternalIPAddressURL, Trials: 1}}
	}
	return strings.TrimSpace(string(body)), nil
}
