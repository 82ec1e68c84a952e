// Package authority implements the client-credentials exchange with the
// external token authority, including proxy support and a placeholder
// fallback so the service keeps answering when the authority is down.
package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"RelayGuard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"golang.org/x/net/proxy"
)

// Defaults applied when configuration leaves fields unset.
const (
	DefaultTimeout  = 5 * time.Second
	DefaultValidity = time.Hour
	// PlaceholderValidity keeps degraded tokens short-lived so a recovered
	// authority is retried quickly.
	PlaceholderValidity = 5 * time.Minute
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Client exchanges client credentials for bearer tokens. It satisfies the
// coordination layer's TokenIssuer interface.
type Client struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	timeout      time.Duration
	logger       *log.Helper
}

// NewClient builds the authority client from configuration. An invalid
// proxy URL is a startup error; an empty authority URL is not, the client
// then always issues placeholders (useful in development).
func NewClient(c *conf.Bootstrap, logger log.Logger) (*Client, error) {
	guard := c.Guard.Credential
	timeout := DefaultTimeout
	if guard.Timeout != nil {
		timeout = guard.Timeout.AsDuration()
	}

	httpClient, err := newHTTPClient(guard.ProxyUrl, timeout)
	if err != nil {
		return nil, fmt.Errorf("authority http client: %w", err)
	}

	return &Client{
		endpoint:     guard.AuthorityUrl,
		clientID:     guard.ClientId,
		clientSecret: guard.ClientSecret,
		httpClient:   httpClient,
		timeout:      timeout,
		logger:       log.NewHelper(logger),
	}, nil
}

// Issue requests a fresh token. Any transport failure degrades to a
// placeholder token instead of an error: callers can still exercise the
// relay path, and the short placeholder validity forces an early retry
// against the authority.
func (c *Client) Issue(ctx context.Context) (string, time.Duration, bool, error) {
	if c.endpoint == "" {
		c.logger.Warnw("no authority configured, issuing placeholder token")
		return c.placeholder(), PlaceholderValidity, true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, false, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warnw("authority unreachable, issuing placeholder token", "error", err)
		return c.placeholder(), PlaceholderValidity, true, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// A definitive rejection (bad credentials) must not be papered over
		// with a placeholder; only transport trouble degrades.
		if resp.StatusCode >= 500 {
			c.logger.Warnw("authority error, issuing placeholder token",
				"status", resp.StatusCode)
			return c.placeholder(), PlaceholderValidity, true, nil
		}
		return "", 0, false, fmt.Errorf("authority rejected token request: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, false, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, false, fmt.Errorf("authority returned empty access token")
	}

	validity := DefaultValidity
	if tr.ExpiresIn > 0 {
		validity = time.Duration(tr.ExpiresIn) * time.Second
	}
	return tr.AccessToken, validity, false, nil
}

func (c *Client) placeholder() string {
	return "placeholder-" + uuid.NewString()
}

// newHTTPClient wires the optional proxy. SOCKS5 proxies go through the
// x/net dialer, http(s) proxies through the standard transport.
func newHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if proxyURL == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	switch parsed.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if parsed.User != nil {
			password, _ := parsed.User.Password()
			auth = &proxy.Auth{User: parsed.User.Username(), Password: password}
		}
		host := parsed.Host
		if !strings.Contains(host, ":") {
			host += ":1080"
		}
		dialer, err := proxy.SOCKS5("tcp", host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
		}
		return &http.Client{
			Transport: &http.Transport{Dial: dialer.Dial},
			Timeout:   timeout,
		}, nil
	case "http", "https":
		return &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
			Timeout:   timeout,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", parsed.Scheme)
	}
}
