// The MIT License (MIT)
//
// Copyright (c) 2026 Chemokoren
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package api is the network layer of the sync engine: a single authenticated
// GET entry point, a per-URL backoff tracker and a sequential paginator.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/Chemokoren/trailer/pkg/data"
	"github.com/Chemokoren/trailer/version"
)

const (
	networkTimeout  = 120 * time.Second
	maxConnsPerHost = 4
)

var userAgent = "trailer-v" + version.VERSION

// Response is the raw outcome of a successful GET.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Etag       string
	// LastPage is true when the Link header carries no rel="next" relation.
	LastPage bool
}

// Client issues authenticated GET requests against API servers. Every call
// consults the backoff tracker first and refreshes the server's rate-limit
// counters from the response headers afterwards.
type Client struct {
	Backoff *Backoff

	// OnRateUpdate, when set, is called after every response that carried
	// rate-limit headers. May be called from multiple goroutines.
	OnRateUpdate func(*data.Server)

	mu        sync.Mutex
	base      http.RoundTripper
	perServer map[string]*http.Client

	// rateMu serializes rate-counter updates; responses for one server
	// complete on many goroutines at once.
	rateMu sync.Mutex
}

// NewClient builds a client whose transport enforces the connection-per-host
// limit, the request timeout and GitHub's secondary rate limits.
func NewClient() (*Client, error) {
	base := &http.Transport{
		MaxConnsPerHost: maxConnsPerHost,
	}
	limiter, err := github_ratelimit.NewRateLimitWaiter(base)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %v", err)
	}
	return &Client{
		Backoff:   NewBackoff(),
		base:      limiter,
		perServer: map[string]*http.Client{},
	}, nil
}

// httpClientFor returns (building if needed) an http.Client that injects the
// server's token as an "Authorization: token ..." header.
func (c *Client) httpClientFor(server *data.Server) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.perServer[server.ID]; ok {
		return hc
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: server.AuthToken,
		TokenType:   "token",
	})
	hc := &http.Client{
		Timeout: networkTimeout,
		Transport: &oauth2.Transport{
			Base:   c.base,
			Source: ts,
		},
	}
	c.perServer[server.ID] = hc
	return hc
}

// ExpandPath resolves a path against the server's API base. Absolute URLs
// (as found in payload links) are used as-is.
func ExpandPath(server *data.Server, path string) string {
	if strings.HasPrefix(path, "/") {
		return strings.TrimSuffix(server.APIPath, "/") + path
	}
	return path
}

func buildURL(server *data.Server, path string, params map[string]string) string {
	expanded := ExpandPath(server, path)
	if len(params) == 0 {
		return expanded
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	sep := "?"
	if strings.Contains(expanded, "?") {
		sep = "&"
	}
	return expanded + sep + values.Encode()
}

// Get fetches a single resource. It refuses to touch the network when the
// server already failed this cycle (unless ignoreLastSync) or when the exact
// URL is under backoff; both cases surface as errors without a round-trip.
// Rate counters on the server are refreshed from every response, success or
// not. On an HTTP error the returned Response is still populated.
func (c *Client) Get(ctx context.Context, path string, server *data.Server, ignoreLastSync bool, params, extraHeaders map[string]string) (*Response, error) {
	if !server.LastSyncSucceeded && !ignoreLastSync {
		return nil, ErrServerBroken
	}

	fullURL := buildURL(server, path, params)

	if !c.Backoff.ShouldAttempt(fullURL) {
		next, _ := c.Backoff.NextAttempt(fullURL)
		logrus.Debugf("(%s) preempted fetch to previously broken link %s, won't access it until %s", server.Label, fullURL, next)
		return nil, ErrThrottled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &TransportError{URL: fullURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range extraHeaders {
		logrus.Debugf("(%s) custom header: %s=%s", server.Label, k, v)
		req.Header.Set(k, v)
	}

	res, err := c.httpClientFor(server).Do(req)
	if err != nil {
		logrus.Debugf("(%s) GET %s - FAILED: %v", server.Label, fullURL, err)
		return nil, &TransportError{URL: fullURL, Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{URL: fullURL, Err: err}
	}

	c.updateRateCounters(server, res.Header)

	resp := &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       body,
		Etag:       res.Header.Get("Etag"),
		LastPage:   lastPage(res.Header),
	}

	if res.StatusCode > 299 {
		if res.StatusCode >= 400 {
			c.Backoff.RecordFailure(fullURL, res.StatusCode)
		}
		if res.StatusCode == http.StatusNotModified {
			logrus.Debugf("(%s) no change reported (304)", server.Label)
		} else {
			logrus.Debugf("(%s) GET %s - RESULT: %d", server.Label, fullURL, res.StatusCode)
		}
		return resp, &HTTPError{URL: fullURL, Status: res.StatusCode}
	}

	logrus.Debugf("(%s) GET %s - RESULT: %d", server.Label, fullURL, res.StatusCode)
	c.Backoff.RecordSuccess(fullURL)
	return resp, nil
}

// updateRateCounters overwrites the server's rate fields with the most recent
// observed values, regardless of request outcome.
func (c *Client) updateRateCounters(server *data.Server, h http.Header) {
	if h.Get("X-RateLimit-Limit") == "" {
		return
	}
	c.rateMu.Lock()
	defer c.rateMu.Unlock()
	if v, err := strconv.ParseInt(h.Get("X-RateLimit-Remaining"), 10, 64); err == nil {
		server.RequestsRemaining = v
	}
	if v, err := strconv.ParseInt(h.Get("X-RateLimit-Limit"), 10, 64); err == nil {
		server.RequestsLimit = v
	}
	if v, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		server.ResetTime = time.Unix(v, 0)
	}
	if c.OnRateUpdate != nil {
		c.OnRateUpdate(server)
	}
}

func lastPage(h http.Header) bool {
	link := h.Get("Link")
	if link == "" {
		return true
	}
	return !strings.Contains(link, `rel="next"`)
}

// RateLimits fetches the server's current rate budget. Some enterprise
// installs answer 404 with a JSON body for /rate_limit; that means rate
// limiting is disabled, not that the server is broken.
func (c *Client) RateLimits(ctx context.Context, server *data.Server) (remaining, limit int64, reset time.Time, err error) {
	resp, err := c.Get(ctx, "/rate_limit", server, true, nil, nil)
	if err != nil {
		if resp != nil && rateLimitDisabled(resp) {
			return 10000, 10000, time.Time{}, nil
		}
		return -1, -1, time.Time{}, err
	}
	return server.RequestsRemaining, server.RequestsLimit, server.ResetTime, nil
}

// TestServer checks that the server is reachable with the stored credentials.
func (c *Client) TestServer(ctx context.Context, server *data.Server) error {
	resp, err := c.Get(ctx, "/rate_limit", server, true, nil, nil)
	if err != nil && resp != nil && rateLimitDisabled(resp) {
		return nil
	}
	return err
}

func rateLimitDisabled(resp *Response) bool {
	if resp.StatusCode != http.StatusNotFound || len(resp.Body) == 0 {
		return false
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return false
	}
	return payload.Message != "Not Found"
}
