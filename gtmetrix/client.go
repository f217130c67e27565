package gtmetrix

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the GTmetrix REST API v2.0 endpoint.
const DefaultBaseURL = "https://gtmetrix.com/api/2.0/"

const (
	defaultPollInterval = 3 * time.Second
	maxRateLimitRetries = 10
)

// Client talks to the GTmetrix API and is the factory for Test and Report
// objects. It authenticates every request with the API key as the basic
// auth username and an empty password.
//
// A Client and the objects made from it are meant for single-goroutine
// use; run independent Clients to poll several tests concurrently.
type Client struct {
	BaseURL *url.URL
	APIKey  string

	httpClient  *http.Client // follows redirects
	plainClient *http.Client // redirects disabled, for test status polling
	limiter     *rate.Limiter
	sleep       func(time.Duration)

	pollInterval time.Duration

	l *zap.SugaredLogger
}

// New builds a Client for the API at baseUrl. Pass nil as client to get a
// default http.Client; pass your own to control timeouts or transport.
func New(baseUrl string, apiKey string, client *http.Client, verbosity string) *Client {
	if client == nil {
		client = &http.Client{}
	}
	// The status endpoint of a completed test answers with a redirect to
	// the report endpoint, whose body has a different shape. Polling must
	// see the 3xx itself, so it goes through a non-following copy.
	plain := *client
	plain.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	u, err := url.Parse(baseUrl)
	if err != nil {
		log.Fatal(err)
	}
	return &Client{
		BaseURL:      u,
		APIKey:       apiKey,
		httpClient:   client,
		plainClient:  &plain,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		sleep:        time.Sleep,
		pollInterval: defaultPollInterval,
		l:            NewLogger(verbosity),
	}
}

// ConfigureRateLimit caps outgoing API calls at rps requests per second
// with the given burst. The default is no client-side limit; the server's
// own 429 answers are retried either way.
func (c *Client) ConfigureRateLimit(rps float64, burst int) {
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

func (c *Client) BasicAuth() string {
	b64 := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:", c.APIKey)))
	return fmt.Sprintf("Basic %s", b64)
}

func (c *Client) newRequest(method, path string, body interface{}, queryParams map[string]string) (*http.Request, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	u := c.BaseURL.ResolveReference(rel)
	var buf io.ReadWriter
	if body != nil {
		buf = new(bytes.Buffer)
		err := json.NewEncoder(buf).Encode(body)
		if err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, u.String(), buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/vnd.api+json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.BasicAuth())
	if queryParams != nil {
		q := req.URL.Query()
		for k, v := range queryParams {
			q.Add(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	return req, nil
}

// do executes the request and decodes the envelope into v. Transport
// failures come back as *ConnectionError, non-2xx answers as
// *RequestError with the server's error list when it parses. A 3xx body
// that does not parse is not an error: the caller decides what an
// unfollowed redirect means.
func (c *Client) do(req *http.Request, v interface{}, followRedirects bool) (*http.Response, error) {
	hc := c.plainClient
	if followRedirects {
		hc = c.httpClient
	}
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, &ConnectionError{Err: err}
	}
	resp, err := hc.Do(req)
	if err != nil {
		c.l.Errorf("request to %s failed: %s", req.URL, err)
		return nil, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		reqErr := &RequestError{StatusCode: resp.StatusCode}
		var body apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			reqErr.Errors = body.Errors
		}
		c.l.Errorf("request failed: status: %s, message: %s", resp.Status, reqErr.Message())
		return resp, reqErr
	}
	if v != nil {
		err = json.NewDecoder(resp.Body).Decode(v)
		if err != nil && resp.StatusCode < 300 {
			return resp, fmt.Errorf("gtmetrix: decoding response: %w", err)
		}
	}
	return resp, nil
}

// request builds and executes one API call, retrying on rate-limit
// answers. Rebuilding the request per attempt keeps POST bodies valid
// across retries.
func (c *Client) request(method, path string, body interface{}, queryParams map[string]string, v interface{}, followRedirects bool) (*http.Response, error) {
	for retries := maxRateLimitRetries; ; retries-- {
		req, err := c.newRequest(method, path, body, queryParams)
		if err != nil {
			return nil, err
		}
		resp, err := c.do(req, v, followRedirects)
		if err == nil || retries <= 0 {
			return resp, err
		}
		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			return resp, err
		}
		delay, ok := rateLimitDelay(reqErr, resp)
		if !ok {
			return resp, err
		}
		c.l.Debugf("rate limited, retrying in %s", delay)
		c.sleep(delay)
	}
}

// rateLimitDelay tells how long to wait before retrying a 429 answer.
// E42900 means too many tests pending, the documented poll interval is 3
// seconds. E42901 means the rate limit window is exhausted and
// X-RateLimit-Reset holds the seconds until it opens again.
func rateLimitDelay(e *RequestError, resp *http.Response) (time.Duration, bool) {
	if e.StatusCode != http.StatusTooManyRequests || len(e.Errors) == 0 {
		return 0, false
	}
	switch e.Errors[0].Code {
	case "E42900":
		return defaultPollInterval, true
	case "E42901":
		secs, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Reset"))
		if err != nil || secs < 1 {
			secs = 3
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

// download streams the body of an authenticated GET into dst. Resource
// URLs redirect to storage, so redirects are followed here.
func (c *Client) download(rawURL string, dst io.Writer) error {
	rel, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	u := c.BaseURL.ResolveReference(rel)
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.BasicAuth())
	if err := c.limiter.Wait(req.Context()); err != nil {
		return &ConnectionError{Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		reqErr := &RequestError{StatusCode: resp.StatusCode}
		var body apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			reqErr.Errors = body.Errors
		}
		return reqErr
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return &ConnectionError{Err: err}
	}
	return nil
}

// trimBase strips the API base URL off link URLs the server hands back,
// so they can be re-resolved as paths. External links pass through as-is.
func (c *Client) trimBase(link string) string {
	return strings.TrimPrefix(link, c.BaseURL.String())
}
