package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/modelget/rget/pkg/logging"
	"github.com/modelget/rget/pkg/version"
)

const (
	DefaultMaxRetries  = 30
	DefaultTimeout     = 300 * time.Second
	DefaultBackoffUnit = time.Second

	stepbackBase = 3
)

// Options configures a Client. The zero value is usable; zero fields fall back
// to the defaults above.
type Options struct {
	// MaxRetries is the number of retries after the first attempt. Zero means
	// DefaultMaxRetries; a negative value disables retries.
	MaxRetries int
	// Timeout bounds connection setup, the wait for response headers and every
	// individual body read. It is not an overall transfer deadline.
	Timeout        time.Duration
	ConnectTimeout time.Duration
	// Proxy is a proxy URL. Empty means no proxy.
	Proxy string
	// TLSVerify enables certificate verification. It is off by default: the
	// model host's certificate chain is unreliable in the environments rget is
	// deployed to, so the trust relaxation is intentional.
	TLSVerify bool
	// BackoffUnit scales the stepback delay. One second unless set.
	BackoffUnit time.Duration
	// Headers are added to every request unless the caller already set them.
	Headers http.Header
	// ResolveOverrides maps host:port to ip:port for the dialer.
	ResolveOverrides map[string]string
	// Transport replaces the network transport entirely (tests).
	Transport http.RoundTripper
}

// Client issues GET requests with retry and response classification. It is
// safe for concurrent use by multiple transfers.
type Client struct {
	retryClient *retryablehttp.Client
	opts        Options
}

// DefaultHeaders returns the header set merged under caller headers.
func DefaultHeaders() http.Header {
	return http.Header{
		"User-Agent": []string{version.UserAgent()},
	}
}

// defaultHeaderTransport fills in default headers the caller did not provide.
type defaultHeaderTransport struct {
	Transport http.RoundTripper
	Headers   http.Header
}

func (t *defaultHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, values := range t.Headers {
		if req.Header.Get(key) != "" {
			continue
		}
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return t.Transport.RoundTrip(req)
}

func New(opts Options) (*Client, error) {
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = opts.Timeout
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = DefaultBackoffUnit
	}
	headers := DefaultHeaders()
	for key, values := range opts.Headers {
		headers[http.CanonicalHeaderKey(key)] = values
	}

	baseTransport := opts.Transport
	if baseTransport == nil {
		transport, err := newTransport(opts)
		if err != nil {
			return nil, err
		}
		baseTransport = transport
	}

	c := &Client{opts: opts}
	c.retryClient = &retryablehttp.Client{
		HTTPClient: &http.Client{
			Transport:     &defaultHeaderTransport{Transport: baseTransport, Headers: headers},
			CheckRedirect: checkRedirectFunc,
		},
		Logger:       nil,
		RetryWaitMin: c.StepbackDelay(0),
		RetryWaitMax: c.StepbackDelay(opts.MaxRetries),
		RetryMax:     opts.MaxRetries,
		CheckRetry:   RetryPolicy,
		Backoff:      c.backoffFunc,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
	return c, nil
}

func newTransport(opts Options) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy: nil,
		DialContext: transportDialContext(&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}, opts.ResolveOverrides),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
		// Content-Length must describe the bytes that land on disk.
		DisableCompression: true,
		// #nosec G402 -- verification is opt-in, see Options.TLSVerify.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !opts.TLSVerify},
	}
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", opts.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return transport, nil
}

// MaxRetries returns the retry ceiling shared by the client and the transfer
// engine's stream resumption.
func (c *Client) MaxRetries() int {
	return c.opts.MaxRetries
}

// Timeout returns the per call timeout.
func (c *Client) Timeout() time.Duration {
	return c.opts.Timeout
}

// StepbackDelaySeconds is 3 + (retries >> 1)^2.
func StepbackDelaySeconds(retries int) int {
	if retries < 0 {
		retries = 0
	}
	half := retries >> 1
	return stepbackBase + half*half
}

// StepbackDelay is the wait before retry number retries+1, in units of the
// client's BackoffUnit.
func (c *Client) StepbackDelay(retries int) time.Duration {
	return time.Duration(StepbackDelaySeconds(retries)) * c.opts.BackoffUnit
}

func (c *Client) backoffFunc(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
	delay := c.StepbackDelay(attemptNum)
	logger := logging.GetLogger()
	event := logger.Debug().Int("retries", attemptNum).Dur("delay", delay)
	if resp != nil {
		event = event.Int("status", resp.StatusCode)
	}
	event.Msg("Retrying")
	return delay
}

// RetryPolicy retries every failure except success, 401, 404 and 416 responses,
// and a cancelled or expired context.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp == nil {
		return true, nil
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return false, nil
	}
	logger := logging.GetLogger()
	logger.Debug().
		Int("status", resp.StatusCode).
		Str("reason", resp.Status).
		Msg("GET Request failed")
	return true, nil
}

// Get issues a streaming GET. Caller headers win over the default header set.
// On success the response body is open and must be closed by the caller; on
// failure the returned error is always an *Error.
func (c *Client) Get(ctx context.Context, urlString string, headers http.Header) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, urlString, nil)
	if err != nil {
		return nil, NewError(KindUnknown, fmt.Sprintf("invalid url %s: %v", urlString, err), err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.retryClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, classifyTransportError(ctx, urlString, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		resp.Body = newIdleTimeoutBody(resp.Body, c.opts.Timeout)
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, classifyStatus(resp)
}

func classifyStatus(resp *http.Response) *Error {
	reason := resp.Status
	if reason == "" {
		reason = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	e := &Error{StatusCode: resp.StatusCode}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		e.Kind = KindAuthenticationRequired
		e.Message = "This download requires authentication. Please supply an API key to continue this download."
	case http.StatusNotFound:
		e.Kind = KindNotFound
		e.Message = reason
	case http.StatusRequestedRangeNotSatisfiable:
		e.Kind = KindRangeNotSatisfiable
		e.Message = reason
	default:
		e.Kind = KindNetworkTransient
		e.Message = reason
	}
	return e
}

func classifyTransportError(ctx context.Context, urlString string, err error) *Error {
	if ctx.Err() != nil {
		return NewError(KindNetworkTransient, fmt.Sprintf("GET request cancelled for %s", urlString), ctx.Err())
	}
	if isTimeout(err) {
		return NewError(KindTimeout, fmt.Sprintf("GET request timed out for %s", urlString), err)
	}
	return NewError(KindNetworkTransient, fmt.Sprintf("GET request failed for %s: %v", urlString, err), err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// checkRedirectFunc is a wrapper around http.Client.CheckRedirect that allows for printing out redirects
func checkRedirectFunc(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	logger := logging.GetLogger()
	event := logger.Trace().
		Str("redirect_url", req.URL.Redacted()).
		Str("url", via[0].URL.Redacted())
	if req.Response != nil {
		event = event.Int("status", req.Response.StatusCode)
	}
	event.Msg("Redirect")
	return nil
}

// transportDialContext is a wrapper around net.Dialer that allows for overriding DNS lookups via the values passed to
// `--resolve` argument.
func transportDialContext(dialer *net.Dialer, overrides map[string]string) func(context.Context, string, string) (net.Conn, error) {
	// Allow for overriding DNS lookups in the dialer without impacting Host and SSL resolution
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if addrOverride := overrides[addr]; addrOverride != "" {
			logger := logging.GetLogger()
			logger.Debug().Str("addr", addr).Str("override", addrOverride).Msg("DNS Override")
			addr = addrOverride
		}
		return dialer.DialContext(ctx, network, addr)
	}
}

func GetSchemeHostKey(urlString string) (string, error) {
	parsedURL, err := url.Parse(urlString)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host), err
}
