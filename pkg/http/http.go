package http

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-http-utils/headers"

	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	"github.com/NamanBalaji/mtdl/internal/logger"
)

const (
	DefaultTimeout        = 30 * time.Second
	defaultIdleTimeout    = 90 * time.Second
	keepAlivePeriod       = 30 * time.Second
	maxIdleConns          = 100
	tlsHandshakeTimeout   = 10 * time.Second
	expectContinueTimeout = 1 * time.Second
	maxConnsPerHost       = 16
	drainLimit            = 64 * 1024

	DefaultUserAgent = "mtdl/1.0"

	defaultDownloadName = "download"
)

type Client struct {
	*http.Client

	timeout   time.Duration
	userAgent string
}

type ClientOption func(*Client)

// WithTimeout sets the per-attempt connect and response-header timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent sent when the caller supplies none.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a new HTTP client with custom transport settings.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
	}

	for _, opt := range opts {
		opt(c)
	}

	tlsTimeout := tlsHandshakeTimeout
	if c.timeout < tlsTimeout {
		tlsTimeout = c.timeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   c.timeout,
			KeepAlive: keepAlivePeriod,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       defaultIdleTimeout,
		TLSHandshakeTimeout:   tlsTimeout,
		ResponseHeaderTimeout: c.timeout,
		ExpectContinueTimeout: expectContinueTimeout,
		DisableCompression:    true,
		MaxConnsPerHost:       maxConnsPerHost,
	}

	c.Client = &http.Client{
		Transport: transport,
	}

	return c
}

// Timeout returns the per-attempt timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

type requestOptions struct {
	rng  *ByteRange
	body string
}

type RequestOption func(*requestOptions)

// WithRange adds a Range header synthesized from r.
func WithRange(r ByteRange) RequestOption {
	return func(o *requestOptions) {
		o.rng = &r
	}
}

// WithBody sends body as the request payload.
func WithBody(body string) RequestOption {
	return func(o *requestOptions) {
		o.body = body
	}
}

// Response is a successful (200 or 206) response with a readable body.
type Response struct {
	StatusCode    int
	Status        string
	ContentLength int64
	Header        http.Header
	Body          io.ReadCloser

	raw *http.Response
}

// Close releases the body.
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}

	err := r.Body.Close()
	r.Body = nil

	return err
}

// WriteTo streams the remaining body into w.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	if r.Body == nil {
		return 0, dlErrors.Newf(dlErrors.CodeNullContent, "response has no body")
	}

	return io.Copy(w, r.Body)
}

// ReadString reads the remaining body as a string.
func (r *Response) ReadString() (string, error) {
	var sb strings.Builder
	if _, err := r.WriteTo(&sb); err != nil {
		return sb.String(), err
	}

	return sb.String(), nil
}

// Filename derives a file name for the response.
func (r *Response) Filename() string {
	return GetFilename(r.raw)
}

// ValidateURL checks that rawURL is a non-empty absolute http(s) URL.
func ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return dlErrors.Newf(dlErrors.CodeURLNotDefined, "no URL specified")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return dlErrors.Wrap(dlErrors.CodeInvalidURL, err, rawURL)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return dlErrors.Newf(dlErrors.CodeInvalidURL, "unsupported URL %q", rawURL)
	}

	return nil
}

// Send issues one request. Status 200 and 206 yield a Response whose body the
// caller must close; any other status or a transport failure yields a coded error.
func (c *Client) Send(ctx context.Context, method, rawURL string, hs *HeaderSet, opts ...RequestOption) (*Response, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	o := requestOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.rng != nil && !o.rng.Valid() {
		return nil, dlErrors.Newf(dlErrors.CodeInvalidRange, "invalid range %s", o.rng)
	}

	req, err := c.generateRequest(ctx, rawURL, method, hs, o.body)
	if err != nil {
		return nil, err
	}

	if o.rng != nil {
		req.Header.Set(headers.Range, o.rng.HeaderValue())
		logger.Debugf("Set Range header: %s for %s", o.rng.HeaderValue(), rawURL)
	}

	logger.Debugf("Sending %s request to %s", method, rawURL)

	resp, err := c.Do(req)
	if err != nil {
		logger.Errorf("%s request failed for %s: %v", method, rawURL, err)
		return nil, TransportError(rawURL, err)
	}

	logger.Debugf("%s response for %s: status=%d", method, rawURL, resp.StatusCode)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		drainAndClose(resp)
		return nil, statusError(rawURL, resp)
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		ContentLength: resp.ContentLength,
		Header:        resp.Header,
		Body:          resp.Body,
		raw:           resp,
	}, nil
}

// generateRequest creates a new HTTP request from an ordered header set.
func (c *Client) generateRequest(ctx context.Context, urlStr, method string, hs *HeaderSet, body string) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		logger.Errorf("Failed to create %s request for %s: %v", method, urlStr, err)
		return nil, dlErrors.Wrap(dlErrors.CodeInvalidURL, ErrRequestCreation, urlStr)
	}

	for _, h := range hs.Entries() {
		switch strings.ToLower(h.Name) {
		case "range":
			continue
		case "host":
			req.Host = h.Value
		case "connection", "content-length", "transfer-encoding":
			logger.Debugf("Skipping transport-managed header: %s", h.Name)
		default:
			req.Header.Add(h.Name, h.Value)
		}
	}

	if req.Header.Get(headers.UserAgent) == "" {
		req.Header.Set(headers.UserAgent, c.userAgent)
	}

	return req, nil
}

// ProbeResult describes a resource without downloading it.
type ProbeResult struct {
	StatusCode    int
	ContentLength int64
	AcceptRanges  bool
	Header        http.Header
	Filename      string
	LastModified  time.Time
}

// Probe resolves the content length of rawURL with HEAD, falling back to a
// one-byte range GET and then a plain GET when the server rejects HEAD.
func (c *Client) Probe(ctx context.Context, rawURL string, hs *HeaderSet) (*ProbeResult, error) {
	hs = hs.WithoutRange()

	res, err := c.head(ctx, rawURL, hs)
	if err == nil {
		if res.ContentLength < 0 {
			if ranged, rerr := c.rangeProbe(ctx, rawURL, hs); rerr == nil {
				res.ContentLength = ranged.ContentLength
				res.AcceptRanges = true
			}
		}

		return res, nil
	}

	logger.Warnf("HEAD request failed, falling back. Error: %v", err)

	if !IsFallbackError(err) {
		return nil, err
	}

	res, err = c.rangeProbe(ctx, rawURL, hs)
	if err == nil {
		return res, nil
	}

	logger.Warnf("Range GET request failed, falling back. Error: %v", err)

	if !IsFallbackError(err) {
		return nil, err
	}

	return c.plainProbe(ctx, rawURL, hs)
}

func (c *Client) head(ctx context.Context, rawURL string, hs *HeaderSet) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.Send(ctx, http.MethodHead, rawURL, hs)
	if err != nil {
		return nil, err
	}

	defer closeBody(rawURL, resp)

	return newProbeResult(resp, resp.ContentLength), nil
}

func (c *Client) rangeProbe(ctx context.Context, rawURL string, hs *HeaderSet) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.Send(ctx, http.MethodGet, rawURL, hs, WithRange(ByteRange{From: 0, To: 0}))
	if err != nil {
		return nil, err
	}

	defer closeBody(rawURL, resp)

	if resp.StatusCode != http.StatusPartialContent {
		logger.Warnf("Server doesn't support ranges for %s (status: %d)", rawURL, resp.StatusCode)
		return nil, ErrRangesNotSupported
	}

	total, err := ParseContentRangeTotal(resp.Header.Get(headers.ContentRange))
	if err != nil {
		logger.Warnf("Failed to parse size from Content-Range header: %s", resp.Header.Get(headers.ContentRange))
		return nil, err
	}

	res := newProbeResult(resp, total)
	res.AcceptRanges = true

	return res, nil
}

func (c *Client) plainProbe(ctx context.Context, rawURL string, hs *HeaderSet) (*ProbeResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := c.Send(ctx, http.MethodGet, rawURL, hs)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Closing body immediately for fallback GET request")
	defer closeBody(rawURL, resp)

	return newProbeResult(resp, resp.ContentLength), nil
}

func newProbeResult(resp *Response, contentLength int64) *ProbeResult {
	return &ProbeResult{
		StatusCode:    resp.StatusCode,
		ContentLength: contentLength,
		AcceptRanges:  strings.EqualFold(resp.Header.Get(headers.AcceptRanges), "bytes"),
		Header:        resp.Header,
		Filename:      resp.Filename(),
		LastModified:  ParseLastModified(resp.Header.Get(headers.LastModified)),
	}
}

func closeBody(rawURL string, resp *Response) {
	if err := resp.Close(); err != nil {
		logger.Errorf("Failed to close response body for %s: %v", rawURL, err)
	}
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	if err := resp.Body.Close(); err != nil {
		logger.Warnf("Failed to close response body: %v", err)
	}
}

// GetFilename tries extracts the filename from the Content-Disposition header or the URL.
func GetFilename(resp *http.Response) string {
	if resp == nil {
		return defaultDownloadName
	}

	fileName, ok := getFileNameFromContentDisposition(resp.Header.Get(headers.ContentDisposition))
	if ok {
		return fileName
	}

	if resp.Request == nil || resp.Request.URL == nil {
		return defaultDownloadName
	}

	u := resp.Request.URL
	if qname := u.Query().Get("filename"); qname != "" {
		return qname
	}

	base := path.Base(u.Path)
	if base != "" && base != "/" && base != "." {
		return base
	}

	return defaultDownloadName
}

func getFileNameFromContentDisposition(header string) (string, bool) {
	if header == "" {
		return "", false
	}

	if _, params, err := mime.ParseMediaType(header); err == nil {
		if fName, ok := params["filename"]; ok {
			return fName, true
		}

		if fName, ok := params["filename*"]; ok {
			return fName, true
		}
	}

	return "", false
}

// ParseLastModified parses the Last-Modified header.
func ParseLastModified(header string) time.Time {
	if header == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC1123, header)
	if err != nil {
		logger.Debugf("Failed to parse Last-Modified header: %s, error: %v", header, err)
		return time.Time{}
	}

	return t
}
