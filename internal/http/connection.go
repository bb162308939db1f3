package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	dlErrors "github.com/NamanBalaji/mtdl/internal/errors"
	"github.com/NamanBalaji/mtdl/internal/logger"
	httpPkg "github.com/NamanBalaji/mtdl/pkg/http"
)

// connection is one GET for a byte range.
type connection struct {
	url      string
	headers  *httpPkg.HeaderSet
	client   *httpPkg.Client
	rng      httpPkg.ByteRange
	response *httpPkg.Response
	body     io.Closer
}

func newConnection(url string, headers *httpPkg.HeaderSet, client *httpPkg.Client, rng httpPkg.ByteRange) *connection {
	return &connection{
		url:     url,
		headers: headers,
		client:  client,
		rng:     rng,
	}
}

// connect issues the request. A full range sends no Range header. When the
// server ignores the range and answers 200, the bytes before rng.From are
// discarded so the body starts where the range does.
func (c *connection) connect(ctx context.Context) error {
	var opts []httpPkg.RequestOption
	if !c.rng.IsFull() {
		opts = append(opts, httpPkg.WithRange(c.rng))
	}

	resp, err := c.client.Send(ctx, http.MethodGet, c.url, c.headers, opts...)
	if err != nil {
		return err
	}

	if resp.Body == nil {
		return dlErrors.Newf(dlErrors.CodeNullContent, "empty response body from %s", c.url)
	}

	if resp.StatusCode != http.StatusPartialContent && c.rng.From > 0 {
		logger.Debugf("Server ignored range %s for %s, skipping %d bytes", c.rng, c.url, c.rng.From)

		if _, err := io.CopyN(io.Discard, resp.Body, c.rng.From); err != nil {
			resp.Close()

			if errors.Is(err, io.EOF) {
				return dlErrors.Newf(dlErrors.CodeIncompleteRead, "body ended before byte %d", c.rng.From)
			}

			if ctx.Err() != nil {
				return interrupted(ctx, c.url)
			}

			return httpPkg.TransportError(c.url, err)
		}
	}

	c.response = resp
	c.body = resp.Body

	return nil
}

func (c *connection) Read(p []byte) (int, error) {
	if c.response == nil {
		return 0, io.ErrClosedPipe
	}

	return c.response.Body.Read(p)
}

// abort closes the body under a pending Read. It may run concurrently with
// Read and close.
func (c *connection) abort() {
	if c.body != nil {
		_ = c.body.Close()
	}
}

func (c *connection) close() error {
	if c.response == nil {
		return nil
	}

	err := c.response.Close()
	c.response = nil

	return err
}
