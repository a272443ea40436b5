// Package buffered keeps an http response together with its fully drained
// body so it can be inspected any number of times.
package buffered

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

// content length is only trusted up to this size when preallocating
const maxCapacityHint = 32 << 20

var ErrInvalidEncoding = errors.New("response body is not valid utf-8")

// StatusError is returned by CheckStatus for non-2xx responses.
type StatusError struct {
	URL    string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %q from %s", e.Status, e.URL)
}

// Response stores an http response and its body in one type.
// The body is read eagerly in New, so only use it when the body is needed.
type Response struct {
	raw *http.Response
	buf []byte

	textOnce sync.Once
	text     string
	textErr  error
}

// New drains the body of res to completion and closes it.
func New(res *http.Response) (*Response, error) {
	if res == nil {
		return nil, fmt.Errorf("buffered: nil response")
	}
	defer res.Body.Close()

	var buf bytes.Buffer
	if res.ContentLength > 0 {
		buf.Grow(int(min(res.ContentLength, maxCapacityHint)))
	}
	_, err := io.Copy(&buf, res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", requestURL(res), err)
	}

	return &Response{
		raw: res,
		buf: buf.Bytes(),
	}, nil
}

func requestURL(res *http.Response) string {
	if res.Request == nil || res.Request.URL == nil {
		return "<unknown url>"
	}
	return res.Request.URL.String()
}

// Send executes req without letting resty consume the body and buffers the
// result.
func Send(req *resty.Request, method, endpoint string) (*Response, error) {
	res, err := req.
		SetDoNotParseResponse(true).
		Execute(method, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	return New(res.RawResponse)
}

// Text returns the body as a string. The utf-8 check only runs on the first
// call, later calls return the cached result.
func (r *Response) Text() (string, error) {
	r.textOnce.Do(func() {
		if !utf8.Valid(r.buf) {
			r.textErr = fmt.Errorf("%w: %s", ErrInvalidEncoding, r.URL())
			return
		}
		r.text = string(r.buf)
	})
	return r.text, r.textErr
}

// Bytes returns the raw body. The returned slice must not be modified.
func (r *Response) Bytes() []byte {
	return r.buf
}

// URL is the final url of the request, after any transport level redirects.
func (r *Response) URL() *url.URL {
	return r.raw.Request.URL
}

func (r *Response) StatusCode() int {
	return r.raw.StatusCode
}

func (r *Response) Status() string {
	return r.raw.Status
}

func (r *Response) Header() http.Header {
	return r.raw.Header
}

// CheckStatus returns a *StatusError if the response is not a 2xx.
func (r *Response) CheckStatus() error {
	if r.raw.StatusCode >= 200 && r.raw.StatusCode < 300 {
		return nil
	}
	return &StatusError{
		URL:    r.URL().String(),
		Status: r.raw.Status,
		Code:   r.raw.StatusCode,
	}
}
