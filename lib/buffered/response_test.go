package buffered

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBody struct {
	r      io.Reader
	reads  int
	closed bool
}

func (b *countingBody) Read(p []byte) (int, error) {
	b.reads++
	return b.r.Read(p)
}

func (b *countingBody) Close() error {
	b.closed = true
	return nil
}

func fakeResponse(t testing.TB, body io.ReadCloser, contentLength int64) *http.Response {
	u, err := url.Parse("https://a.digi4school.at/ebook/1234/")
	require.NoError(t, err)
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    200,
		Header:        http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:          body,
		ContentLength: contentLength,
		Request:       &http.Request{Method: http.MethodGet, URL: u},
	}
}

func TestRepeatedReadsDoNotTouchNetwork(t *testing.T) {
	payload := bytes.Repeat([]byte("<svg>ä</svg>"), 1000)
	body := &countingBody{r: bytes.NewReader(payload)}

	res, err := New(fakeResponse(t, body, int64(len(payload))))
	require.NoError(t, err)
	require.True(t, body.closed)

	readsAfterConstruction := body.reads
	for i := 0; i < 5; i++ {
		text, err := res.Text()
		require.NoError(t, err)
		require.Equal(t, string(payload), text)
		require.Equal(t, payload, res.Bytes())
	}
	require.Equal(t, readsAfterConstruction, body.reads)
}

func TestContentLengthIsOnlyAHint(t *testing.T) {
	payload := []byte("longer than the declared content length")

	for _, declared := range []int64{-1, 0, 4, 1 << 40} {
		res, err := New(fakeResponse(t, io.NopCloser(bytes.NewReader(payload)), declared))
		require.NoError(t, err)
		require.Equal(t, payload, res.Bytes(), "declared length %d", declared)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestInterruptedStream(t *testing.T) {
	body := io.NopCloser(io.MultiReader(bytes.NewReader([]byte("partial")), failingReader{}))
	_, err := New(fakeResponse(t, body, 100))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestInvalidEncoding(t *testing.T) {
	payload := []byte{0xff, 0xfe, 'a'}
	res, err := New(fakeResponse(t, io.NopCloser(bytes.NewReader(payload)), 3))
	require.NoError(t, err)

	_, err = res.Text()
	require.ErrorIs(t, err, ErrInvalidEncoding)
	require.Contains(t, err.Error(), "a.digi4school.at")

	// bytes stay available regardless of the text check
	require.Equal(t, payload, res.Bytes())

	_, again := res.Text()
	require.True(t, errors.Is(again, ErrInvalidEncoding))
}

func TestConcurrentText(t *testing.T) {
	res, err := New(fakeResponse(t, io.NopCloser(bytes.NewReader([]byte("hello"))), 5))
	require.NoError(t, err)

	wg := sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := res.Text()
			assert.NoError(t, err)
			assert.Equal(t, "hello", text)
		}()
	}
	wg.Wait()
}

func TestSend(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("not really a png"))
	}))
	defer srv.Close()

	client := resty.New()

	res, err := Send(client.R(), http.MethodGet, srv.URL+"/1/img.png")
	require.NoError(t, err)
	require.NoError(t, res.CheckStatus())
	require.Equal(t, "image/png", res.Header().Get("Content-Type"))
	require.Equal(t, "/1/img.png", res.URL().Path)
	require.Equal(t, []byte("not really a png"), res.Bytes())

	res, err = Send(client.R(), http.MethodGet, srv.URL+"/missing")
	require.NoError(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, res.CheckStatus(), &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.Code)

	require.EqualValues(t, 2, requests.Load())
}
