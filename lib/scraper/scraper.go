// Package scraper turns the pages of a remote paginated book into pdf pages.
//
// A backend only needs to know how to reach a book's page markup and the
// assets it references, see SvgSource. Svg does the rendering on top of that
// and DownloadAll assembles every page into one document.
package scraper

import (
	"context"
	"errors"
	"fmt"

	"digiget/lib/buffered"

	"github.com/go-resty/resty/v2"
)

var (
	ErrPageOutOfRange     = errors.New("page out of range")
	ErrMalformedSvg       = errors.New("malformed svg")
	ErrMissingContentType = errors.New("asset response has no content type")
	ErrPageCountNotFound  = errors.New("could not find page count")
	ErrNoPages            = errors.New("book has no pages")
)

// Scraper is a book that was opened from its landing page.
type Scraper interface {
	PageCount() int
	// RenderPage renders a single page (starting at 1) to a one page pdf.
	RenderPage(ctx context.Context, page int) ([]byte, error)
}

// Constructor opens a book from its landing page, client carries the session.
type Constructor func(landing *buffered.Response, client *resty.Client) (Scraper, error)

// SvgSource is a book whose pages are svg documents.
type SvgSource interface {
	PageCount() int
	RawPageMarkup(ctx context.Context, page int) (string, error)
	// FetchAsset fetches a reference found in a page, ie. "3/img1.png".
	FetchAsset(ctx context.Context, ref string) (*buffered.Response, error)
}

type PageRangeError struct {
	Page  int
	Count int
}

func (e *PageRangeError) Error() string {
	return fmt.Sprintf("%s: page %d of %d", ErrPageOutOfRange, e.Page, e.Count)
}

func (e *PageRangeError) Unwrap() error {
	return ErrPageOutOfRange
}

// CheckPage returns a *PageRangeError unless 1 <= page <= count.
func CheckPage(page, count int) error {
	if page < 1 || page > count {
		return &PageRangeError{Page: page, Count: count}
	}
	return nil
}

// PageCountError is returned when the page count marker of a landing page is
// missing or ambiguous.
type PageCountError struct {
	URL     string
	Body    string
	Matches int
}

func (e *PageCountError) Error() string {
	return fmt.Sprintf(
		"%s: %d markers in %s\nBody: %s",
		ErrPageCountNotFound, e.Matches, e.URL, e.Body,
	)
}

func (e *PageCountError) Unwrap() error {
	return ErrPageCountNotFound
}
