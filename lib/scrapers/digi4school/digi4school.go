// Package digi4school reads books from the digi4school reader, which serves
// every page as an svg next to the page's images.
package digi4school

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"digiget/lib/buffered"
	"digiget/lib/scraper"

	"github.com/go-resty/resty/v2"
)

var pageCountRegex = regexp.MustCompile(`IDRViewer\.makeNavBar\((\d+),'\.jpg'`)

// Book is the SvgSource of a single book (or volume).
type Book struct {
	client *resty.Client
	base   *url.URL
	pages  int
}

// PageCount extracts the page count out of the landing page of a book.
func PageCount(landing *buffered.Response) (int, error) {
	text, err := landing.Text()
	if err != nil {
		return 0, err
	}
	matches := pageCountRegex.FindAllStringSubmatch(text, -1)
	if len(matches) != 1 {
		return 0, &scraper.PageCountError{
			URL:     landing.URL().String(),
			Body:    text,
			Matches: len(matches),
		}
	}
	count, err := strconv.Atoi(matches[0][1])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", scraper.ErrPageCountNotFound, err)
	}
	return count, nil
}

// NewBook binds a book to its landing page, pages and assets are looked up
// relative to its directory.
func NewBook(landing *buffered.Response, client *resty.Client) (*Book, error) {
	count, err := PageCount(landing)
	if err != nil {
		return nil, err
	}

	return &Book{
		client: client,
		base:   bookBase(landing.URL()),
		pages:  count,
	}, nil
}

// bookBase is the directory of a landing page. A last segment without a file
// extension ("/ebook/1234") names the directory itself.
func bookBase(landing *url.URL) *url.URL {
	base := *landing
	dir := base.Path
	if dir == "" {
		dir = "/"
	}
	if !strings.HasSuffix(dir, "/") {
		if path.Ext(path.Base(dir)) != "" {
			dir = path.Dir(dir)
		}
		if dir != "/" {
			dir += "/"
		}
	}
	base.Path = dir
	base.RawPath = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &base
}

// New implements scraper.Constructor.
func New(landing *buffered.Response, client *resty.Client) (scraper.Scraper, error) {
	book, err := NewBook(landing, client)
	if err != nil {
		return nil, err
	}
	return scraper.Svg{Source: book}, nil
}

func (b *Book) PageCount() int {
	return b.pages
}

// Base is the directory the book's files are served from.
func (b *Book) Base() *url.URL {
	return b.base
}

func (b *Book) resolve(ref string) (string, error) {
	rel, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("bad reference %q: %w", ref, err)
	}
	return b.base.ResolveReference(rel).String(), nil
}

func (b *Book) get(ctx context.Context, ref string) (*buffered.Response, error) {
	target, err := b.resolve(ref)
	if err != nil {
		return nil, err
	}
	req := b.client.R().SetContext(ctx)
	return buffered.Send(req, http.MethodGet, target)
}

func (b *Book) RawPageMarkup(ctx context.Context, page int) (string, error) {
	err := scraper.CheckPage(page, b.pages)
	if err != nil {
		return "", err
	}
	res, err := b.get(ctx, fmt.Sprintf("%d.svg", page))
	if err != nil {
		return "", err
	}
	err = res.CheckStatus()
	if err != nil {
		return "", err
	}
	return res.Text()
}

func (b *Book) FetchAsset(ctx context.Context, ref string) (*buffered.Response, error) {
	return b.get(ctx, ref)
}
