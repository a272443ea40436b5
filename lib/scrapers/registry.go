// Package scrapers dispatches landing pages to the scraper of their origin.
package scrapers

import (
	"errors"
	"fmt"
	"net/url"

	"digiget/lib/buffered"
	"digiget/lib/scraper"
	"digiget/lib/scrapers/digi4school"

	"github.com/go-resty/resty/v2"
)

var ErrUnsupportedSource = errors.New("unsupported source")

type UnsupportedSourceError struct {
	URL string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("%s: no scraper for %s", ErrUnsupportedSource, e.URL)
}

func (e *UnsupportedSourceError) Unwrap() error {
	return ErrUnsupportedSource
}

// Registry maps origins ("scheme://host") to the scraper that reads books
// hosted there.
type Registry map[string]scraper.Constructor

// Default contains every origin with a built-in scraper.
func Default() Registry {
	return Registry{
		"https://a.digi4school.at": digi4school.New,
		"https://a.hpthek.at":      digi4school.New,
	}
}

func Origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

func (r Registry) Lookup(u *url.URL) (scraper.Constructor, error) {
	constructor, ok := r[Origin(u)]
	if !ok {
		return nil, &UnsupportedSourceError{URL: u.String()}
	}
	return constructor, nil
}

// Open constructs the scraper for the origin of landing.
func (r Registry) Open(landing *buffered.Response, client *resty.Client) (scraper.Scraper, error) {
	constructor, err := r.Lookup(landing.URL())
	if err != nil {
		return nil, err
	}
	return constructor(landing, client)
}
