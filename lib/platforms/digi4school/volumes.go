package digi4school

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"digiget/internal/assert"
	"digiget/lib/buffered"
	"digiget/lib/htmlutil"
	"digiget/lib/scraper"
	"digiget/lib/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var ErrNoVolumes = errors.New("could not find any volumes")

var volumeRegex = regexp.MustCompile(
	`<a( class="")? href="(.+?)" target="_blank">.+?<img src="(.+?)" />.+?<div class="tx"><h1>(.+?)</h1></div>`,
)

// Volume is a part of a book that is read on its own.
type Volume struct {
	URL       *url.URL
	Name      string
	Thumbnail string

	session *Session
	group   singleflight.Group
	mutex   sync.Mutex
	landing *buffered.Response
}

func (s *Session) newVolume(u *url.URL, name, thumbnail string) *Volume {
	return &Volume{
		URL:       u,
		Name:      name,
		Thumbnail: thumbnail,
		session:   s,
	}
}

// Volumes opens a book. Books with a single volume are opened right away,
// books with more volumes open to an index of their volumes.
func (s *Session) Volumes(ctx context.Context, book Book) ([]*Volume, error) {
	assert.NotEmptyStr(book.LongID)

	ctx, span := tracer.Start(ctx, "Session:Volumes")
	defer span.End()
	span.SetAttributes(attribute.String("book", book.LongID))

	res, err := s.fetch(ctx, s.endpoint(s.baseURL, "/ebook/%s", url.PathEscape(book.LongID)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open book")
		s.tel.ReportBroken(report_session_volumes, "book", book.LongID, "err", err)
		return nil, err
	}
	text, err := res.Text()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read book")
		return nil, err
	}

	// books with a single volume land directly on the book itself, which is
	// either hosted by someone else or starts with a doctype
	if res.URL().Host != s.readerURL.Host || strings.HasPrefix(text, "<!DOCTYPE html>") {
		volume := s.newVolume(res.URL(), book.Title, book.Thumbnail)
		volume.landing = res
		span.SetAttributes(attribute.Int("volumes", 1))
		return []*Volume{volume}, nil
	}

	relative, err := url.Parse(s.endpoint(s.readerURL, "/ebook/%d/", book.ShortID))
	if err != nil {
		return nil, err
	}
	var volumes []*Volume
	for _, match := range volumeRegex.FindAllStringSubmatch(strings.ReplaceAll(text, "\n", " "), -1) {
		volumeURL, err := relative.Parse(match[2])
		if err != nil {
			return nil, fmt.Errorf("%w: volume url %q: %w", ErrUnexpectedResponse, match[2], err)
		}
		thumbnail, err := relative.Parse(match[3])
		if err != nil {
			return nil, fmt.Errorf("%w: volume thumbnail %q: %w", ErrUnexpectedResponse, match[3], err)
		}
		volumes = append(volumes, s.newVolume(volumeURL, htmlutil.FragmentText(match[4]), thumbnail.String()))
	}
	if len(volumes) == 0 {
		err = fmt.Errorf("%w in %s\nBody: %s", ErrNoVolumes, res.URL(), text)
		span.SetStatus(codes.Error, ErrNoVolumes.Error())
		s.tel.ReportBroken(report_session_volumes, "book", book.LongID, "err", ErrNoVolumes)
		return nil, err
	}
	span.SetAttributes(attribute.Int("volumes", len(volumes)))
	return volumes, nil
}

func (v *Volume) cached() *buffered.Response {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.landing
}

// Landing returns the page the volume opens to. It is only fetched once,
// concurrent callers wait for the same request. Failed attempts are not
// remembered. A caller giving up does not cancel the request the others
// are waiting on.
func (v *Volume) Landing(ctx context.Context) (*buffered.Response, error) {
	if landing := v.cached(); landing != nil {
		return landing, nil
	}

	shared := context.WithoutCancel(ctx)
	results := v.group.DoChan("landing", func() (any, error) {
		if landing := v.cached(); landing != nil {
			return landing, nil
		}
		landing, err := v.session.fetch(shared, v.URL.String())
		if err != nil {
			v.session.tel.ReportBroken(report_volume_landing, "url", v.URL.String(), "err", err)
			return nil, err
		}
		v.mutex.Lock()
		v.landing = landing
		v.mutex.Unlock()
		return landing, nil
	})

	var result singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result = <-results:
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Val.(*buffered.Response), nil
}

// Scraper opens the volume with the scraper of the origin it is hosted at.
func (v *Volume) Scraper(ctx context.Context) (scraper.Scraper, error) {
	landing, err := v.Landing(ctx)
	if err != nil {
		return nil, err
	}
	s, err := v.session.registry.Open(landing, v.session.client)
	if err != nil {
		return nil, err
	}
	if svg, ok := s.(scraper.Svg); ok {
		svg.AssetConcurrency = v.session.opts.AssetConcurrency
		svg.Tel = telemetry.NewScopedAPI("scraper", v.session.tel)
		s = svg
	}
	return s, nil
}
