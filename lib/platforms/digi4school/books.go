package digi4school

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"digiget/lib/buffered"
	"digiget/lib/htmlutil"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// every book expires on the 31st of october
const expiryDay = "31.10"

var bookRegex = regexp.MustCompile(
	`data-code='(.+?)' data-id='(\d+?)'.+?<img src='(.+?)'>.+?<h1>(.+?)</h1>.+?bis (\d{1,2}\.\d{1,2})\.(\d+)`,
)

type Book struct {
	// LongID is the code used by the portal.
	LongID  string
	// ShortID is the id used by the reader.
	ShortID int

	Title      string
	Thumbnail  string
	ExpiryYear int
}

// RedemptionYear is the year the book was obtained in, books are valid for
// six years.
func (b Book) RedemptionYear() int {
	return b.ExpiryYear - 6
}

// Books lists the books of the account.
func (s *Session) Books(ctx context.Context) ([]Book, error) {
	ctx, span := tracer.Start(ctx, "Session:Books")
	defer span.End()

	res, err := buffered.Send(s.client.R().SetContext(ctx), http.MethodGet, s.endpoint(s.baseURL, "/ebooks"))
	if err == nil {
		err = res.CheckStatus()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch books")
		s.tel.ReportBroken(report_session_books, "err", err)
		return nil, err
	}
	text, err := res.Text()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read books")
		return nil, err
	}

	var books []Book
	for _, match := range bookRegex.FindAllStringSubmatch(text, -1) {
		shortID, err := strconv.Atoi(match[2])
		if err != nil {
			return nil, fmt.Errorf("%w: book id %q: %w", ErrUnexpectedResponse, match[2], err)
		}
		expiry, err := strconv.Atoi(match[6])
		if err != nil {
			return nil, fmt.Errorf("%w: expiry year %q: %w", ErrUnexpectedResponse, match[6], err)
		}
		if match[5] != expiryDay {
			s.tel.ReportWarning(
				report_session_books,
				"msg", "unexpected expiry date",
				"book", match[1],
				"expiry", match[5],
			)
		}

		books = append(books, Book{
			LongID:     match[1],
			ShortID:    shortID,
			Title:      htmlutil.FragmentText(match[4]),
			Thumbnail:  match[3],
			ExpiryYear: expiry,
		})
	}
	span.SetAttributes(attribute.Int("books", len(books)))
	s.tel.ReportCount(report_session_books, int64(len(books)))
	return books, nil
}
