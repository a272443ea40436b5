package scraper

import (
	"context"
	"fmt"

	"digiget/lib/pdfmerge"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type downloadOptions struct {
	progress func(page, total int)
}

type DownloadOption func(*downloadOptions)

// WithProgress calls fn after each page was added to the document.
func WithProgress(fn func(page, total int)) DownloadOption {
	return func(o *downloadOptions) {
		o.progress = fn
	}
}

// DownloadAll renders every page of s in order and assembles them into one
// pruned and compressed pdf. Pages are fetched one after another so only
// a single page is held in memory besides the document.
func DownloadAll(ctx context.Context, s Scraper, opts ...DownloadOption) ([]byte, error) {
	var options downloadOptions
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "DownloadAll")
	defer span.End()

	total := s.PageCount()
	span.SetAttributes(attribute.Int("pages", total))
	if total == 0 {
		span.SetStatus(codes.Error, ErrNoPages.Error())
		return nil, ErrNoPages
	}

	doc := pdfmerge.New()
	for page := 1; page <= total; page++ {
		pdf, err := s.RenderPage(ctx, page)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to render page")
			return nil, err
		}
		err = doc.Append(pdf)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to append page")
			return nil, fmt.Errorf("append page %d: %w", page, err)
		}
		if options.progress != nil {
			options.progress(page, total)
		}
	}

	err := doc.Prune()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to prune document")
		return nil, err
	}
	err = doc.Compress()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compress document")
		return nil, err
	}
	return doc.Bytes()
}
