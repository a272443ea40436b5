package scraper

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"digiget/lib/svgpdf"
	"digiget/lib/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("lib/scraper")

const (
	report_svg_render_page   = "svg.render-page"
	report_svg_inline_assets = "svg.inline-assets"
)

const DefaultAssetConcurrency = 4

// asset references are relative to the book and prefixed with their page
var assetRegex = regexp.MustCompile(`(?:xlink:)?href="((\d+)/[^"]+)"`)

// Svg renders the pages of an SvgSource.
type Svg struct {
	Source SvgSource
	// AssetConcurrency bounds the number of assets of a page fetched at
	// once, 0 means DefaultAssetConcurrency.
	AssetConcurrency int
	// Tel defaults to telemetry.SlogAPI.
	Tel telemetry.API
}

func (s Svg) PageCount() int {
	return s.Source.PageCount()
}

func (s Svg) tel() telemetry.API {
	if s.Tel == nil {
		return telemetry.SlogAPI{}
	}
	return s.Tel
}

// assetRefs returns the distinct asset references of page in the order they
// first appear.
func assetRefs(markup string, page int) []string {
	var refs []string
	seen := map[string]struct{}{}
	for _, match := range assetRegex.FindAllStringSubmatch(markup, -1) {
		ref := match[1]
		n, err := strconv.Atoi(match[2])
		if err != nil || n != page {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

// InlineAssets replaces every asset reference of page in markup with a data
// uri holding the asset. Each distinct reference is fetched once.
func (s Svg) InlineAssets(ctx context.Context, markup string, page int) (string, error) {
	refs := assetRefs(markup, page)
	if len(refs) == 0 {
		return markup, nil
	}

	limit := s.AssetConcurrency
	if limit <= 0 {
		limit = DefaultAssetConcurrency
	}
	uris := make([]string, len(refs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for i, ref := range refs {
		group.Go(func() error {
			res, err := s.Source.FetchAsset(groupCtx, ref)
			if err != nil {
				return fmt.Errorf("fetch asset %s: %w", ref, err)
			}
			err = res.CheckStatus()
			if err != nil {
				return fmt.Errorf("fetch asset %s: %w", ref, err)
			}
			contentType := res.Header().Get("Content-Type")
			if contentType == "" {
				return fmt.Errorf("%w: %s", ErrMissingContentType, res.URL())
			}
			uris[i] = fmt.Sprintf(
				"data:%s;base64,%s",
				contentType,
				base64.StdEncoding.EncodeToString(res.Bytes()),
			)
			return nil
		})
	}
	err := group.Wait()
	if err != nil {
		s.tel().ReportBroken(report_svg_inline_assets, "page", page, "err", err)
		return "", err
	}

	// references are only replaced as whole double quoted values, the only
	// form the reader emits, so one reference being a prefix of another
	// doesn't matter
	pairs := make([]string, 0, len(refs)*2)
	for i, ref := range refs {
		pairs = append(pairs, `"`+ref+`"`, `"`+uris[i]+`"`)
	}
	return strings.NewReplacer(pairs...).Replace(markup), nil
}

// RenderPage fetches page, inlines its assets and renders it to a pdf.
func (s Svg) RenderPage(ctx context.Context, page int) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Svg:RenderPage")
	defer span.End()
	span.SetAttributes(attribute.Int("page", page))

	err := CheckPage(page, s.Source.PageCount())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	markup, err := s.Source.RawPageMarkup(ctx, page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch page markup")
		return nil, err
	}
	markup, err = s.InlineAssets(ctx, markup, page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to inline assets")
		return nil, err
	}

	scene, err := svgpdf.Parse(markup)
	if err != nil {
		err = fmt.Errorf("%w: page %d: %w", ErrMalformedSvg, page, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse page")
		return nil, err
	}
	for _, warning := range scene.Warnings {
		s.tel().ReportWarning(report_svg_render_page, "page", page, "dropped", warning)
	}

	var buf bytes.Buffer
	err = scene.WritePDF(&buf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to render page")
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}
