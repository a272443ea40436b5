// Package ltiform follows the auto-submitting LTI launch forms the portal uses
// instead of plain http redirects.
package ltiform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"digiget/lib/buffered"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/ltiform")

const (
	Selector    = "form#lti"
	Encoding    = "application/x-www-form-urlencoded"
	Designation = "ltiLaunchForm"

	// DefaultMaxHops bounds the redirect chain for Follow.
	DefaultMaxHops = 32
)

var (
	ErrAmbiguousForm    = errors.New("ambiguous redirect form")
	ErrMalformedForm    = errors.New("bad lti form")
	ErrTooManyRedirects = errors.New("too many lti redirects")
)

// FormError describes a form that was found but does not look like an LTI
// launch form. Markup holds the offending element.
type FormError struct {
	Attribute string
	Reason    string
	Markup    string
}

func (e *FormError) Error() string {
	return fmt.Sprintf(
		"%s: %s '%s'\nHTML Element: %s",
		ErrMalformedForm, e.Reason, e.Attribute, e.Markup,
	)
}

func (e *FormError) Unwrap() error {
	return ErrMalformedForm
}

type Field struct {
	Name  string
	Value string
}

// Form is one step of a redirect chain.
type Form struct {
	Action *url.URL
	Method string
	Fields []Field
}

func outerHtml(sel *goquery.Selection) string {
	markup, err := goquery.OuterHtml(sel)
	if err != nil {
		return fmt.Sprintf("<unable to render element: %s>", err)
	}
	return markup
}

func expectAttr(el *goquery.Selection, form *goquery.Selection, attribute string) (string, error) {
	value, ok := el.Attr(attribute)
	if !ok {
		return "", &FormError{
			Attribute: attribute,
			Reason:    "element didn't specify",
			Markup:    outerHtml(form),
		}
	}
	return value, nil
}

func expectAttrEquals(form *goquery.Selection, attribute, expected string) error {
	value, err := expectAttr(form, form, attribute)
	if err != nil {
		return err
	}
	if value != expected {
		return &FormError{
			Attribute: attribute,
			Reason:    fmt.Sprintf("expected %q but got %q for", expected, value),
			Markup:    outerHtml(form),
		}
	}
	return nil
}

// Parse looks for a redirect form in res. It returns nil, nil if res is a
// regular page.
func Parse(res *buffered.Response) (*Form, error) {
	text, err := res.Text()
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", res.URL(), err)
	}

	matches := doc.Find(Selector)
	switch matches.Length() {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, fmt.Errorf(
			"%w: found %d elements for '%s' in %s",
			ErrAmbiguousForm, matches.Length(), Selector, res.URL(),
		)
	}
	form := matches.First()

	// the html parser lowercases attribute names, the portal sends 'encType'
	err = expectAttrEquals(form, "enctype", Encoding)
	if err != nil {
		return nil, err
	}
	err = expectAttrEquals(form, "name", Designation)
	if err != nil {
		return nil, err
	}

	rawAction, err := expectAttr(form, form, "action")
	if err != nil {
		return nil, err
	}
	action, err := res.URL().Parse(rawAction)
	if err != nil {
		return nil, &FormError{
			Attribute: "action",
			Reason:    fmt.Sprintf("invalid url (%s) in", err),
			Markup:    outerHtml(form),
		}
	}

	method, err := expectAttr(form, form, "method")
	if err != nil {
		return nil, err
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return nil, &FormError{
			Attribute: "method",
			Reason:    "empty value for",
			Markup:    outerHtml(form),
		}
	}

	var fields []Field
	var fieldErr error
	form.Children().EachWithBreak(func(_ int, input *goquery.Selection) bool {
		name, err := expectAttr(input, form, "name")
		if err != nil {
			fieldErr = err
			return false
		}
		value, err := expectAttr(input, form, "value")
		if err != nil {
			fieldErr = err
			return false
		}
		fields = append(fields, Field{Name: name, Value: value})
		return true
	})
	if fieldErr != nil {
		return nil, fieldErr
	}

	return &Form{
		Action: action,
		Method: method,
		Fields: fields,
	}, nil
}

// Encode url-encodes the fields in document order.
func (f *Form) Encode() string {
	var buf bytes.Buffer
	for i, field := range f.Fields {
		if i > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(url.QueryEscape(field.Name))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(field.Value))
	}
	return buf.String()
}

// Submit sends the form like a browser would.
func (f *Form) Submit(ctx context.Context, client *resty.Client) (*buffered.Response, error) {
	req := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", Encoding)

	target := *f.Action
	if f.Method == http.MethodGet {
		target.RawQuery = f.Encode()
	} else {
		req.SetBody(f.Encode())
	}

	return buffered.Send(req, f.Method, target.String())
}

// Resolver follows redirect forms until a page without one is reached.
type Resolver struct {
	Client *resty.Client
	// MaxHops is the maximum number of forms to submit, 0 means unbounded.
	MaxHops int
}

// Follow returns res itself if it has no redirect form, otherwise the first
// response in the chain that has none.
func (r Resolver) Follow(ctx context.Context, res *buffered.Response) (*buffered.Response, error) {
	ctx, span := tracer.Start(ctx, "Resolver:Follow")
	defer span.End()

	hops := 0
	for {
		form, err := Parse(res)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to parse redirect form")
			return nil, err
		}
		if form == nil {
			span.SetAttributes(
				attribute.Int("hops", hops),
				attribute.String("landing", res.URL().String()),
			)
			return res, nil
		}
		if r.MaxHops > 0 && hops >= r.MaxHops {
			span.SetStatus(codes.Error, ErrTooManyRedirects.Error())
			return nil, fmt.Errorf("%w: gave up after %d forms at %s", ErrTooManyRedirects, hops, res.URL())
		}

		res, err = form.Submit(ctx, r.Client)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to submit redirect form")
			return nil, err
		}
		hops++
	}
}

// Follow resolves res with the default hop limit.
func Follow(ctx context.Context, client *resty.Client, res *buffered.Response) (*buffered.Response, error) {
	return Resolver{Client: client, MaxHops: DefaultMaxHops}.Follow(ctx, res)
}
