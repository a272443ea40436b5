// Package digi4school is a client for the digi4school book portal: it logs
// in, lists the books of an account and opens their volumes for scraping.
package digi4school

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"digiget/internal/assert"
	"digiget/lib/buffered"
	"digiget/lib/ltiform"
	"digiget/lib/restyutil"
	"digiget/lib/scrapers"
	"digiget/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("lib/platforms/digi4school")

const (
	report_session_login   = "session.login"
	report_session_books   = "session.books"
	report_session_volumes = "session.volumes"
	report_volume_landing  = "volume.landing"
)

const (
	DefaultBaseURL   = "https://digi4school.at"
	DefaultReaderURL = "https://a.digi4school.at"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnexpectedResponse = errors.New("unexpected response")
)

type Options struct {
	// BaseURL is the portal, defaults to DefaultBaseURL.
	BaseURL string

	// ReaderURL is where books are read, defaults to DefaultReaderURL.
	ReaderURL string

	Email    string
	Password string

	// RequestsPerSecond limits the request rate of the session, 0 means no
	// limit.
	RequestsPerSecond float64
	CloudflareBypass  bool

	// Timeout of a single request, 0 means no timeout.
	Timeout time.Duration

	// MaxRedirectHops limits the number of LTI forms followed for a single
	// page. 0 means ltiform.DefaultMaxHops, a negative value means no limit.
	MaxRedirectHops int

	// AssetConcurrency is passed on to the scrapers, see scraper.Svg.
	AssetConcurrency int

	// Registry defaults to scrapers.Default().
	Registry scrapers.Registry

	// HTTPDump receives a transcript of every request if it is not nil.
	HTTPDump restyutil.InstrumentOutput

	// Tel defaults to telemetry.SlogAPI.
	Tel telemetry.API
}

// Session is a logged in account. It is safe for concurrent use.
type Session struct {
	client    *resty.Client
	baseURL   *url.URL
	readerURL *url.URL
	resolver  ltiform.Resolver
	registry  scrapers.Registry
	opts      Options
	tel       telemetry.API
}

func parseOrigin(raw, fallback string) (*url.URL, error) {
	if raw == "" {
		raw = fallback
	}
	u, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("expected an absolute url, got %q", raw)
	}
	return u, nil
}

func newClient(opts Options, tel telemetry.API) *resty.Client {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	assert.NoError(err)
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	client.SetHeader("user-agent", userAgent)
	// the portal hands off to the reader and the publisher sites
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	if opts.RequestsPerSecond > 0 {
		burst := int(math.Max(1, math.Ceil(opts.RequestsPerSecond)))
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	restyutil.InstrumentClient(client, otel.Tracer("lib/platforms/digi4school/http"), tel, opts.HTTPDump)
	return client
}

// NewSession creates a client and logs in with the credentials in opts.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	ctx, span := tracer.Start(ctx, "NewSession")
	defer span.End()

	tel := opts.Tel
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}
	tel = telemetry.NewScopedAPI("digi4school", tel)

	baseURL, err := parseOrigin(opts.BaseURL, DefaultBaseURL)
	if err != nil {
		span.SetStatus(codes.Error, "bad base url")
		return nil, fmt.Errorf("base url: %w", err)
	}
	readerURL, err := parseOrigin(opts.ReaderURL, DefaultReaderURL)
	if err != nil {
		span.SetStatus(codes.Error, "bad reader url")
		return nil, fmt.Errorf("reader url: %w", err)
	}

	registry := opts.Registry
	if registry == nil {
		registry = scrapers.Default()
	}

	maxHops := opts.MaxRedirectHops
	switch {
	case maxHops == 0:
		maxHops = ltiform.DefaultMaxHops
	case maxHops < 0:
		maxHops = 0
	}

	client := newClient(opts, tel)
	s := &Session{
		client:    client,
		baseURL:   baseURL,
		readerURL: readerURL,
		resolver:  ltiform.Resolver{Client: client, MaxHops: maxHops},
		registry:  registry,
		opts:      opts,
		tel:       tel,
	}

	err = s.login(ctx, opts.Email, opts.Password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to login")
		return nil, err
	}
	return s, nil
}

// Client is the http client that holds the session cookies.
func (s *Session) Client() *resty.Client {
	return s.client
}

func (s *Session) endpoint(base *url.URL, format string, args ...any) string {
	return base.String() + fmt.Sprintf(format, args...)
}

func (s *Session) login(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "Session:login")
	defer span.End()

	req := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"email":      email,
			"password":   password,
			"indefinite": "0",
		})
	res, err := buffered.Send(req, http.MethodPost, s.endpoint(s.baseURL, "/br/xhr/login"))
	if err != nil {
		s.tel.ReportBroken(report_session_login, "err", err)
		return err
	}
	text, err := res.Text()
	if err != nil {
		s.tel.ReportBroken(report_session_login, "err", err)
		return err
	}

	switch strings.TrimSpace(text) {
	case "OK":
		s.tel.ReportDebug("logged in", "email", email)
		return nil
	case "KO":
		span.SetStatus(codes.Error, ErrInvalidCredentials.Error())
		return ErrInvalidCredentials
	}
	err = fmt.Errorf("%w to login from %s (%s): %q", ErrUnexpectedResponse, res.URL(), res.Status(), text)
	s.tel.ReportBroken(report_session_login, "err", err)
	return err
}

// fetch gets target and follows the LTI forms on the way.
func (s *Session) fetch(ctx context.Context, target string) (*buffered.Response, error) {
	res, err := buffered.Send(s.client.R().SetContext(ctx), http.MethodGet, target)
	if err != nil {
		return nil, err
	}
	err = res.CheckStatus()
	if err != nil {
		return nil, err
	}
	return s.resolver.Follow(ctx, res)
}
