package restyutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"digiget/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

type InstrumentOutput interface {
	Write(id string, contents string)
}

type instrumentCtx struct {
	tel       telemetry.API
	output    InstrumentOutput
	tracer    trace.Tracer
	idcounter *uint64
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id        uint64
	startTime time.Time
}

// InstrumentClient wraps every request of client in a span and reports its
// start and finish as debug messages.
// `tracer` can be nil, it will default to a library name of "resty".
// `output` can also be nil, if it isn't, a transcript of every request is
// written to it. this buffers response bodies in memory.
func InstrumentClient(client *resty.Client, tracer trace.Tracer, tel telemetry.API, output InstrumentOutput) {
	if tracer == nil {
		tracer = otel.Tracer("resty")
	}
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}

	var idcounter uint64
	i := instrumentCtx{
		tel:       tel,
		output:    output,
		tracer:    tracer,
		idcounter: &idcounter,
	}
	client.OnBeforeRequest(i.onBeforeRequest)
	// success and error hooks also run for requests that skip response
	// parsing, unlike response middleware
	client.OnSuccess(i.onSuccess)
	client.OnError(i.onError)
}

func (i instrumentCtx) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	ctx, _ := i.tracer.Start(req.Context(), fmt.Sprintf("http %s", req.Method))

	id := atomic.AddUint64(i.idcounter, 1)
	ctx = context.WithValue(ctx, reqCtxKey, reqCtx{
		id:        id,
		startTime: time.Now(),
	})
	i.tel.ReportDebug(report_resty_request, id, req.Method, req.URL)

	req.SetContext(ctx)
	return nil
}

func (i instrumentCtx) onSuccess(_ *resty.Client, res *resty.Response) {
	ctx := res.Request.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()

	rc, _ := ctx.Value(reqCtxKey).(reqCtx)
	i.tel.ReportDebug(
		report_resty_response,
		rc.id,
		time.Since(rc.startTime).String(),
		res.Status(),
	)

	raw := res.RawResponse
	if raw == nil {
		return
	}
	span.SetAttributes(httpconv.ClientResponse(raw)...)
	if res.Request.RawRequest != nil {
		// RawRequest is still nil in onBeforeRequest
		span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
	}
	if raw.StatusCode >= 400 {
		span.SetStatus(codes.Error, raw.Status)
	}

	if i.output == nil || res.Request.RawRequest == nil {
		return
	}
	body := res.Body()
	if body == nil && raw.Body != nil {
		// the caller reads the body itself, hand it a replayable copy
		read, err := io.ReadAll(raw.Body)
		raw.Body.Close()
		if err != nil {
			i.tel.ReportWarning(report_resty_response, rc.id, fmt.Errorf("buffer body for transcript: %w", err))
		}
		raw.Body = io.NopCloser(bytes.NewReader(read))
		body = read
	}
	i.output.Write(
		strconv.FormatUint(rc.id, 10),
		formatHttpMessage(res.Request.RawRequest, raw, body),
	)
}

func (i instrumentCtx) onError(req *resty.Request, err error) {
	ctx := req.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")

	rc, _ := ctx.Value(reqCtxKey).(reqCtx)
	i.tel.ReportBroken(
		report_resty_response,
		rc.id,
		err,
		req.Method,
		req.URL,
		time.Since(rc.startTime).String(),
	)

	if req.RawRequest == nil {
		return
	}
	span.SetAttributes(httpconv.ClientRequest(req.RawRequest)...)
}
