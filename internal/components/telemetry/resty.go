package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const report_resty_response = "resty.response"

var restyTracer = otel.Tracer("esaj-crawler/resty")

type instrumentResty struct {
	tel       API
	idcounter *atomic.Uint64
}

// InstrumentResty gives every request made by the client its own span and id, and
// reports its duration and outcome.
func InstrumentResty(client *resty.Client, tel API) {
	i := instrumentResty{tel: tel, idcounter: &atomic.Uint64{}}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id      uint64
	started time.Time
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	id := i.idcounter.Add(1)
	ctx, _ := restyTracer.Start(
		req.Context(),
		fmt.Sprintf("http %s", req.Method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL),
		),
	)
	ctx = context.WithValue(ctx, reqCtxKey, reqCtx{id: id, started: time.Now()})
	i.tel.ReportDebug("request", id, req.Method, req.URL)

	req.SetContext(ctx)
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(
		attribute.Int("http.response.status_code", res.StatusCode()),
		attribute.Int("http.response.body.size", len(res.Body())),
	)
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
	}

	rc, ok := ctx.Value(reqCtxKey).(reqCtx)
	if !ok {
		return nil
	}
	i.tel.ReportDebug("response", rc.id, time.Since(rc.started).String(), res.Status())
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	ctx := req.Context()
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()

	var elapsed time.Duration
	if rc, ok := ctx.Value(reqCtxKey).(reqCtx); ok {
		elapsed = time.Since(rc.started)
	}
	i.tel.ReportWarning(report_resty_response, err, req.Method, req.URL, elapsed)
}
