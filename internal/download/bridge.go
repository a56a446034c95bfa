// Package download fetches resolved pdf urls outside of the rendering session, reusing
// the session's cookies, and hands accepted payloads to a document sink.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"esaj-crawler/internal/components/assert"
	"esaj-crawler/internal/components/chrono"
	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/model"
	"esaj-crawler/internal/store"
	"esaj-crawler/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

var (
	tracer = otel.Tracer("esaj-crawler/download")
	meter  = otel.Meter("esaj-crawler/download")
)

const (
	report_bridge_fetch   = "bridge.fetch"
	report_bridge_inspect = "bridge.inspect"
	report_bridge_persist = "bridge.persist"
)

var pdfMagic = []byte("%PDF")

var DefaultHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Accept":     "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
}

type Options struct {
	// Timeout bounds a single GET.
	Timeout time.Duration
	Headers map[string]string
	// RequestsPerSecond throttles every fetch made through the bridge, across workers.
	RequestsPerSecond float64
	Burst             int
	// DumpDir receives a text dump of every http exchange when set.
	DumpDir string
}

type Bridge struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
	timeout   time.Duration
	headers   map[string]string
	dumper    *restyutil.Dumper

	sink  store.DocumentSink
	index store.DocumentIndex
	clock chrono.API
	tel   telemetry.API

	stored   metric.Int64Counter
	rejected metric.Int64Counter
}

var disableConfigDir sync.Once

// NewBridge creates a Bridge persisting into sink. When index is not nil, documents it
// already holds are not fetched again.
func NewBridge(sink store.DocumentSink, index store.DocumentIndex, clock chrono.API, opts Options, tel telemetry.API) (*Bridge, error) {
	assert.NotNil(sink)
	assert.NotNil(clock)
	assert.NotNil(tel)

	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Headers == nil {
		opts.Headers = DefaultHeaders
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 2
	}

	// pdfcpu otherwise writes its configuration into the user's config dir
	disableConfigDir.Do(api.DisableConfigDir)

	stored, err := meter.Int64Counter("esaj.documents.stored")
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("esaj.documents.rejected")
	if err != nil {
		return nil, err
	}

	var dumper *restyutil.Dumper
	if opts.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return nil, fmt.Errorf("create dump dir: %w", err)
		}
		dumper = restyutil.NewDumper(output)
	}

	return &Bridge{
		dumper:    dumper,
		transport: cloudflarebp.AddCloudFlareByPass(http.DefaultTransport.(*http.Transport).Clone()),
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		timeout:   opts.Timeout,
		headers:   opts.Headers,
		sink:      sink,
		index:     index,
		clock:     clock,
		tel:       telemetry.NewScopedAPI("download_bridge", tel),
		stored:    stored,
		rejected:  rejected,
	}, nil
}

// client returns a resty client whose cookie jar holds exactly cookies.
func (b *Bridge) client(target *url.URL, cookies []model.Cookie) (*resty.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		// the portal scopes cookies to hosts the pdf may not be served from
		httpCookies = append(httpCookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(target, httpCookies)

	httpClient := resty.NewWithClient(&http.Client{
		Transport: b.transport,
		Jar:       jar,
	})
	httpClient.SetTimeout(b.timeout)
	httpClient.SetHeaders(b.headers)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return b.limiter.Wait(req.Context())
	})
	telemetry.InstrumentResty(httpClient, b.tel)
	if b.dumper != nil {
		b.dumper.Instrument(httpClient)
	}
	return httpClient, nil
}

// Fetch downloads and persists one resolved document.
//
// Errors wrap ErrAlreadyStored when the document was stored before, ErrPayloadRejected
// when the body is not a pdf, ErrNavigation when the request failed and
// ErrPersistence when the sink failed.
func (b *Bridge) Fetch(ctx context.Context, doc model.ResolvedDocument) (model.DocumentRecord, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	docType, docId := ParseMetadata(doc.AbsoluteURL)
	span.SetAttributes(
		attribute.String("case_number", doc.Case.CaseNumber),
		attribute.String("doc_type", docType),
		attribute.String("doc_id", docId),
	)

	if b.index != nil {
		has, err := b.index.HasDocument(ctx, doc.Case.CaseNumber, docType, docId)
		if err != nil {
			b.tel.ReportWarning(report_bridge_persist, fmt.Errorf("check index: %w", err), doc.Case.CaseNumber, docId)
		} else if has {
			return model.DocumentRecord{}, fmt.Errorf("%w: %s_%s", model.ErrAlreadyStored, docType, docId)
		}
	}

	target, err := url.Parse(doc.AbsoluteURL)
	if err != nil {
		b.tel.ReportWarning(report_bridge_fetch, err, doc.AbsoluteURL)
		return model.DocumentRecord{}, fmt.Errorf("%w: parse %s: %w", model.ErrNavigation, doc.AbsoluteURL, err)
	}
	client, err := b.client(target, doc.SessionCookies)
	if err != nil {
		b.tel.ReportBroken(report_bridge_fetch, fmt.Errorf("create client: %w", err))
		return model.DocumentRecord{}, err
	}

	res, err := client.R().
		SetContext(ctx).
		Get(doc.AbsoluteURL)
	if err != nil {
		return model.DocumentRecord{}, fmt.Errorf("%w: get %s: %w", model.ErrNavigation, doc.AbsoluteURL, err)
	}
	if res.IsError() {
		err = fmt.Errorf("%w: get %s: %s", model.ErrNavigation, doc.AbsoluteURL, res.Status())
		b.tel.ReportWarning(report_bridge_fetch, err)
		return model.DocumentRecord{}, err
	}

	body := res.Body()
	if !bytes.HasPrefix(body, pdfMagic) {
		b.rejected.Add(ctx, 1)
		err = fmt.Errorf(
			"%w: %s is %q, not a pdf",
			model.ErrPayloadRejected,
			doc.AbsoluteURL,
			res.Header().Get("Content-Type"),
		)
		b.tel.ReportWarning(report_bridge_fetch, err)
		return model.DocumentRecord{}, err
	}

	pages, err := pageCount(body)
	if err != nil {
		b.tel.ReportWarning(report_bridge_inspect, fmt.Errorf("count pages: %w", err), doc.AbsoluteURL)
		pages = 0
	}

	record := model.DocumentRecord{
		DocUUID:        uuid.NewString(),
		RegistrationID: doc.Case.RegistrationID,
		CaseNumber:     doc.Case.CaseNumber,
		DocType:        docType,
		DocID:          docId,
		SourceURL:      doc.AbsoluteURL,
		DownloadedAt:   b.clock.Now(),
		Pages:          pages,
		Content:        body,
	}

	err = b.sink.PersistDocument(ctx, record)
	if errors.Is(err, model.ErrAlreadyStored) {
		return record, err
	}
	if err != nil {
		b.tel.ReportBroken(report_bridge_persist, err, record.CaseNumber, record.DocID)
		return record, err
	}

	b.stored.Add(ctx, 1)
	b.tel.ReportDebug("document stored", record.CaseNumber, record.DocType, record.DocID, len(body))
	return record, nil
}

// pageCount reads the page count of a pdf, malformed payloads have been seen to panic
// inside pdfcpu.
func pageCount(body []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return api.PageCount(bytes.NewReader(body), conf)
}
