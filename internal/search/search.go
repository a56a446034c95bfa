// Package search walks every result page of a registration number search.
package search

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/extract"
	"esaj-crawler/internal/model"
	"esaj-crawler/internal/portal"
	"esaj-crawler/internal/render"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("esaj-crawler/search")

const (
	report_search_navigate = "search.navigate"
	report_search_settle   = "search.settle"
	report_search_page     = "search.page"
)

type Options struct {
	// Settle bounds the wait for the first result page to finish rendering.
	Settle time.Duration
	// PageSettle bounds the same wait for every following page.
	PageSettle time.Duration
}

type Paginator struct {
	portal     portal.Portal
	extractor  extract.Extractor
	tel        telemetry.API
	settle     time.Duration
	pageSettle time.Duration
}

func NewPaginator(p portal.Portal, extractor extract.Extractor, opts Options, tel telemetry.API) Paginator {
	if opts.Settle <= 0 {
		opts.Settle = 860 * time.Millisecond
	}
	if opts.PageSettle <= 0 {
		opts.PageSettle = 200 * time.Millisecond
	}
	return Paginator{
		portal:     p,
		extractor:  extractor,
		tel:        telemetry.NewScopedAPI("search", tel),
		settle:     opts.Settle,
		pageSettle: opts.PageSettle,
	}
}

// Query is one search in progress, read it like a bufio.Scanner: range over Records
// once, then check Err.
type Query struct {
	p              Paginator
	ctx            context.Context
	session        render.Session
	registrationId string

	consumed bool
	pages    int
	visited  int
	records  int
	rejected int
	err      error
}

// Search prepares the search of one registration number, nothing is navigated until
// Records is ranged over.
func (p Paginator) Search(ctx context.Context, session render.Session, registrationId string) *Query {
	return &Query{
		p:              p,
		ctx:            ctx,
		session:        session,
		registrationId: registrationId,
	}
}

// Err returns the navigation failure of the first result page, if any. Failures on
// later pages are reported and skipped instead.
func (q *Query) Err() error {
	return q.err
}

// Pages is the number of result pages the portal advertised.
func (q *Query) Pages() int {
	return q.pages
}

// Visited is the number of result pages actually extracted.
func (q *Query) Visited() int {
	return q.visited
}

// Rejected is the number of case elements dropped for missing required fields.
func (q *Query) Rejected() int {
	return q.rejected
}

// Records yields the cases of every result page in page order. The sequence is single
// use, ranging over it a second time yields nothing.
func (q *Query) Records() iter.Seq[model.CaseRecord] {
	return func(yield func(model.CaseRecord) bool) {
		if q.consumed {
			return
		}
		q.consumed = true

		ctx, span := tracer.Start(q.ctx, "Search")
		defer func() {
			span.SetAttributes(
				attribute.String("registration_id", q.registrationId),
				attribute.Int("pages", q.pages),
				attribute.Int("records", q.records),
			)
			span.End()
		}()

		searchUrl := q.p.portal.SearchUrl(q.registrationId)
		err := q.session.Navigate(ctx, searchUrl)
		if err != nil {
			q.err = fmt.Errorf("%w: search %s: %w", model.ErrNavigation, q.registrationId, err)
			q.p.tel.ReportWarning(report_search_navigate, q.err, searchUrl)
			return
		}
		q.settle(ctx, q.p.settle)

		q.pages = 1
		paginators, err := q.session.FindElements(ctx, q.p.portal.Selectors.Pagination)
		if err != nil {
			q.p.tel.ReportWarning(report_search_page, fmt.Errorf("count pages: %w", err), q.registrationId)
		} else if len(paginators) > 0 {
			q.pages = len(paginators)
		}

		if !q.extractPage(ctx, 1, yield) {
			return
		}

		for n := 2; n <= q.pages; n++ {
			if ctx.Err() != nil {
				return
			}
			pageUrl := q.p.portal.PageUrl(q.registrationId, n)
			err := q.session.Navigate(ctx, pageUrl)
			if err != nil {
				q.p.tel.ReportWarning(
					report_search_navigate,
					fmt.Errorf("%w: page %d: %w", model.ErrNavigation, n, err),
					pageUrl,
				)
				continue
			}
			q.settle(ctx, q.p.pageSettle)
			if !q.extractPage(ctx, n, yield) {
				return
			}
		}
	}
}

func (q *Query) settle(ctx context.Context, timeout time.Duration) {
	err := q.session.WaitForSelector(ctx, q.p.portal.Selectors.Ready, timeout)
	if errors.Is(err, render.ErrSelectorTimeout) {
		q.p.tel.ReportDebug("result page did not settle", q.registrationId, timeout)
		return
	}
	if err != nil {
		q.p.tel.ReportWarning(report_search_settle, err, q.registrationId)
	}
}

// extractPage returns false once the consumer stopped iterating.
func (q *Query) extractPage(ctx context.Context, n int, yield func(model.CaseRecord) bool) bool {
	result, err := q.p.extractor.Page(ctx, q.session, q.registrationId)
	if err != nil {
		q.p.tel.ReportWarning(report_search_page, fmt.Errorf("page %d: %w", n, err), q.registrationId)
		return true
	}
	q.visited++
	q.rejected += len(result.Rejected)
	q.p.tel.ReportDebug("page extracted", q.registrationId, n, q.pages, len(result.Records))
	for _, rec := range result.Records {
		q.records++
		if !yield(rec) {
			return false
		}
	}
	return true
}
