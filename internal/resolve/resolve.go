// Package resolve follows the linked documents of a case to the pdf urls behind their viewers.
package resolve

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
	"esaj-crawler/lib/htmlutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("esaj-crawler/resolve")

const (
	report_resolve_case     = "resolve.case"
	report_resolve_document = "resolve.document"
)

// LinkStatus says why a case did or did not produce document links.
type LinkStatus int

const (
	LinksFound LinkStatus = iota
	// NoCaseLink means the case record carries no link to its case page.
	NoCaseLink
	// CasePageFailed means the case page could not be navigated to.
	CasePageFailed
	// NoAttachments means the case page rendered but lists no linked documents.
	NoAttachments
)

func (s LinkStatus) String() string {
	switch s {
	case LinksFound:
		return "links_found"
	case NoCaseLink:
		return "no_case_link"
	case CasePageFailed:
		return "case_page_failed"
	case NoAttachments:
		return "no_attachments"
	}
	return fmt.Sprintf("link_status(%d)", int(s))
}

type Options struct {
	// Settle bounds the wait for the linked document anchors on a case page.
	Settle time.Duration
}

type Resolver struct {
	portal    portal.Portal
	extractor extract.Extractor
	tel       telemetry.API
	settle    time.Duration
}

func NewResolver(p portal.Portal, extractor extract.Extractor, opts Options, tel telemetry.API) Resolver {
	if opts.Settle <= 0 {
		opts.Settle = 860 * time.Millisecond
	}
	return Resolver{
		portal:    p,
		extractor: extractor,
		tel:       telemetry.NewScopedAPI("resolve", tel),
		settle:    opts.Settle,
	}
}

// Resolution is the outcome of visiting one case page.
type Resolution struct {
	r       Resolver
	ctx     context.Context
	session render.Session
	rec     model.CaseRecord

	Status LinkStatus
	// Links are the absolute urls of the linked documents, deduplicated in page order.
	Links []string
	// Err is set when Status is CasePageFailed.
	Err error

	consumed   bool
	unresolved int
}

// Resolve navigates to the case page of rec and collects its linked documents. The
// documents themselves are only visited while ranging over Documents.
func (r Resolver) Resolve(ctx context.Context, session render.Session, rec model.CaseRecord) *Resolution {
	res := &Resolution{r: r, ctx: ctx, session: session, rec: rec}

	caseLink := model.Deref(rec.CaseLink)
	if caseLink == "" {
		res.Status = NoCaseLink
		return res
	}
	caseUrl, err := htmlutil.ResolveHref(r.portal.BaseUrl, caseLink)
	if err != nil {
		res.Status = NoCaseLink
		r.tel.ReportWarning(report_resolve_case, fmt.Errorf("parse case link: %w", err), caseLink)
		return res
	}

	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()

	err = session.Navigate(ctx, caseUrl)
	if err != nil {
		res.Status = CasePageFailed
		res.Err = fmt.Errorf("%w: case page %s: %w", model.ErrNavigation, rec.CaseNumber, err)
		r.tel.ReportWarning(report_resolve_case, res.Err, caseUrl)
		return res
	}
	err = session.WaitForSelector(ctx, r.portal.Selectors.LinkedDocs, r.settle)
	if err != nil && !errors.Is(err, render.ErrSelectorTimeout) {
		r.tel.ReportWarning(report_resolve_case, err, caseUrl)
	}

	anchors, err := session.FindElements(ctx, r.portal.Selectors.LinkedDocs)
	if err != nil {
		res.Status = CasePageFailed
		res.Err = fmt.Errorf("find linked documents: %w", err)
		r.tel.ReportWarning(report_resolve_case, res.Err, caseUrl)
		return res
	}

	base, _ := r.portal.BaseUrl.Parse(caseUrl)
	seen := map[string]struct{}{}
	for _, a := range anchors {
		href, ok, err := a.Attribute("href")
		if err != nil || !ok || href == "" {
			continue
		}
		abs, err := htmlutil.ResolveHref(base, href)
		if err != nil {
			r.tel.ReportWarning(report_resolve_case, fmt.Errorf("parse document link: %w", err), href)
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		res.Links = append(res.Links, abs)
	}

	span.SetAttributes(
		attribute.String("case_number", rec.CaseNumber),
		attribute.Int("links", len(res.Links)),
	)
	if len(res.Links) == 0 {
		res.Status = NoAttachments
		return res
	}
	res.Status = LinksFound
	return res
}

// Unresolved is the number of links that did not lead to a pdf url.
func (res *Resolution) Unresolved() int {
	return res.unresolved
}

// Documents visits every link in order and yields the ones whose viewer points at a pdf.
// The sequence is single use.
func (res *Resolution) Documents() iter.Seq[model.ResolvedDocument] {
	return func(yield func(model.ResolvedDocument) bool) {
		if res.consumed || res.Status != LinksFound {
			return
		}
		res.consumed = true

		for _, href := range res.Links {
			if res.ctx.Err() != nil {
				return
			}
			doc, ok := res.visit(href)
			if !ok {
				res.unresolved++
				continue
			}
			if !yield(doc) {
				return
			}
		}
	}
}

func (res *Resolution) visit(href string) (model.ResolvedDocument, bool) {
	r := res.r
	ctx, span := tracer.Start(res.ctx, "ResolveDocument")
	defer span.End()

	err := res.session.Navigate(ctx, href)
	if err != nil {
		r.tel.ReportWarning(
			report_resolve_document,
			fmt.Errorf("%w: viewer: %w", model.ErrNavigation, err),
			href,
		)
		return model.ResolvedDocument{}, false
	}
	cookies, err := res.session.Cookies(ctx)
	if err != nil {
		r.tel.ReportWarning(report_resolve_document, fmt.Errorf("read cookies: %w", err), href)
	}

	file, ok := r.extractor.DocumentUrl(ctx, res.session)
	if !ok {
		r.tel.ReportDebug("no pdf behind viewer", href)
		return model.ResolvedDocument{}, false
	}
	abs, err := htmlutil.ResolveHref(r.portal.BaseUrl, file)
	if err != nil {
		r.tel.ReportWarning(report_resolve_document, fmt.Errorf("parse pdf url: %w", err), file)
		return model.ResolvedDocument{}, false
	}

	return model.ResolvedDocument{
		Case:           res.rec,
		ViewerHref:     href,
		AbsoluteURL:    abs,
		SessionCookies: cookies,
	}, true
}
