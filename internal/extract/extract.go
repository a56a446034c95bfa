// Package extract turns rendered result and viewer pages into case records and document urls.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/model"
	"esaj-crawler/internal/portal"
	"esaj-crawler/internal/render"
	"esaj-crawler/lib/htmlutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("esaj-crawler/extract")

const (
	report_extract_case         = "extract.case"
	report_extract_page         = "extract.page"
	report_extract_document_url = "extract.document-url"
)

const (
	FieldRegistrationId = "registrationId"
	FieldCaseNumber     = "caseNumber"
	FieldAdvocateName   = "advocateName"
	FieldCaseClass      = "caseClass"
	FieldSubject        = "subject"
	FieldReceivedDate   = "receivedDate"
	FieldCourt          = "court"
	FieldCaseLink       = "caseLink"
)

// FieldOutcome is the result of reading one field off a case element.
type FieldOutcome struct {
	Name     string
	Required bool
	Found    bool
	Err      error
}

// CaseOutcome is a record together with how each of its fields was read.
type CaseOutcome struct {
	Record model.CaseRecord
	Fields []FieldOutcome
}

// OK is true when every required field was found.
func (o CaseOutcome) OK() bool {
	for _, f := range o.Fields {
		if f.Required && !f.Found {
			return false
		}
	}
	return true
}

// Missing lists the fields that were not found, required or not.
func (o CaseOutcome) Missing() []string {
	var out []string
	for _, f := range o.Fields {
		if !f.Found {
			out = append(out, f.Name)
		}
	}
	return out
}

// Err is nil for a usable record, otherwise an ErrExtractionMiss naming the missing
// required fields.
func (o CaseOutcome) Err() error {
	var missing []string
	for _, f := range o.Fields {
		if f.Required && !f.Found {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: required %s", model.ErrExtractionMiss, strings.Join(missing, ", "))
}

type Extractor struct {
	sel        portal.Selectors
	tel        telemetry.API
	viewerWait time.Duration
}

type Options struct {
	Selectors portal.Selectors
	// ViewerWait bounds how long DocumentUrl waits for an iframe or embed to appear.
	ViewerWait time.Duration
}

func NewExtractor(opts Options, tel telemetry.API) Extractor {
	if opts.ViewerWait <= 0 {
		opts.ViewerWait = 10 * time.Second
	}
	return Extractor{
		sel:        opts.Selectors,
		tel:        telemetry.NewScopedAPI("extract", tel),
		viewerWait: opts.ViewerWait,
	}
}

func firstText(el render.Element, selector string) (string, bool, error) {
	found, err := el.Find(selector)
	if err != nil {
		return "", false, err
	}
	if len(found) == 0 {
		return "", false, nil
	}
	text, err := found[0].Text()
	if err != nil {
		return "", false, err
	}
	return htmlutil.CleanText(text), true, nil
}

func firstAttr(el render.Element, selector, attr string) (string, bool, error) {
	found, err := el.Find(selector)
	if err != nil {
		return "", false, err
	}
	if len(found) == 0 {
		return "", false, nil
	}
	value, ok, err := found[0].Attribute(attr)
	if err != nil || !ok {
		return "", false, err
	}
	value = strings.TrimSpace(value)
	return value, value != "", nil
}

// Case reads one case element. The returned outcome always carries a record, callers
// must check OK before using it.
func (e Extractor) Case(el render.Element, registrationId string) CaseOutcome {
	var out CaseOutcome
	field := func(name string, required, found bool, err error) {
		out.Fields = append(out.Fields, FieldOutcome{Name: name, Required: required, Found: found, Err: err})
	}

	out.Record.RegistrationID = registrationId
	field(FieldRegistrationId, true, registrationId != "", nil)

	number, ok, err := firstText(el, e.sel.CaseNumber)
	out.Record.CaseNumber = number
	field(FieldCaseNumber, true, ok && number != "", err)

	advocate, ok, err := firstText(el, e.sel.AdvocateName)
	if ok {
		out.Record.AdvocateName = model.Str(advocate)
	}
	field(FieldAdvocateName, false, ok, err)

	class, ok, err := firstText(el, e.sel.CaseClass)
	out.Record.CaseClass = class
	field(FieldCaseClass, true, ok, err)

	subject, ok, err := firstText(el, e.sel.Subject)
	out.Record.Subject = subject
	field(FieldSubject, true, ok, err)

	dateCourt, ok, err := firstText(el, e.sel.DateAndCourt)
	dateFound, courtFound := false, false
	if ok && dateCourt != "" {
		date, court, hasCourt := strings.Cut(dateCourt, portal.DateCourtSeparator)
		out.Record.ReceivedDate = model.Str(strings.TrimSpace(date))
		dateFound = true
		if hasCourt {
			out.Record.Court = model.Str(strings.TrimSpace(court))
			courtFound = true
		}
	}
	field(FieldReceivedDate, false, dateFound, err)
	field(FieldCourt, false, courtFound, err)

	link, ok, err := firstAttr(el, e.sel.CaseLink, "href")
	if ok {
		out.Record.CaseLink = model.Str(link)
	}
	field(FieldCaseLink, false, ok, err)

	return out
}

// PageResult is everything extracted from one result page.
type PageResult struct {
	Records  []model.CaseRecord
	Rejected []CaseOutcome
}

// Page extracts every case element on the current page. A case element missing a
// required field is reported and skipped, the rest of the page is still read.
func (e Extractor) Page(ctx context.Context, session render.Session, registrationId string) (PageResult, error) {
	ctx, span := tracer.Start(ctx, "Page")
	defer span.End()

	var result PageResult
	elements, err := session.FindElements(ctx, e.sel.Case)
	if err != nil {
		e.tel.ReportBroken(report_extract_page, fmt.Errorf("find case elements: %w", err), registrationId)
		return result, err
	}
	span.SetAttributes(attribute.Int("elements", len(elements)))

	for i, el := range elements {
		outcome := e.Case(el, registrationId)
		if err := outcome.Err(); err != nil {
			e.tel.ReportWarning(report_extract_case, err, registrationId, i)
			result.Rejected = append(result.Rejected, outcome)
			continue
		}
		result.Records = append(result.Records, outcome.Record)
	}
	return result, nil
}

var getPdfRegex = regexp.MustCompile(`file=([^"&]+getPDF\.do[^"&]+)`)

// DocumentUrl finds the pdf url behind the current viewer page. It prefers the `file`
// parameter of a viewer iframe/embed and falls back to scanning the markup. Both paths
// decode the parameter exactly once. Not finding anything is an expected outcome.
func (e Extractor) DocumentUrl(ctx context.Context, session render.Session) (string, bool) {
	ctx, span := tracer.Start(ctx, "DocumentUrl")
	defer span.End()

	err := session.WaitForSelector(ctx, e.sel.ViewerAny, e.viewerWait)
	if err == nil {
		// the frame can exist before its src is populated, the src wait is best effort
		err := session.WaitForSelector(ctx, e.sel.ViewerWithSrc, time.Second)
		if err != nil && !errors.Is(err, render.ErrSelectorTimeout) {
			e.tel.ReportWarning(report_extract_document_url, fmt.Errorf("wait viewer src: %w", err))
		}

		if file, ok := e.viewerFileParam(ctx, session); ok {
			span.SetAttributes(attribute.String("strategy", "viewer"))
			return file, true
		}
	}

	source, err := session.PageSource(ctx)
	if err != nil {
		e.tel.ReportWarning(report_extract_document_url, fmt.Errorf("read page source: %w", err))
		return "", false
	}
	match := getPdfRegex.FindStringSubmatch(source)
	if match == nil {
		return "", false
	}
	file, err := url.QueryUnescape(match[1])
	if err != nil {
		e.tel.ReportWarning(report_extract_document_url, fmt.Errorf("unescape file param: %w", err), match[1])
		return "", false
	}
	span.SetAttributes(attribute.String("strategy", "markup"))
	return file, true
}

func (e Extractor) viewerFileParam(ctx context.Context, session render.Session) (string, bool) {
	viewers, err := session.FindElements(ctx, e.sel.ViewerWithSrc)
	if err != nil {
		e.tel.ReportWarning(report_extract_document_url, fmt.Errorf("find viewers: %w", err))
		return "", false
	}
	for _, viewer := range viewers {
		src, ok, err := viewer.Attribute("src")
		if err != nil || !ok {
			continue
		}
		parsed, err := url.Parse(src)
		if err != nil {
			continue
		}
		if file := parsed.Query().Get("file"); file != "" {
			return file, true
		}
	}
	return "", false
}
