package crawl

import (
	"context"
	"errors"
	"fmt"

	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/download"
	"esaj-crawler/internal/model"
	"esaj-crawler/internal/oab"
	"esaj-crawler/internal/render"
	"esaj-crawler/internal/resolve"
	"esaj-crawler/internal/search"
)

const (
	report_worker_run        = "worker.run"
	report_worker_identifier = "worker.identifier"
	report_worker_documents  = "worker.documents"
)

// found is a case record on its way from a worker to the coordinator's collector.
type found struct {
	partition int
	record    model.CaseRecord
}

// DocumentStage resolves and downloads the documents of a case.
type DocumentStage struct {
	resolver resolve.Resolver
	bridge   *download.Bridge
}

func NewDocumentStage(resolver resolve.Resolver, bridge *download.Bridge) *DocumentStage {
	return &DocumentStage{resolver: resolver, bridge: bridge}
}

// process returns an ErrWorkerFatal when the session died on the way.
func (d *DocumentStage) process(ctx context.Context, session render.Session, rec model.CaseRecord, stats *WorkerStats, tel telemetry.API) error {
	res := d.resolver.Resolve(ctx, session, rec)
	switch res.Status {
	case resolve.NoCaseLink, resolve.NoAttachments:
		stats.WithoutDocuments++
		return nil
	case resolve.CasePageFailed:
		stats.DocumentFailures++
		if err := session.Alive(ctx); err != nil {
			return fmt.Errorf("%w: case page %s: %w", model.ErrWorkerFatal, rec.CaseNumber, err)
		}
		return nil
	}

	for doc := range res.Documents() {
		_, err := d.bridge.Fetch(ctx, doc)
		switch {
		case err == nil:
			stats.Documents++
		case errors.Is(err, model.ErrAlreadyStored):
			stats.AlreadyStored++
		case errors.Is(err, model.ErrPayloadRejected):
			stats.RejectedPayloads++
		default:
			stats.DocumentFailures++
			tel.ReportWarning(report_worker_documents, err, rec.CaseNumber, doc.AbsoluteURL)
		}
	}
	stats.Unresolved += res.Unresolved()
	return nil
}

// worker drives one session through one partition at a time.
type worker struct {
	index     int
	prefix    string
	session   render.Session
	paginator search.Paginator
	documents *DocumentStage
	out       chan<- found
	tel       telemetry.API
}

// run processes every identifier of p in order. It stops early only when the session
// becomes unusable or ctx is done.
func (w worker) run(ctx context.Context, p Partition) (stats WorkerStats) {
	defer func() {
		if r := recover(); r != nil {
			stats.Fatal = fmt.Errorf("%w: panic: %v", model.ErrWorkerFatal, r)
			w.tel.ReportBroken(report_worker_run, stats.Fatal, p.Worker, p.Window.String())
		}
	}()

	for n := p.Start; n <= p.End; n++ {
		if ctx.Err() != nil {
			return stats
		}
		id := oab.Format(n, w.prefix)
		err := w.identifier(ctx, id, &stats)
		if err != nil {
			stats.Fatal = err
			w.tel.ReportBroken(report_worker_run, err, p.Worker, id)
			return stats
		}
	}
	return stats
}

func (w worker) identifier(ctx context.Context, id string, stats *WorkerStats) error {
	stats.Identifiers++

	q := w.paginator.Search(ctx, w.session, id)
	var recs []model.CaseRecord
	for rec := range q.Records() {
		recs = append(recs, rec)
	}
	stats.RejectedCases += q.Rejected()

	if err := q.Err(); err != nil {
		stats.NavigationFailures++
		w.tel.ReportWarning(report_worker_identifier, err, id)
		if aliveErr := w.session.Alive(ctx); aliveErr != nil {
			return fmt.Errorf("%w: %s: %w", model.ErrWorkerFatal, id, aliveErr)
		}
		return nil
	}

	for _, rec := range recs {
		w.out <- found{partition: w.index, record: rec}
		stats.Cases++
	}
	w.tel.ReportDebug("identifier done", id, len(recs), q.Pages())

	if w.documents == nil {
		return nil
	}
	for _, rec := range recs {
		if ctx.Err() != nil {
			return nil
		}
		err := w.documents.process(ctx, w.session, rec, stats, w.tel)
		if err != nil {
			return err
		}
	}
	return nil
}
