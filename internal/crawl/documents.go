package crawl

import (
	"context"
	"errors"
	"fmt"

	"esaj-crawler/internal/model"
	"esaj-crawler/internal/render"
	"esaj-crawler/internal/store"
)

const report_documents_file = "documents.file"

// RunDocuments downloads the documents of every case listed in the batch files, in
// file name order. The cases of each file are split across the workers.
func (c *Coordinator) RunDocuments(ctx context.Context, files store.BatchFiles) (RunSummary, error) {
	if c.deps.Documents == nil {
		return RunSummary{}, errors.New("document stage is not configured")
	}
	began := c.deps.Clock.Now()
	summary := RunSummary{DocumentsOutput: c.deps.DocumentsOutput}
	defer c.close()

	paths, err := files.List()
	if err != nil {
		return summary, fmt.Errorf("list batch files: %w", err)
	}

	c.setState(Idle)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = c.deps.Clock.Now().Sub(began)
			return summary, err
		}
		recs, err := files.Read(path)
		if err != nil {
			c.tel.ReportBroken(report_documents_file, err, path)
			continue
		}
		if len(recs) == 0 {
			continue
		}

		c.setState(BatchInFlight)
		_, stats := c.batch(ctx, Window{Start: 0, End: len(recs) - 1}, c.documentsPartition(recs))
		for _, s := range stats {
			summary.addWorker(s)
		}
		summary.Cases += len(recs)
		summary.Batches++
		summary.BatchFiles = append(summary.BatchFiles, path)
		c.setState(Checkpointed)
		c.tel.ReportDebug("batch file done", path, len(recs))
	}

	c.setState(Done)
	summary.Elapsed = c.deps.Clock.Now().Sub(began)
	return summary, nil
}

func (c *Coordinator) documentsPartition(recs []model.CaseRecord) partitionFunc {
	return func(ctx context.Context, session render.Session, p Partition, _ chan<- found) (stats WorkerStats) {
		defer func() {
			if r := recover(); r != nil {
				stats.Fatal = fmt.Errorf("%w: panic: %v", model.ErrWorkerFatal, r)
				c.tel.ReportBroken(report_worker_run, stats.Fatal, p.Worker)
			}
		}()
		for i := p.Start; i <= p.End; i++ {
			if ctx.Err() != nil {
				return stats
			}
			err := c.deps.Documents.process(ctx, session, recs[i], &stats, c.tel)
			if err != nil {
				stats.Fatal = err
				c.tel.ReportBroken(report_worker_run, err, p.Worker, recs[i].CaseNumber)
				return stats
			}
		}
		return stats
	}
}
