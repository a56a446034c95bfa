package store

import (
	"context"
	"fmt"

	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/model"
)

// Checkpoint persists the merged results of one batch: always as a batch file, and
// additionally into a case sink when one is configured.
type Checkpoint struct {
	files BatchFiles
	cases CaseSink
	tel   telemetry.API
}

// NewCheckpoint creates a Checkpoint, cases may be nil.
func NewCheckpoint(files BatchFiles, cases CaseSink, tel telemetry.API) Checkpoint {
	return Checkpoint{
		files: files,
		cases: cases,
		tel:   telemetry.NewScopedAPI("checkpoint", tel),
	}
}

type CheckpointResult struct {
	File     string
	Inserted int
}

// Write fails only when the batch file could not be written, a failing case sink is
// reported and otherwise ignored.
func (c Checkpoint) Write(ctx context.Context, start, end int, recs []model.CaseRecord) (CheckpointResult, error) {
	var result CheckpointResult
	path, err := c.files.Write(start, end, recs)
	if err != nil {
		c.tel.ReportBroken(report_store_batch, fmt.Errorf("write batch file: %w", err), start, end)
		return result, err
	}
	result.File = path

	if c.cases == nil {
		return result, nil
	}
	inserted, err := c.cases.PersistCases(ctx, recs)
	if err != nil {
		c.tel.ReportBroken(report_store_batch, fmt.Errorf("persist cases: %w", err), start, end)
		return result, nil
	}
	result.Inserted = inserted
	return result, nil
}
