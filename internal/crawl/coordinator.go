// Package crawl sweeps a range of registration numbers in checkpointed batches, each
// batch split across a pool of workers that own one rendering session each.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"esaj-crawler/internal/components/assert"
	"esaj-crawler/internal/components/chrono"
	"esaj-crawler/internal/components/telemetry"
	"esaj-crawler/internal/model"
	"esaj-crawler/internal/render"
	"esaj-crawler/internal/search"
	"esaj-crawler/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("esaj-crawler/crawl")

const (
	report_coordinator_batch      = "coordinator.batch"
	report_coordinator_checkpoint = "coordinator.checkpoint"
	report_coordinator_session    = "coordinator.session"
	report_coordinator_perf       = "coordinator.perf"
)

type State int

const (
	Idle State = iota
	BatchInFlight
	Checkpointed
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case BatchInFlight:
		return "batch_in_flight"
	case Checkpointed:
		return "checkpointed"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Options struct {
	Start      int
	End        int
	Prefix     string
	Workers    int
	BatchSize  int
	BatchDelay time.Duration
}

type Deps struct {
	Sessions   render.Factory
	Paginator  search.Paginator
	Checkpoint store.Checkpoint
	// Documents is nil when documents are not downloaded during the sweep.
	Documents *DocumentStage
	// DocumentsOutput describes where documents are stored, for the summary.
	DocumentsOutput string
	Clock           chrono.API
	Tel             telemetry.API
}

type Coordinator struct {
	opts Options
	deps Deps
	tel  telemetry.API

	mu     sync.Mutex
	state  State
	states []State

	// sessions[i] belongs to worker i, it outlives batches and is replaced once it dies.
	sessions []render.Session
}

func NewCoordinator(opts Options, deps Deps) (*Coordinator, error) {
	assert.NotNil(deps.Sessions)
	assert.NotNil(deps.Clock)
	assert.NotNil(deps.Tel)

	if opts.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", opts.Workers)
	}
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", opts.BatchSize)
	}
	if opts.Start < 0 {
		return nil, fmt.Errorf("start must not be negative, got %d", opts.Start)
	}
	return &Coordinator{
		opts:     opts,
		deps:     deps,
		tel:      telemetry.NewScopedAPI("crawl", deps.Tel),
		sessions: make([]render.Session, opts.Workers),
	}, nil
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	c.states = append(c.states, s)
	c.tel.ReportDebug("coordinator state", s.String())
}

// States returns every state the coordinator went through, in order.
func (c *Coordinator) States() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]State, len(c.states))
	copy(out, c.states)
	return out
}

func (c *Coordinator) session(ctx context.Context, i int) (render.Session, error) {
	if c.sessions[i] != nil {
		return c.sessions[i], nil
	}
	s, err := c.deps.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %w", model.ErrWorkerFatal, err)
	}
	c.sessions[i] = s
	return s, nil
}

// retire quits the session of worker i, the next batch starts a fresh one.
func (c *Coordinator) retire(i int) {
	if c.sessions[i] == nil {
		return
	}
	err := c.sessions[i].Quit()
	if err != nil {
		c.tel.ReportWarning(report_coordinator_session, fmt.Errorf("quit: %w", err), i)
	}
	c.sessions[i] = nil
}

func (c *Coordinator) close() {
	for i := range c.sessions {
		c.retire(i)
	}
}

// Run sweeps [Start, End]. Every batch is checkpointed before the next one starts.
// It only returns an error when ctx is done, everything else is contained and counted
// in the summary.
func (c *Coordinator) Run(ctx context.Context) (RunSummary, error) {
	began := c.deps.Clock.Now()
	summary := RunSummary{DocumentsOutput: c.deps.DocumentsOutput}
	defer c.close()

	c.setState(Idle)
	windows := Windows(c.opts.Start, c.opts.End, c.opts.BatchSize)
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = c.deps.Clock.Now().Sub(began)
			return summary, err
		}

		c.setState(BatchInFlight)
		recs, stats := c.batch(ctx, w, c.sweepPartition)
		for _, s := range stats {
			summary.addWorker(s)
		}
		// an interrupted batch is not complete, resuming must sweep it again
		if err := ctx.Err(); err != nil {
			summary.Elapsed = c.deps.Clock.Now().Sub(began)
			return summary, err
		}

		result, err := c.deps.Checkpoint.Write(ctx, w.Start, w.End, recs)
		if err != nil {
			c.tel.ReportBroken(report_coordinator_checkpoint, err, w.String())
		} else {
			summary.BatchFiles = append(summary.BatchFiles, result.File)
			summary.Inserted += result.Inserted
		}
		summary.Batches++
		c.setState(Checkpointed)
		c.reportBatch(ctx, w, len(recs), stats)

		if i < len(windows)-1 {
			err := c.deps.Clock.Sleep(ctx, c.opts.BatchDelay)
			if err != nil {
				summary.Elapsed = c.deps.Clock.Now().Sub(began)
				return summary, err
			}
		}
	}

	c.setState(Done)
	summary.Elapsed = c.deps.Clock.Now().Sub(began)
	return summary, nil
}

type partitionFunc func(ctx context.Context, session render.Session, p Partition, out chan<- found) WorkerStats

// batch runs fn over every partition of w concurrently and returns the records the
// workers reported, in partition order.
func (c *Coordinator) batch(ctx context.Context, w Window, fn partitionFunc) ([]model.CaseRecord, []WorkerStats) {
	ctx, span := tracer.Start(ctx, "Batch")
	defer span.End()
	span.SetAttributes(attribute.Int("start", w.Start), attribute.Int("end", w.End))

	parts := Split(w, c.opts.Workers)
	out := make(chan found)
	buckets := make([][]model.CaseRecord, len(parts))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for f := range out {
			buckets[f.partition] = append(buckets[f.partition], f.record)
		}
	}()

	stats := make([]WorkerStats, len(parts))
	var group errgroup.Group
	for i, p := range parts {
		group.Go(func() error {
			session, err := c.session(ctx, p.Worker)
			if err != nil {
				stats[i].Fatal = err
				c.tel.ReportBroken(report_coordinator_session, err, p.Worker)
				return nil
			}
			stats[i] = fn(ctx, session, p, out)
			if stats[i].Fatal != nil {
				c.retire(p.Worker)
			}
			return nil
		})
	}
	group.Wait()
	close(out)
	<-collected

	var recs []model.CaseRecord
	for _, b := range buckets {
		recs = append(recs, b...)
	}
	span.SetAttributes(attribute.Int("records", len(recs)))
	return recs, stats
}

func (c *Coordinator) sweepPartition(ctx context.Context, session render.Session, p Partition, out chan<- found) WorkerStats {
	w := worker{
		index:     p.Worker,
		prefix:    c.opts.Prefix,
		session:   session,
		paginator: c.deps.Paginator,
		documents: c.deps.Documents,
		out:       out,
		tel:       c.tel,
	}
	return w.run(ctx, p)
}

func (c *Coordinator) reportBatch(ctx context.Context, w Window, records int, stats []WorkerStats) {
	fatal := 0
	for _, s := range stats {
		if s.Fatal != nil {
			fatal++
		}
	}
	if fatal > 0 {
		c.tel.ReportWarning(
			report_coordinator_batch,
			fmt.Errorf("%d of %d workers stopped early", fatal, len(stats)),
			w.String(),
		)
	}
	c.tel.ReportCount(report_coordinator_batch, int64(records))

	perf, err := telemetry.SamplePerfStats(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.tel.ReportWarning(report_coordinator_perf, err)
		return
	}
	c.tel.ReportDebug("batch checkpointed", w.String(), records, perf.RssMB, perf.CPUPercent, perf.Goroutines)
}
