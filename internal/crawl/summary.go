package crawl

import "time"

// WorkerStats counts what one worker did with one partition.
type WorkerStats struct {
	Identifiers        int
	Cases              int
	RejectedCases      int
	NavigationFailures int

	Documents        int
	AlreadyStored    int
	RejectedPayloads int
	DocumentFailures int
	// Unresolved counts document links whose viewer had no pdf behind it.
	Unresolved int
	// WithoutDocuments counts cases that have no case page or no linked documents.
	WithoutDocuments int

	// Fatal is set when the worker stopped before the end of its partition.
	Fatal error
}

func (s *WorkerStats) add(o WorkerStats) {
	s.Identifiers += o.Identifiers
	s.Cases += o.Cases
	s.RejectedCases += o.RejectedCases
	s.NavigationFailures += o.NavigationFailures
	s.Documents += o.Documents
	s.AlreadyStored += o.AlreadyStored
	s.RejectedPayloads += o.RejectedPayloads
	s.DocumentFailures += o.DocumentFailures
	s.Unresolved += o.Unresolved
	s.WithoutDocuments += o.WithoutDocuments
}

// RunSummary is the outcome of a whole run.
type RunSummary struct {
	WorkerStats

	Batches      int
	FatalWorkers int
	// Inserted is the number of new rows the case sink accepted.
	Inserted        int
	BatchFiles      []string
	DocumentsOutput string
	Elapsed         time.Duration
}

func (s *RunSummary) addWorker(o WorkerStats) {
	s.add(o)
	if o.Fatal != nil {
		s.FatalWorkers++
	}
}
