// Package store persists case records and document binaries.
//
// Every sink deduplicates: rewriting a case or a document that is already stored
// leaves the stored data unchanged.
package store

import (
	"context"

	"esaj-crawler/internal/model"
)

const (
	report_store_case     = "store.case"
	report_store_document = "store.document"
	report_store_batch    = "store.batch"
)

// CaseSink stores case records.
type CaseSink interface {
	PersistCase(ctx context.Context, rec model.CaseRecord) error
	// PersistCases stores recs as one unit of work and returns how many were new.
	PersistCases(ctx context.Context, recs []model.CaseRecord) (int, error)
}

// DocumentSink stores downloaded documents. Storing a document whose
// (case, docType, docId) is already present returns ErrAlreadyStored.
type DocumentSink interface {
	PersistDocument(ctx context.Context, doc model.DocumentRecord) error
}

// DocumentIndex answers whether a document was already stored by a previous run.
type DocumentIndex interface {
	HasDocument(ctx context.Context, caseNumber, docType, docId string) (bool, error)
}

type DocumentStore interface {
	DocumentSink
	DocumentIndex
	// Location describes where documents end up, for run summaries.
	Location() string
}
