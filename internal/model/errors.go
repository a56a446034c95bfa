package model

import "errors"

var (
	// ErrExtractionMiss means an expected field was absent on the page.
	ErrExtractionMiss = errors.New("extraction miss")
	// ErrNavigation means a page failed to load or respond in time.
	ErrNavigation = errors.New("navigation failure")
	// ErrPayloadRejected means the fetched bytes are not a pdf.
	ErrPayloadRejected = errors.New("payload rejected")
	// ErrPersistence means a storage write failed.
	ErrPersistence = errors.New("persistence failure")
	// ErrWorkerFatal means the rendering session of a worker is unusable.
	ErrWorkerFatal = errors.New("worker fatal")
	// ErrAlreadyStored means the document is already in the sink, so it was not fetched.
	ErrAlreadyStored = errors.New("already stored")
)
