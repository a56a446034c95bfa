// Package render is the boundary to the page rendering engine. Everything above it
// talks to a Session, which is either a real browser (RodSession) or static markup
// parsed with goquery (StaticSession).
package render

import (
	"context"
	"errors"
	"time"

	"esaj-crawler/internal/model"
)

var (
	// ErrSelectorTimeout is returned by WaitForSelector when nothing matched in time.
	ErrSelectorTimeout = errors.New("selector did not appear in time")
	// ErrSessionClosed is returned by every method once Quit was called.
	ErrSessionClosed = errors.New("session closed")
	// ErrNoPage is returned when the DOM is read before anything was navigated to.
	ErrNoPage = errors.New("no page loaded")
)

// Element is a handle to one node of the rendered DOM.
type Element interface {
	// Find returns the descendants matching a css selector, an empty slice when none do.
	Find(selector string) ([]Element, error)
	// Attribute returns the value of an attribute and whether it was present.
	Attribute(name string) (string, bool, error)
	// Text returns the visible text of the element.
	Text() (string, error)
}

// Session is one stateful rendering session, it is owned by exactly one worker and
// is not safe for concurrent use.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitForSelector polls the DOM until selector matches or timeout elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	FindElements(ctx context.Context, selector string) ([]Element, error)
	Cookies(ctx context.Context) ([]model.Cookie, error)
	PageSource(ctx context.Context) (string, error)
	// Alive reports a non-nil error when the session can no longer be driven.
	Alive(ctx context.Context) error
	Quit() error
}

// Factory creates a new session, workers call it once each.
type Factory func(ctx context.Context) (Session, error)
