package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"esaj-crawler/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// Page is the markup and cookies returned by a PageLoader for one url.
type Page struct {
	URL     string
	HTML    string
	Cookies []model.Cookie
}

// PageLoader fetches the markup of a url.
type PageLoader interface {
	Load(ctx context.Context, url string) (Page, error)
}

// StaticSession renders pages by parsing the markup a PageLoader returns, it never
// executes scripts so its DOM is fixed as soon as Navigate returns.
type StaticSession struct {
	loader  PageLoader
	doc     *goquery.Document
	source  string
	cookies []model.Cookie
	closed  bool
}

func NewStaticSession(loader PageLoader) *StaticSession {
	return &StaticSession{loader: loader}
}

// NewStaticFactory returns a Factory of StaticSessions, newLoader is called once per session
// so that sessions never share cookie state.
func NewStaticFactory(newLoader func() (PageLoader, error)) Factory {
	return func(ctx context.Context) (Session, error) {
		loader, err := newLoader()
		if err != nil {
			return nil, err
		}
		return NewStaticSession(loader), nil
	}
}

func (s *StaticSession) Navigate(ctx context.Context, url string) error {
	if s.closed {
		return ErrSessionClosed
	}
	page, err := s.loader.Load(ctx, url)
	if err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return fmt.Errorf("parse %s: %w", url, err)
	}
	s.doc = doc
	s.source = page.HTML
	s.mergeCookies(page.Cookies)
	return nil
}

func (s *StaticSession) mergeCookies(cookies []model.Cookie) {
	for _, c := range cookies {
		replaced := false
		for i, existing := range s.cookies {
			if existing.Name == c.Name {
				s.cookies[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			s.cookies = append(s.cookies, c)
		}
	}
}

func (s *StaticSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.doc == nil {
		return ErrNoPage
	}
	if s.doc.Find(selector).Length() > 0 {
		return nil
	}
	return ErrSelectorTimeout
}

func (s *StaticSession) FindElements(ctx context.Context, selector string) ([]Element, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.doc == nil {
		return nil, ErrNoPage
	}
	return wrapSelection(s.doc.Find(selector)), nil
}

func (s *StaticSession) Cookies(ctx context.Context) ([]model.Cookie, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	out := make([]model.Cookie, len(s.cookies))
	copy(out, s.cookies)
	return out, nil
}

func (s *StaticSession) PageSource(ctx context.Context) (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	if s.doc == nil {
		return "", ErrNoPage
	}
	return s.source, nil
}

func (s *StaticSession) Alive(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *StaticSession) Quit() error {
	s.closed = true
	s.doc = nil
	return nil
}

type selectionElement struct {
	sel *goquery.Selection
}

func wrapSelection(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, selectionElement{sel: s})
	})
	return out
}

func (e selectionElement) Find(selector string) ([]Element, error) {
	return wrapSelection(e.sel.Find(selector)), nil
}

func (e selectionElement) Attribute(name string) (string, bool, error) {
	value, ok := e.sel.Attr(name)
	return value, ok, nil
}

func (e selectionElement) Text() (string, error) {
	return e.sel.Text(), nil
}
