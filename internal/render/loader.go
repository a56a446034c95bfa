package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"esaj-crawler/internal/model"

	"github.com/gocolly/colly/v2"
)

// ErrPageNotFound is returned by MapLoader for urls it holds no page for.
var ErrPageNotFound = errors.New("page not found")

// MapLoader serves fixed pages keyed by url.
type MapLoader struct {
	mu     sync.Mutex
	pages  map[string]Page
	visits []string
}

func NewMapLoader() *MapLoader {
	return &MapLoader{pages: map[string]Page{}}
}

// Set registers the markup (and optional cookies) served for url.
func (l *MapLoader) Set(url, html string, cookies ...model.Cookie) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages[url] = Page{URL: url, HTML: html, Cookies: cookies}
}

func (l *MapLoader) Load(ctx context.Context, url string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visits = append(l.visits, url)
	page, ok := l.pages[url]
	if !ok {
		return Page{}, fmt.Errorf("%s: %w", url, ErrPageNotFound)
	}
	return page, nil
}

// Visits returns every url loaded so far, in order.
func (l *MapLoader) Visits() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.visits))
	copy(out, l.visits)
	return out
}

// CollyLoader fetches pages over plain http with a colly collector, for portals whose
// result pages are rendered server side.
type CollyLoader struct {
	collector *colly.Collector
}

type CollyOptions struct {
	UserAgent string
	Timeout   time.Duration
	Delay     time.Duration
}

func NewCollyLoader(opts CollyOptions) (*CollyLoader, error) {
	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	)
	if opts.Timeout > 0 {
		c.SetRequestTimeout(opts.Timeout)
	}
	if opts.Delay > 0 {
		err := c.Limit(&colly.LimitRule{
			DomainGlob: "*",
			Delay:      opts.Delay,
		})
		if err != nil {
			return nil, err
		}
	}
	return &CollyLoader{collector: c}, nil
}

func (l *CollyLoader) Load(ctx context.Context, url string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	// clones share the http backend and the cookie jar
	c := l.collector.Clone()

	var page Page
	var loadErr error
	c.OnResponse(func(r *colly.Response) {
		page.URL = r.Request.URL.String()
		page.HTML = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			loadErr = fmt.Errorf("HTTP %d: %w", r.StatusCode, err)
			return
		}
		loadErr = err
	})

	if err := c.Visit(url); err != nil && loadErr == nil {
		loadErr = err
	}
	if loadErr != nil {
		return Page{}, loadErr
	}

	page.Cookies = fromHttpCookies(c.Cookies(url))
	return page, nil
}

func fromHttpCookies(cookies []*http.Cookie) []model.Cookie {
	out := make([]model.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, model.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return out
}
