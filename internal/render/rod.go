package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"esaj-crawler/internal/model"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type RodOptions struct {
	// Bin is the browser executable, rod downloads a chromium build when empty.
	Bin               string
	Headless          bool
	NavigationTimeout time.Duration
}

// RodSession drives one headless browser with a single tab.
type RodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	opts     RodOptions
	closed   bool
}

// NewRodFactory returns a Factory that launches a separate browser process per session.
func NewRodFactory(opts RodOptions) Factory {
	return func(ctx context.Context) (Session, error) {
		return NewRodSession(ctx, opts)
	}
}

func NewRodSession(ctx context.Context, opts RodOptions) (*RodSession, error) {
	l := launcher.New().
		Context(ctx).
		NoSandbox(true).
		Headless(opts.Headless).
		Set("disable-gpu", "").
		Set("disable-dev-shm-usage", "")
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		browser.Close()
		l.Kill()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 45 * time.Second
	}
	return &RodSession{
		launcher: l,
		browser:  browser,
		page:     page,
		opts:     opts,
	}, nil
}

func (s *RodSession) Navigate(ctx context.Context, url string) error {
	if s.closed {
		return ErrSessionClosed
	}
	p := s.page.Context(ctx).Timeout(s.opts.NavigationTimeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	// the settle wait above this layer covers late scripts
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait dom %s: %w", url, err)
	}
	return nil
}

func (s *RodSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if s.closed {
		return ErrSessionClosed
	}
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	_, err := p.Element(selector)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrSelectorTimeout
	}
	return err
}

func (s *RodSession) FindElements(ctx context.Context, selector string) ([]Element, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(els), nil
}

func (s *RodSession) Cookies(ctx context.Context) ([]model.Cookie, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	cookies, err := s.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, model.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return out, nil
}

func (s *RodSession) PageSource(ctx context.Context) (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	return s.page.Context(ctx).HTML()
}

func (s *RodSession) Alive(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	p := s.page.Context(ctx).Timeout(5 * time.Second)
	defer p.CancelTimeout()
	_, err := p.Eval(`() => true`)
	return err
}

func (s *RodSession) Quit() error {
	if s.closed {
		return nil
	}
	s.closed = true
	errs := []error{s.page.Close(), s.browser.Close()}
	s.launcher.Kill()
	s.launcher.Cleanup()
	return errors.Join(errs...)
}

type rodElement struct {
	el *rod.Element
}

func wrapRodElements(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, rodElement{el: el})
	}
	return out
}

func (e rodElement) Find(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(els), nil
}

func (e rodElement) Attribute(name string) (string, bool, error) {
	value, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (e rodElement) Text() (string, error) {
	return e.el.Text()
}
