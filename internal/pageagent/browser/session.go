// Package browser drives a live Chromium page through Playwright and feeds
// its document, mutations and form submissions to the page agent.
package browser

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// Options configures the browser.
type Options struct {
	// Headless runs the browser without a window.
	Headless bool
	// Install downloads the browser driver before starting.
	Install bool
	// Timeout is the default operation timeout in milliseconds.
	Timeout float64
	// Messages receives typed page messages; nil ignores them.
	Messages MessageSink
}

// Session is one browser window with the agent attached.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	log     *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Launch starts a browser whose every document reports to sink.
func Launch(sink Sink, opts Options, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	s := &Session{pw: pw, log: log, closed: make(chan struct{})}
	if err := s.open(sink, opts); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) open(sink Sink, opts Options) error {
	browser, err := s.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	s.browser = browser

	ctx, err := browser.NewContext()
	if err != nil {
		return fmt.Errorf("failed to create context: %w", err)
	}
	s.context = ctx

	b := &bindings{sink: sink, messages: opts.Messages, log: s.log}
	for name, fn := range map[string]playwright.ExposedFunction{
		bindingLoad:     b.load,
		bindingMutation: b.mutation,
		bindingSubmit:   b.submit,
		bindingMessage:  b.message,
	} {
		if err := ctx.ExposeBinding(name, b.topFrame(name, fn)); err != nil {
			return fmt.Errorf("expose %s: %w", name, err)
		}
	}
	if err := ctx.AddInitScript(playwright.Script{Content: playwright.String(initScript)}); err != nil {
		return fmt.Errorf("add init script: %w", err)
	}

	page, err := ctx.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	if opts.Timeout > 0 {
		page.SetDefaultTimeout(opts.Timeout)
	}
	page.OnClose(func(playwright.Page) { s.markClosed() })
	s.page = page
	return nil
}

// Navigate opens url in the page.
func (s *Session) Navigate(url string) error {
	if _, err := s.page.Goto(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	s.log.Info("navigated", zap.String("url", s.page.URL()))
	return nil
}

// Closed is closed when the user closes the page.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Close shuts the browser and the driver down.
func (s *Session) Close() error {
	var errs []error
	if s.context != nil {
		errs = append(errs, s.context.Close())
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}
	s.markClosed()
	return errors.Join(errs...)
}

func (s *Session) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}
