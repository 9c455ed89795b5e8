// Package browser drives a headless Chrome over the DevTools protocol. Every
// Launch starts a dedicated browser process holding a single tab; nothing is
// shared between sessions.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/utils"
)

// Session is one isolated browser with one page.
type Session interface {
	// Navigate loads url and returns the HTTP status of the main document,
	// or 0 when the browser produced no response.
	Navigate(ctx context.Context, url string) (int, error)
	// Evaluate runs expression in the page and decodes its value into res.
	Evaluate(ctx context.Context, expression string, res any) error
	// EvaluateAsync is Evaluate for expressions that return a promise.
	EvaluateAsync(ctx context.Context, expression string, res any) error
	// Inject runs a script for its side effects, discarding the result.
	Inject(ctx context.Context, source string) error
	// WaitReady blocks until an element matching selector is in the DOM.
	WaitReady(ctx context.Context, selector string) error
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

type Options struct {
	ExecPath  string
	NoSandbox bool
	Logger    *utils.Logger
}

type chromeLauncher struct {
	opts Options
}

func NewChromeLauncher(opts Options) Launcher {
	if opts.Logger == nil {
		opts.Logger = utils.NewDiscardLogger()
	}
	return &chromeLauncher{opts: opts}
}

// Launch starts a browser and blocks until it is ready or ctx expires. The
// browser itself is not bound to ctx; only Close stops it.
func (l *chromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if l.opts.NoSandbox {
		allocOpts = append(allocOpts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			l.opts.Logger.Debug("chromedp", "message", fmt.Sprintf(format, args...))
		}),
	)

	started := make(chan error, 1)
	go func() {
		// A Run without actions only allocates the browser and the tab.
		started <- chromedp.Run(tabCtx)
	}()

	select {
	case err := <-started:
		if err != nil {
			cancelTab()
			cancelAlloc()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-ctx.Done():
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", ctx.Err())
	}

	return &chromeSession{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

type chromeSession struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// runContext scopes a tab operation to the caller's deadline and cancellation
// without cancelling the tab itself.
func (s *chromeSession) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(s.ctx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := s.runContext(ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) (int, error) {
	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return 0, err
	}
	if resp == nil {
		return 0, nil
	}
	return int(resp.Status), nil
}

func (s *chromeSession) Evaluate(ctx context.Context, expression string, res any) error {
	return s.run(ctx, chromedp.Evaluate(expression, res))
}

func (s *chromeSession) EvaluateAsync(ctx context.Context, expression string, res any) error {
	return s.run(ctx, chromedp.Evaluate(expression, res, awaitPromise))
}

func (s *chromeSession) Inject(ctx context.Context, source string) error {
	// Keeping the result as a remote object avoids serializing whatever the
	// script's last expression happens to be.
	var ignored *runtime.RemoteObject
	return s.run(ctx, chromedp.Evaluate(source, &ignored))
}

func (s *chromeSession) WaitReady(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Close shuts the browser down gracefully, then releases the allocator. It is
// safe to call more than once.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
	})
	return s.closeErr
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
