// Package browsertest provides scriptable in-memory browser sessions for tests
// of code that drives a browser.Session.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/browser"
)

// ErrLaunch is returned by a Launcher configured to fail.
var ErrLaunch = errors.New("browsertest: launch failed")

// Session records every call and answers from its function fields. A nil
// function field means "succeed with a zero value".
type Session struct {
	NavigateFunc      func(url string) (int, error)
	EvaluateFunc      func(expression string) (any, error)
	// EvaluateCtxFunc, when set, replaces EvaluateFunc and sees the call's context.
	EvaluateCtxFunc   func(ctx context.Context, expression string) (any, error)
	EvaluateAsyncFunc func(expression string) (any, error)
	InjectFunc        func(source string) error
	WaitReadyFunc     func(ctx context.Context, selector string) error
	HTMLFunc          func() (string, error)
	CloseErr          error

	mu          sync.Mutex
	navigated   []string
	evaluations []string
	injected    int
	closed      int
}

// NewSession returns a session whose navigation answers 200.
func NewSession() *Session {
	return &Session{
		NavigateFunc: func(string) (int, error) { return 200, nil },
	}
}

func (s *Session) Navigate(_ context.Context, url string) (int, error) {
	s.mu.Lock()
	s.navigated = append(s.navigated, url)
	s.mu.Unlock()

	if s.NavigateFunc == nil {
		return 200, nil
	}
	return s.NavigateFunc(url)
}

func (s *Session) Evaluate(ctx context.Context, expression string, res any) error {
	s.mu.Lock()
	s.evaluations = append(s.evaluations, expression)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		v   any
		err error
	)
	switch {
	case s.EvaluateCtxFunc != nil:
		v, err = s.EvaluateCtxFunc(ctx, expression)
	case s.EvaluateFunc != nil:
		v, err = s.EvaluateFunc(expression)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return Assign(res, v)
}

func (s *Session) EvaluateAsync(ctx context.Context, expression string, res any) error {
	s.mu.Lock()
	s.evaluations = append(s.evaluations, expression)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.EvaluateAsyncFunc == nil {
		return nil
	}
	v, err := s.EvaluateAsyncFunc(expression)
	if err != nil {
		return err
	}
	return Assign(res, v)
}

func (s *Session) Inject(_ context.Context, source string) error {
	s.mu.Lock()
	s.injected++
	s.mu.Unlock()

	if s.InjectFunc == nil {
		return nil
	}
	return s.InjectFunc(source)
}

func (s *Session) WaitReady(ctx context.Context, selector string) error {
	if s.WaitReadyFunc == nil {
		return nil
	}
	return s.WaitReadyFunc(ctx, selector)
}

func (s *Session) HTML(context.Context) (string, error) {
	if s.HTMLFunc == nil {
		return "<html></html>", nil
	}
	return s.HTMLFunc()
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return s.CloseErr
}

// Navigated lists the URLs passed to Navigate.
func (s *Session) Navigated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

// Evaluations counts Evaluate and EvaluateAsync calls whose expression is expr.
func (s *Session) Evaluations(expr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.evaluations {
		if e == expr {
			n++
		}
	}
	return n
}

// Injected counts Inject calls.
func (s *Session) Injected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injected
}

// CloseCount counts Close calls.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Launcher hands out sessions built by NewSession, or fails with Err.
type Launcher struct {
	NewSession func() *Session
	Err        error

	mu       sync.Mutex
	sessions []*Session
}

func (l *Launcher) Launch(context.Context) (browser.Session, error) {
	if l.Err != nil {
		return nil, l.Err
	}

	var s *Session
	if l.NewSession != nil {
		s = l.NewSession()
	} else {
		s = NewSession()
	}

	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

// Sessions returns every session launched so far.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

// OpenSessions counts launched sessions that were never closed.
func (l *Launcher) OpenSessions() int {
	n := 0
	for _, s := range l.Sessions() {
		if s.CloseCount() == 0 {
			n++
		}
	}
	return n
}

// Assign copies v into res through JSON, the way a DevTools evaluation
// result is decoded. A nil res discards v.
func Assign(res, v any) error {
	if res == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, res)
}
