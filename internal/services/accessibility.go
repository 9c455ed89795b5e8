package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	pkgerrors "github.com/pkg/errors"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/analyzer"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/browser"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/config"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/extractor"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/models"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/storage"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/utils"
)

const (
	MsgMissingInput = "No file content or file name provided."
	MsgNotPDF       = "Uploaded file is not a PDF document."
	MsgBusy         = "Too many accessibility checks in progress. Retry later."

	tracerName     = "github.com/BerylCAtieno/pdf-accessibility-checker/internal/services"
	cleanupTimeout = 30 * time.Second
	snippetTimeout = 5 * time.Second

	readinessExpression = `typeof window.PDFViewerApplication !== 'undefined' && !!window.PDFViewerApplication.initialized`

	viewerStateExpression = `(function () {
  var app = window.PDFViewerApplication;
  return {
    initialized: !!(app && app.initialized),
    numPages: (app && app.pdfDocument && app.pdfDocument.numPages) || 0,
    isLoading: app && typeof app.pdfLoading === 'boolean' ? app.pdfLoading : null,
    isDocumentLoaded: !!(app && app.pdfDocument),
    fileName: (app && app.url) || null
  };
})()`
)

type AccessibilityService interface {
	CheckAccessibility(ctx context.Context, upload *models.Upload) (*models.AuditResult, error)
}

type Options struct {
	ViewerURL         string
	LaunchTimeout     time.Duration
	NavigationTimeout time.Duration
	ReadinessAttempts int
	ReadinessInterval time.Duration
	RenderSelector    string
	RenderTimeout     time.Duration
	AnalysisTimeout   time.Duration
	SnippetLimit      int
	// MaxConcurrent caps in-flight checks; 0 means unlimited.
	MaxConcurrent int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ViewerURL:         cfg.ViewerURL(),
		LaunchTimeout:     cfg.LaunchTimeout,
		NavigationTimeout: cfg.NavigationTimeout,
		ReadinessAttempts: cfg.ReadinessAttempts,
		ReadinessInterval: cfg.ReadinessInterval,
		RenderSelector:    cfg.RenderSelector,
		RenderTimeout:     cfg.RenderTimeout,
		AnalysisTimeout:   cfg.AnalysisTimeout,
		SnippetLimit:      cfg.SnippetLimit,
		MaxConcurrent:     cfg.MaxConcurrentAudits,
	}
}

type accessibilityService struct {
	stager   storage.Stager
	launcher browser.Launcher
	analyzer analyzer.Analyzer
	opts     Options
	limiter  *semaphore.Weighted
	tracer   trace.Tracer
	logger   *utils.Logger
}

func NewService(stager storage.Stager, launcher browser.Launcher, engine analyzer.Analyzer, opts Options, logger *utils.Logger) AccessibilityService {
	var limiter *semaphore.Weighted
	if opts.MaxConcurrent > 0 {
		limiter = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}

	return &accessibilityService{
		stager:   stager,
		launcher: launcher,
		analyzer: engine,
		opts:     opts,
		limiter:  limiter,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}
}

// CheckAccessibility stages the upload, renders it in a fresh browser and
// runs the rule engine. Staged state is always removed before returning.
func (s *accessibilityService) CheckAccessibility(ctx context.Context, upload *models.Upload) (*models.AuditResult, error) {
	if upload == nil || len(upload.Content) == 0 || strings.TrimSpace(upload.Name) == "" {
		return nil, utils.NewBadRequestError(MsgMissingInput)
	}
	if !extractor.HasPDFHeader(upload.Content) {
		return nil, utils.NewBadRequestError(MsgNotPDF)
	}

	if s.limiter != nil {
		if !s.limiter.TryAcquire(1) {
			s.logger.Warn("Rejecting accessibility check, concurrency limit reached", "limit", s.opts.MaxConcurrent)
			return nil, utils.NewTooManyRequestsError(MsgBusy)
		}
		defer s.limiter.Release(1)
	}

	// Once started, a check runs to completion or to one of its own bounds,
	// even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	requestID := utils.GenerateID()
	ctx, span := s.tracer.Start(ctx, "accessibility.check", trace.WithAttributes(
		attribute.String("audit.request_id", requestID),
		attribute.String("audit.file_name", upload.Name),
		attribute.Int("audit.file_size", len(upload.Content)),
	))
	defer span.End()

	run := &auditRun{
		service: s,
		upload:  upload,
		logger:  s.logger.With("request_id", requestID, "filename", upload.Name),
		state:   StateIdle,
	}
	defer run.cleanup(ctx)

	start := time.Now()
	result, err := run.execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		run.logFailure(err)
		return nil, err
	}

	result.RequestID = requestID
	result.Duration = time.Since(start)

	run.logger.Info("Accessibility analysis completed",
		"violations", result.Summary.ViolationCount(),
		"pages", result.PageCount,
		"duration", result.Duration.String())

	return result, nil
}

// State tracks how far a single check got.
type State string

const (
	StateIdle             State = "idle"
	StateStaged           State = "staged"
	StateSessionOpen      State = "session_open"
	StateNavigated        State = "navigated"
	StateApplicationReady State = "application_ready"
	StateRendered         State = "rendered"
	StateAnalyzed         State = "analyzed"
	StateFailed           State = "failed"
	StateCleaned          State = "cleaned"
)

type auditRun struct {
	service *accessibilityService
	upload  *models.Upload
	logger  *utils.Logger
	state   State

	staged  *storage.StagedFile
	session browser.Session
}

func (r *auditRun) execute(ctx context.Context) (*models.AuditResult, error) {
	s := r.service
	result := &models.AuditResult{}

	if info, err := extractor.InspectPDF(r.upload.Content); err != nil {
		r.logger.Warn("Could not read PDF structure, continuing", "error", err)
	} else {
		result.PageCount = info.PageCount
		r.logger.Info("Inspected PDF", "version", info.Version, "pages", info.PageCount, "has_text", info.HasText)
		if !info.HasText {
			r.logger.Warn("PDF has no extractable text, it may be a scan without a text layer")
		}
	}

	steps := []struct {
		step Step
		next State
		run  func(ctx context.Context) error
	}{
		{StepStage, StateStaged, r.stage},
		{StepSession, StateSessionOpen, r.openSession},
		{StepNavigate, StateNavigated, r.navigate},
		{StepReadiness, StateApplicationReady, func(ctx context.Context) error {
			viewer, err := r.awaitReadiness(ctx)
			result.Viewer = viewer
			return err
		}},
		{StepRender, StateRendered, r.awaitRender},
		{StepAnalyze, StateAnalyzed, func(ctx context.Context) error {
			raw, err := r.analyze(ctx)
			if err != nil {
				return err
			}
			result.Results = raw
			summary, err := analyzer.Summarize(raw)
			if err != nil {
				r.logger.Warn("Could not summarize analysis results", "error", err)
				return nil
			}
			result.Summary = summary
			return nil
		}},
	}

	for _, st := range steps {
		stepCtx, span := s.tracer.Start(ctx, "accessibility."+string(st.step))
		err := st.run(stepCtx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			r.state = StateFailed
			return nil, err
		}
		span.End()
		r.state = st.next
		r.logger.Debug("Step completed", "step", st.step, "state", r.state)
	}

	return result, nil
}

func (r *auditRun) stage(ctx context.Context) error {
	r.logger.Info("Writing PDF to staging", "step", StepStage, "size", len(r.upload.Content))

	staged, err := r.service.stager.Stage(ctx, r.upload.Name, r.upload.Content)
	if err != nil {
		return stepFailure(StepStage, ErrStaging, err)
	}
	r.staged = staged

	r.logger.Info("Staged PDF", "step", StepStage, "staged_name", staged.Name, "staged_url", staged.URL)
	return nil
}

func (r *auditRun) openSession(ctx context.Context) error {
	r.logger.Info("Launching browser", "step", StepSession)

	ctx, cancel := withOptionalTimeout(ctx, r.service.opts.LaunchTimeout)
	defer cancel()

	session, err := r.service.launcher.Launch(ctx)
	if err != nil {
		return stepFailure(StepSession, ErrSession, err)
	}
	r.session = session
	return nil
}

func (r *auditRun) navigate(ctx context.Context) error {
	viewerURL, err := buildViewerURL(r.service.opts.ViewerURL, r.staged.URL)
	if err != nil {
		return stepFailure(StepNavigate, ErrNavigation, err)
	}

	r.logger.Info("Loading PDF viewer", "step", StepNavigate, "viewer_url", viewerURL)

	ctx, cancel := withOptionalTimeout(ctx, r.service.opts.NavigationTimeout)
	defer cancel()

	status, err := r.session.Navigate(ctx, viewerURL)
	if err != nil {
		return stepFailure(StepNavigate, ErrNavigation, fmt.Errorf("failed to load viewer URL %s: %w", viewerURL, err))
	}
	if status == 0 {
		return stepFailure(StepNavigate, ErrNavigation, fmt.Errorf("failed to load viewer URL %s (status: no response)", viewerURL))
	}
	if status < 200 || status > 299 {
		return stepFailure(StepNavigate, ErrNavigation, fmt.Errorf("failed to load viewer URL %s (status: %d)", viewerURL, status))
	}
	return nil
}

// awaitReadiness polls the viewer's initialized flag. It stops at the first
// true answer, makes at most ReadinessAttempts evaluations and never runs
// past readinessBudget, even when evaluations hang.
func (r *auditRun) awaitReadiness(ctx context.Context) (*models.ViewerState, error) {
	opts := r.service.opts
	budget := readinessBudget(opts.ReadinessAttempts, opts.ReadinessInterval)
	r.logger.Info("Waiting for PDFViewerApplication", "step", StepReadiness,
		"attempts", opts.ReadinessAttempts, "interval", opts.ReadinessInterval.String(), "budget", budget.String())

	pollCtx, cancelPoll := context.WithTimeout(ctx, budget)
	defer cancelPoll()

	start := time.Now()
	var lastErr error
	ready := false
	attempts := 0

	timer := time.NewTimer(opts.ReadinessInterval)
	defer timer.Stop()

poll:
	for attempts < opts.ReadinessAttempts {
		attempts++

		var initialized bool
		evalCtx, cancel := context.WithTimeout(pollCtx, readinessEvalTimeout(opts.ReadinessInterval))
		err := r.session.Evaluate(evalCtx, readinessExpression, &initialized)
		cancel()

		if err == nil && initialized {
			ready = true
			r.logger.Info("PDFViewerApplication ready", "step", StepReadiness,
				"attempt", attempts, "waited", time.Since(start).String())
			break
		}
		lastErr = err

		if attempts == opts.ReadinessAttempts || pollCtx.Err() != nil {
			break
		}
		timer.Reset(opts.ReadinessInterval)
		select {
		case <-timer.C:
		case <-pollCtx.Done():
			break poll
		}
	}

	if !ready {
		cause := fmt.Errorf("PDFViewerApplication did not initialize after %d of %d attempts (%s)",
			attempts, opts.ReadinessAttempts, time.Since(start).Round(time.Millisecond))
		if lastErr != nil {
			cause = fmt.Errorf("%w: last evaluation error: %v", cause, lastErr)
		}
		return nil, stepFailure(StepReadiness, ErrReadinessTimeout, cause)
	}

	var viewer models.ViewerState
	stateCtx, cancel := context.WithTimeout(ctx, snippetTimeout)
	defer cancel()
	if err := r.session.Evaluate(stateCtx, viewerStateExpression, &viewer); err != nil {
		r.logger.Warn("Could not read viewer state", "step", StepReadiness, "error", err)
		return nil, nil
	}

	r.logger.Info("PDF.js state after loading", "step", StepReadiness,
		"initialized", viewer.Initialized,
		"num_pages", viewer.NumPages,
		"is_loading", viewer.IsLoading,
		"is_document_loaded", viewer.IsDocumentLoaded,
		"viewer_file", viewer.FileName)

	return &viewer, nil
}

func (r *auditRun) awaitRender(ctx context.Context) error {
	opts := r.service.opts
	r.logger.Info("Waiting for PDF to render", "step", StepRender,
		"selector", opts.RenderSelector, "timeout", opts.RenderTimeout.String())

	waitCtx, cancel := context.WithTimeout(ctx, opts.RenderTimeout)
	defer cancel()

	err := r.session.WaitReady(waitCtx, opts.RenderSelector)
	if err == nil {
		return nil
	}

	stepErr := &StepError{
		Step:    StepRender,
		Kind:    ErrRenderTimeout,
		Err:     err,
		Snippet: r.pageSnippet(ctx),
	}
	return pkgerrors.WithStack(stepErr)
}

// pageSnippet returns the first SnippetLimit characters of the page HTML, or a
// short note when the page could not be serialized.
func (r *auditRun) pageSnippet(ctx context.Context) string {
	limit := r.service.opts.SnippetLimit

	htmlCtx, cancel := context.WithTimeout(ctx, snippetTimeout)
	defer cancel()

	html, err := r.session.HTML(htmlCtx)
	if err != nil {
		return utils.TruncateRunes(fmt.Sprintf("<page HTML unavailable: %v>", err), limit)
	}
	if html == "" {
		return utils.TruncateRunes("<empty page>", limit)
	}
	return utils.TruncateRunes(html, limit)
}

func (r *auditRun) analyze(ctx context.Context) (json.RawMessage, error) {
	r.logger.Info("Running accessibility analysis", "step", StepAnalyze)

	ctx, cancel := withOptionalTimeout(ctx, r.service.opts.AnalysisTimeout)
	defer cancel()

	raw, err := r.service.analyzer.Analyze(ctx, r.session)
	if err != nil {
		return nil, stepFailure(StepAnalyze, ErrAnalysis, err)
	}
	return raw, nil
}

// cleanup closes the session and removes the staged file. Failures are
// logged only; they never replace the outcome of the check.
func (r *auditRun) cleanup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	r.logger.Info("Cleaning up", "state", r.state)

	if r.session != nil {
		if err := r.session.Close(); err != nil {
			r.logger.Warn("Failed to close browser session", "error", err)
		}
	}

	if r.staged != nil {
		exists, err := r.service.stager.Exists(ctx, r.staged)
		switch {
		case err != nil:
			r.logger.Warn("Could not check staged file", "error", err, "staged_name", r.staged.Name)
		case !exists:
			r.logger.Warn("Staged file already removed", "staged_name", r.staged.Name)
		}

		if err != nil || exists {
			if err := r.service.stager.Remove(ctx, r.staged); err != nil {
				r.logger.Warn("Failed to remove staged file", "error", err, "staged_name", r.staged.Name)
			}
		}
	}

	r.state = StateCleaned
}

func (r *auditRun) logFailure(err error) {
	args := []any{"error", err.Error(), "state", r.state, "trace", fmt.Sprintf("%+v", err)}

	var stepErr *StepError
	if errors.As(err, &stepErr) {
		args = append(args, "step", stepErr.Step)
		if stepErr.Snippet != "" {
			args = append(args, "html", stepErr.Snippet)
		}
	}

	r.logger.Error("Error processing PDF", args...)
}

// buildViewerURL appends the staged file reference as the viewer's file
// parameter.
func buildViewerURL(viewerURL, fileURL string) (string, error) {
	u, err := url.Parse(viewerURL)
	if err != nil {
		return "", fmt.Errorf("invalid viewer URL %q: %w", viewerURL, err)
	}

	q := u.Query()
	q.Set("file", fileURL)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// readinessBudget is the total time the readiness poll may take: the
// attempts spaced by interval, plus one interval or 250ms of slack.
func readinessBudget(attempts int, interval time.Duration) time.Duration {
	slack := interval
	if slack < 250*time.Millisecond {
		slack = 250 * time.Millisecond
	}
	return time.Duration(attempts)*interval + slack
}

// readinessEvalTimeout bounds a single poll. The poll budget caps it further.
func readinessEvalTimeout(interval time.Duration) time.Duration {
	if d := 10 * interval; d > time.Second {
		return d
	}
	return time.Second
}
