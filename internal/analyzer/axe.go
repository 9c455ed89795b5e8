package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/browser"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/models"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/utils"
)

const axeLoadedExpression = `typeof window.axe !== 'undefined' && typeof window.axe.run === 'function'`

// ErrAxeNotLoaded is returned when the injected source did not define axe.run.
var ErrAxeNotLoaded = errors.New("axe-core did not load in the page")

// Analyzer runs accessibility rules against a loaded page. The returned JSON
// is the engine's own result object.
type Analyzer interface {
	Analyze(ctx context.Context, page browser.Session) (json.RawMessage, error)
}

type axeAnalyzer struct {
	source string
	tags   []string
	logger *utils.Logger
}

func NewAxeAnalyzer(source string, tags []string, logger *utils.Logger) Analyzer {
	return &axeAnalyzer{
		source: source,
		tags:   append([]string(nil), tags...),
		logger: logger,
	}
}

// LoadAxeSource reads the axe-core bundle (axe.min.js) from disk.
func LoadAxeSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read axe-core script: %w", err)
	}

	source := string(data)
	if !strings.Contains(source, "axe") {
		return "", fmt.Errorf("%s does not look like an axe-core bundle", path)
	}

	return source, nil
}

func (a *axeAnalyzer) Analyze(ctx context.Context, page browser.Session) (json.RawMessage, error) {
	if err := page.Inject(ctx, a.source); err != nil {
		return nil, fmt.Errorf("failed to inject axe-core: %w", err)
	}

	var loaded bool
	if err := page.Evaluate(ctx, axeLoadedExpression, &loaded); err != nil {
		return nil, fmt.Errorf("failed to check axe-core: %w", err)
	}
	if !loaded {
		return nil, ErrAxeNotLoaded
	}

	expression, err := RunExpression(a.tags)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Running axe-core", "tags", a.tags)

	var payload string
	if err := page.EvaluateAsync(ctx, expression, &payload); err != nil {
		return nil, fmt.Errorf("axe-core run failed: %w", err)
	}

	if payload == "" {
		return nil, fmt.Errorf("axe-core returned no results")
	}
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("axe-core returned malformed results")
	}

	return json.RawMessage(payload), nil
}

// RunExpression builds the in-page call restricting axe-core to tags. The
// results are stringified in the page so they cross the protocol as one value.
func RunExpression(tags []string) (string, error) {
	options := map[string]any{
		"runOnly": map[string]any{
			"type":   "tag",
			"values": tags,
		},
	}

	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("failed to marshal axe options: %w", err)
	}

	return fmt.Sprintf(`window.axe.run(document, %s).then(function (results) { return JSON.stringify(results); })`, optionsJSON), nil
}

// Summarize decodes the parts of an axe-core result used for logs and reports.
func Summarize(raw json.RawMessage) (*models.ResultSummary, error) {
	var summary models.ResultSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode axe results: %w", err)
	}
	return &summary, nil
}
