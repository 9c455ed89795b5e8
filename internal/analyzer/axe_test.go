package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/browser/browsertest"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/utils"
)

const sampleResults = `{
  "url": "http://localhost:8080/pdf-viewer/web/viewer.html?file=x.pdf",
  "timestamp": "2024-05-01T10:00:00.000Z",
  "violations": [
    {
      "id": "image-alt",
      "impact": "critical",
      "description": "Ensures <img> elements have alternate text",
      "help": "Images must have alternate text",
      "helpUrl": "https://dequeuniversity.com/rules/axe/4.9/image-alt",
      "tags": ["cat.text-alternatives", "wcag2a", "wcag111"],
      "nodes": [{"html": "<img src=\"a.png\">", "target": ["img"], "failureSummary": "Fix any of the following"}]
    }
  ],
  "passes": [],
  "incomplete": [],
  "inapplicable": []
}`

func TestRunExpressionRestrictsTags(t *testing.T) {
	expr, err := RunExpression([]string{"wcag2a", "best-practice"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(expr, "window.axe.run(document, "))
	assert.Contains(t, expr, `"runOnly":{"type":"tag","values":["wcag2a","best-practice"]}`)
	assert.Contains(t, expr, "JSON.stringify(results)")
}

func TestAnalyzeReturnsRawResults(t *testing.T) {
	session := browsertest.NewSession()
	session.EvaluateFunc = func(expr string) (any, error) {
		if expr == axeLoadedExpression {
			return true, nil
		}
		return nil, errors.New("unexpected expression")
	}
	session.EvaluateAsyncFunc = func(string) (any, error) {
		return sampleResults, nil
	}

	a := NewAxeAnalyzer("/* axe */", []string{"wcag2a"}, utils.NewDiscardLogger())
	raw, err := a.Analyze(context.Background(), session)
	require.NoError(t, err)

	assert.JSONEq(t, sampleResults, string(raw))
	assert.Equal(t, 1, session.Injected())
}

func TestAnalyzeFailsWhenAxeMissing(t *testing.T) {
	session := browsertest.NewSession()
	session.EvaluateFunc = func(string) (any, error) { return false, nil }

	a := NewAxeAnalyzer("/* not axe */", []string{"wcag2a"}, utils.NewDiscardLogger())
	_, err := a.Analyze(context.Background(), session)

	assert.ErrorIs(t, err, ErrAxeNotLoaded)
}

func TestAnalyzePropagatesEngineErrors(t *testing.T) {
	boom := errors.New("axe exploded")

	tests := map[string]func(*browsertest.Session){
		"inject": func(s *browsertest.Session) {
			s.InjectFunc = func(string) error { return boom }
		},
		"run": func(s *browsertest.Session) {
			s.EvaluateFunc = func(string) (any, error) { return true, nil }
			s.EvaluateAsyncFunc = func(string) (any, error) { return nil, boom }
		},
	}

	for name, setup := range tests {
		t.Run(name, func(t *testing.T) {
			session := browsertest.NewSession()
			setup(session)

			a := NewAxeAnalyzer("axe", []string{"wcag2a"}, utils.NewDiscardLogger())
			_, err := a.Analyze(context.Background(), session)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestAnalyzeRejectsMalformedResults(t *testing.T) {
	session := browsertest.NewSession()
	session.EvaluateFunc = func(string) (any, error) { return true, nil }
	session.EvaluateAsyncFunc = func(string) (any, error) { return "{not json", nil }

	a := NewAxeAnalyzer("axe", []string{"wcag2a"}, utils.NewDiscardLogger())
	_, err := a.Analyze(context.Background(), session)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	summary, err := Summarize(json.RawMessage(sampleResults))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ViolationCount())
	assert.True(t, summary.HasViolation("image-alt"))
	assert.False(t, summary.HasViolation("color-contrast"))
	assert.Equal(t, "critical", summary.Violations[0].Impact)
	assert.Len(t, summary.Violations[0].Nodes, 1)

	_, err = Summarize(json.RawMessage(`[]`))
	assert.Error(t, err)
}

func TestLoadAxeSource(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "axe.min.js")
	require.NoError(t, os.WriteFile(good, []byte("/*! axe v4.9.1 */ window.axe = {};"), 0o644))
	source, err := LoadAxeSource(good)
	require.NoError(t, err)
	assert.Contains(t, source, "window.axe")

	bad := filepath.Join(dir, "other.js")
	require.NoError(t, os.WriteFile(bad, []byte("console.log(1)"), 0o644))
	_, err = LoadAxeSource(bad)
	assert.Error(t, err)

	_, err = LoadAxeSource(filepath.Join(dir, "missing.js"))
	assert.Error(t, err)
}
