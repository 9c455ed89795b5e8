package models

import (
	"encoding/json"
	"time"
)

// AuditRequest is the JSON body accepted by the check endpoint.
type AuditRequest struct {
	FileContent string `json:"fileContent" validate:"required,base64"`
	FileName    string `json:"fileName" validate:"required"`
}

// Upload is a decoded AuditRequest.
type Upload struct {
	Content []byte
	Name    string
}

type AuditResponse struct {
	Results json.RawMessage `json:"results"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Step    string `json:"step,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// AuditResult is what one workflow run produces. Results is the rule engine's
// output, untouched.
type AuditResult struct {
	RequestID string
	Results   json.RawMessage
	Summary   *ResultSummary
	Viewer    *ViewerState
	PageCount int
	Duration  time.Duration
}

// ViewerState mirrors the fields read from PDFViewerApplication once it is ready.
type ViewerState struct {
	Initialized      bool    `json:"initialized"`
	NumPages         int     `json:"numPages"`
	IsLoading        *bool   `json:"isLoading"`
	IsDocumentLoaded bool    `json:"isDocumentLoaded"`
	FileName         *string `json:"fileName"`
}

// ResultSummary is a decoded subset of axe-core results.
type ResultSummary struct {
	URL        string      `json:"url"`
	Timestamp  string      `json:"timestamp"`
	Violations []Violation `json:"violations"`
	Passes     []Violation `json:"passes"`
	Incomplete []Violation `json:"incomplete"`
}

type Violation struct {
	ID          string     `json:"id"`
	Impact      string     `json:"impact"`
	Description string     `json:"description"`
	Help        string     `json:"help"`
	HelpURL     string     `json:"helpUrl"`
	Tags        []string   `json:"tags"`
	Nodes       []RuleNode `json:"nodes"`
}

type RuleNode struct {
	HTML           string `json:"html"`
	Target         []any  `json:"target"`
	FailureSummary string `json:"failureSummary,omitempty"`
	Impact         string `json:"impact,omitempty"`
}

// ViolationCount returns the number of failing rules.
func (s *ResultSummary) ViolationCount() int {
	if s == nil {
		return 0
	}
	return len(s.Violations)
}

// HasViolation reports whether ruleID is among the violations.
func (s *ResultSummary) HasViolation(ruleID string) bool {
	if s == nil {
		return false
	}
	for _, v := range s.Violations {
		if v.ID == ruleID {
			return true
		}
	}
	return false
}
