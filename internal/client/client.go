// Package client talks to a running checker service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/analyzer"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/models"
)

const CheckPath = "/api/v1/accessibility/check"

// ErrNoResults means the service answered 200 without a results object.
var ErrNoResults = errors.New("response contained no results")

// APIError is a non-200 answer from the service.
type APIError struct {
	StatusCode int
	Response   models.ErrorResponse
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Response.Error)
	if e.Response.Step != "" {
		msg += " (step " + e.Response.Step + ")"
	}
	if e.Response.Details != "" {
		msg += ": " + e.Response.Details
	}
	return msg
}

type Result struct {
	Raw     json.RawMessage
	Summary *models.ResultSummary
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Check uploads a PDF and returns the service's results.
func (c *Client) Check(ctx context.Context, fileName string, content []byte) (*Result, error) {
	body, err := json.Marshal(models.AuditRequest{
		FileContent: base64.StdEncoding.EncodeToString(content),
		FileName:    fileName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+CheckPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, &apiErr.Response); err != nil || apiErr.Response.Error == "" {
			apiErr.Response.Error = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}

	var decoded models.AuditResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("invalid response body: %w", err)
	}
	if results := bytes.TrimSpace(decoded.Results); len(results) == 0 || bytes.Equal(results, []byte("null")) {
		return nil, ErrNoResults
	}

	summary, err := analyzer.Summarize(decoded.Results)
	if err != nil {
		return nil, err
	}

	return &Result{Raw: decoded.Results, Summary: summary}, nil
}
