package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/pkg/errors"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/models"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/services"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/utils"
)

type fakeService struct {
	fn      func(ctx context.Context, upload *models.Upload) (*models.AuditResult, error)
	uploads []*models.Upload
}

func (s *fakeService) CheckAccessibility(ctx context.Context, upload *models.Upload) (*models.AuditResult, error) {
	s.uploads = append(s.uploads, upload)
	if s.fn == nil {
		return &models.AuditResult{Results: json.RawMessage(`{"violations":[]}`)}, nil
	}
	return s.fn(ctx, upload)
}

func newTestHandler(svc *fakeService, opts Options) *AccessibilityHandler {
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return NewAccessibilityHandler(svc, opts, utils.NewDiscardLogger())
}

func requestBody(t *testing.T, content []byte, name string) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(models.AuditRequest{
		FileContent: base64.StdEncoding.EncodeToString(content),
		FileName:    name,
	})
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCheckAccessibilitySuccess(t *testing.T) {
	svc := &fakeService{}
	h := newTestHandler(svc, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/checkAccessibility", requestBody(t, []byte("%PDF-1.4"), "a.pdf"))
	rec := httptest.NewRecorder()
	h.CheckAccessibility(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"results":{"violations":[]}}`, rec.Body.String())

	require.Len(t, svc.uploads, 1)
	assert.Equal(t, []byte("%PDF-1.4"), svc.uploads[0].Content)
	assert.Equal(t, "a.pdf", svc.uploads[0].Name)
}

func TestCheckAccessibilityRejectsOtherMethods(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			svc := &fakeService{}
			h := newTestHandler(svc, Options{})

			rec := httptest.NewRecorder()
			h.CheckAccessibility(rec, httptest.NewRequest(method, "/api/checkAccessibility", nil))

			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, MsgMethodNotAllowed, decodeError(t, rec).Error)
			assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
			assert.Empty(t, svc.uploads)
		})
	}
}

func TestCheckAccessibilityRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"not json", "nope", MsgInvalidBody},
		{"missing content", `{"fileName":"a.pdf"}`, services.MsgMissingInput},
		{"missing name", `{"fileContent":"JVBERi0xLjQ="}`, services.MsgMissingInput},
		{"empty object", `{}`, services.MsgMissingInput},
		{"bad base64", `{"fileContent":"%%%","fileName":"a.pdf"}`, MsgInvalidBase64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			h := newTestHandler(svc, Options{})

			rec := httptest.NewRecorder()
			h.CheckAccessibility(rec, httptest.NewRequest(http.MethodPost, "/api/checkAccessibility", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec).Error)
			assert.Empty(t, svc.uploads)
		})
	}
}

func TestCheckAccessibilityRejectsLargeBodies(t *testing.T) {
	svc := &fakeService{}
	h := newTestHandler(svc, Options{MaxBodyBytes: 64})

	body := requestBody(t, bytes.Repeat([]byte("x"), 512), "a.pdf")
	req := httptest.NewRequest(http.MethodPost, "/api/checkAccessibility", body)
	rec := httptest.NewRecorder()
	h.CheckAccessibility(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, svc.uploads)

	// Same, without a declared length.
	req = httptest.NewRequest(http.MethodPost, "/api/checkAccessibility", requestBody(t, bytes.Repeat([]byte("x"), 512), "a.pdf"))
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	h.CheckAccessibility(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, svc.uploads)
}

func TestCheckAccessibilityMapsServiceErrors(t *testing.T) {
	stepErr := pkgerrors.WithStack(&services.StepError{
		Step: services.StepReadiness,
		Kind: services.ErrReadinessTimeout,
		Err:  errors.New("PDFViewerApplication did not initialize after 100 attempts"),
	})

	tests := []struct {
		name   string
		err    error
		status int
		error  string
		step   string
	}{
		{"bad request", utils.NewBadRequestError("nope"), http.StatusBadRequest, "nope", ""},
		{"busy", utils.NewTooManyRequestsError(services.MsgBusy), http.StatusTooManyRequests, services.MsgBusy, ""},
		{"step failure", stepErr, http.StatusInternalServerError, MsgProcessingFailed, "readiness"},
		{"unexpected", errors.New("kaboom"), http.StatusInternalServerError, MsgProcessingFailed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{fn: func(context.Context, *models.Upload) (*models.AuditResult, error) {
				return nil, tt.err
			}}
			h := newTestHandler(svc, Options{})

			rec := httptest.NewRecorder()
			h.CheckAccessibility(rec, httptest.NewRequest(http.MethodPost, "/api/checkAccessibility", requestBody(t, []byte("%PDF-1.4"), "a.pdf")))

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.error, resp.Error)
			assert.Equal(t, tt.step, resp.Step)
			assert.Empty(t, resp.Trace)
		})
	}
}

func TestCheckAccessibilityExposesTraceWhenEnabled(t *testing.T) {
	svc := &fakeService{fn: func(context.Context, *models.Upload) (*models.AuditResult, error) {
		return nil, pkgerrors.WithStack(&services.StepError{Step: services.StepRender, Kind: services.ErrRenderTimeout})
	}}
	h := newTestHandler(svc, Options{ExposeErrorTrace: true})

	rec := httptest.NewRecorder()
	h.CheckAccessibility(rec, httptest.NewRequest(http.MethodPost, "/api/checkAccessibility", requestBody(t, []byte("%PDF-1.4"), "a.pdf")))

	resp := decodeError(t, rec)
	assert.Equal(t, "render", resp.Step)
	assert.Contains(t, resp.Details, services.ErrRenderTimeout.Error())
	assert.Contains(t, resp.Trace, "TestCheckAccessibilityExposesTraceWhenEnabled")
}
