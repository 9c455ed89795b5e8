package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/models"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/services"
	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/utils"
)

const (
	MsgMethodNotAllowed = "Method not allowed. Use POST."
	MsgInvalidBody      = "Request body must be a JSON object with fileContent and fileName."
	MsgInvalidBase64    = "fileContent must be base64 encoded."
	MsgProcessingFailed = "Failed to process PDF."
)

type Options struct {
	MaxBodyBytes int64
	// ExposeErrorTrace adds the stack trace of workflow failures to responses.
	ExposeErrorTrace bool
}

type AccessibilityHandler struct {
	service  services.AccessibilityService
	opts     Options
	validate *validator.Validate
	logger   *utils.Logger
}

func NewAccessibilityHandler(service services.AccessibilityService, opts Options, logger *utils.Logger) *AccessibilityHandler {
	return &AccessibilityHandler{
		service:  service,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// CheckAccessibility accepts {"fileContent": <base64>, "fileName": <name>} and
// answers with the rule engine's results.
func (h *AccessibilityHandler) CheckAccessibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.respondError(w, utils.NewMethodNotAllowedError(MsgMethodNotAllowed))
		return
	}

	upload, err := h.decodeUpload(w, r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.logger.Info("Accessibility check requested", "filename", upload.Name, "size", len(upload.Content))

	result, err := h.service.CheckAccessibility(r.Context(), upload)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, models.AuditResponse{Results: result.Results})
}

func (h *AccessibilityHandler) decodeUpload(w http.ResponseWriter, r *http.Request) (*models.Upload, error) {
	if h.opts.MaxBodyBytes > 0 {
		if r.ContentLength > h.opts.MaxBodyBytes {
			return nil, tooLarge(h.opts.MaxBodyBytes)
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	}

	var req models.AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, tooLarge(maxErr.Limit)
		}
		return nil, utils.NewBadRequestError(MsgInvalidBody)
	}

	if err := h.validate.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "base64" {
					return nil, utils.NewBadRequestError(MsgInvalidBase64)
				}
			}
		}
		return nil, utils.NewBadRequestError(services.MsgMissingInput)
	}

	content, err := base64.StdEncoding.DecodeString(req.FileContent)
	if err != nil {
		return nil, utils.NewBadRequestError(MsgInvalidBase64)
	}

	return &models.Upload{Content: content, Name: req.FileName}, nil
}

func tooLarge(limit int64) error {
	return utils.NewPayloadTooLargeError(fmt.Sprintf("Request body exceeds %d bytes.", limit))
}

func (h *AccessibilityHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *AccessibilityHandler) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := models.ErrorResponse{Error: MsgProcessingFailed}

	if appErr, ok := utils.AsAppError(err); ok {
		status = appErr.StatusCode
		resp.Error = appErr.Message
	} else {
		resp.Details = err.Error()
		if stepErr, ok := services.AsStepError(err); ok {
			resp.Step = string(stepErr.Step)
		}
		if h.opts.ExposeErrorTrace {
			resp.Trace = fmt.Sprintf("%+v", err)
		}
	}

	h.logger.Warn("Request error", "status", status, "error", resp.Error, "step", resp.Step)

	h.respondJSON(w, status, resp)
}
