package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	auditdomain "github.com/smallbiznis/estate/internal/audit/domain"
	"github.com/smallbiznis/estate/internal/authorization"
	exchangeratedomain "github.com/smallbiznis/estate/internal/exchangerate/domain"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	pricingdomain "github.com/smallbiznis/estate/internal/pricing/domain"
	refdomain "github.com/smallbiznis/estate/internal/reference/domain"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	workflowdomain "github.com/smallbiznis/estate/internal/workflow/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

const (
	errorTypeValidation   = "validation_error"
	errorTypeUnauthorized = "unauthorized"
	errorTypeForbidden    = "forbidden"
	errorTypeNotFound     = "not_found"
	errorTypeConflict     = "conflict"
	errorTypeRateLimited  = "rate_limited"
	errorTypeUpstream     = "upstream_unavailable"
	errorTypeInternal     = "internal_error"
)

var errorStatus = map[string]int{
	errorTypeValidation:   http.StatusBadRequest,
	errorTypeUnauthorized: http.StatusUnauthorized,
	errorTypeForbidden:    http.StatusForbidden,
	errorTypeNotFound:     http.StatusNotFound,
	errorTypeConflict:     http.StatusConflict,
	errorTypeRateLimited:  http.StatusTooManyRequests,
	errorTypeUpstream:     http.StatusServiceUnavailable,
	errorTypeInternal:     http.StatusInternalServerError,
}

// errorKinds is matched in order with errors.Is; the matched sentinel's text
// becomes the public error code.
var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidRequest, errorTypeValidation},
	{refdomain.ErrUnsupportedCountry, errorTypeValidation},
	{refdomain.ErrUnsupportedCurrency, errorTypeValidation},
	{pricingdomain.ErrInvalidPrice, errorTypeValidation},
	{pricingdomain.ErrInvalidOrder, errorTypeValidation},
	{pricingdomain.ErrInvalidPlan, errorTypeValidation},
	{pricingdomain.ErrInvalidAmount, errorTypeValidation},
	{taxdomain.ErrInvalidRate, errorTypeValidation},
	{taxdomain.ErrInvalidAmount, errorTypeValidation},
	{invoicedomain.ErrInvalidAmount, errorTypeValidation},
	{invoicedomain.ErrInvalidInvoice, errorTypeValidation},
	{invoicedomain.ErrInvalidInvoiceID, errorTypeValidation},
	{invoicedomain.ErrCurrencyMismatch, errorTypeValidation},
	{invoicedomain.ErrInvalidPaymentRef, errorTypeValidation},
	{workflowdomain.ErrInvalidWorkflow, errorTypeValidation},
	{workflowdomain.ErrInvalidWorkflowID, errorTypeValidation},
	{workflowdomain.ErrInvalidStatus, errorTypeValidation},
	{workflowdomain.ErrInvalidReviewAction, errorTypeValidation},
	{auditdomain.ErrInvalidPageToken, errorTypeValidation},
	{auditdomain.ErrInvalidTimeRange, errorTypeValidation},

	{ErrUnauthorized, errorTypeUnauthorized},
	{authorization.ErrInvalidActor, errorTypeUnauthorized},

	{ErrForbidden, errorTypeForbidden},
	{authorization.ErrForbidden, errorTypeForbidden},

	{ErrNotFound, errorTypeNotFound},
	{pricingdomain.ErrPlanNotFound, errorTypeNotFound},
	{taxdomain.ErrNotFound, errorTypeNotFound},
	{invoicedomain.ErrInvoiceNotFound, errorTypeNotFound},
	{workflowdomain.ErrWorkflowNotFound, errorTypeNotFound},
	{gorm.ErrRecordNotFound, errorTypeNotFound},

	{ErrConflict, errorTypeConflict},
	{pricingdomain.ErrPlanCodeTaken, errorTypeConflict},
	{invoicedomain.ErrInvoiceNotPayable, errorTypeConflict},
	{invoicedomain.ErrInvoiceNumberConflict, errorTypeConflict},
	{workflowdomain.ErrAlreadyExists, errorTypeConflict},
	{workflowdomain.ErrInvalidTransition, errorTypeConflict},
	{workflowdomain.ErrAlreadyLinked, errorTypeConflict},
	{workflowdomain.ErrInvoiceMismatch, errorTypeConflict},
	{workflowdomain.ErrConcurrentUpdate, errorTypeConflict},
	{workflowdomain.ErrInvoiceRequired, errorTypeConflict},
	{workflowdomain.ErrInvoiceUnpaid, errorTypeConflict},

	{ErrRateLimited, errorTypeRateLimited},

	{ErrServiceUnavailable, errorTypeUpstream},
	{exchangeratedomain.ErrUpstreamUnavailable, errorTypeUpstream},
	{exchangeratedomain.ErrRateUnavailable, errorTypeUpstream},
	{exchangeratedomain.ErrEmptySnapshot, errorTypeUpstream},
}

// ErrorHandlingMiddleware renders the last handler error as a localized JSON
// body. Internal detail stays in the request log.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		payload = localizePayload(payload, c.GetHeader("Accept-Language"))
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// bindingError converts validator failures into field errors.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidRequestError()
	}
	out := &ValidationErrors{}
	for _, fe := range verrs {
		field := fe.Field()
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Code:    "invalid_" + field,
			Message: validationTagMessage(fe.Tag()),
		})
	}
	return out
}

func validationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "iso_country":
		return "must be a supported country code"
	case "iso_currency":
		return "must be a supported currency code"
	case "gt", "gte", "min":
		return "is too small"
	case "lte", "max":
		return "is too large"
	case "oneof":
		return "is not an allowed value"
	default:
		return "invalid value"
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    errorTypeInternal,
			Code:    errorTypeInternal,
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    errorTypeValidation,
			Code:    "invalid_request",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	kind, code := classifyError(err)
	payload := errorPayload{Type: kind, Code: code, Message: strings.ReplaceAll(code, "_", " ")}
	if kind == errorTypeValidation {
		payload.Errors = []ValidationError{{
			Field:   validationErrorField(code),
			Code:    code,
			Message: "invalid value",
		}}
	}
	return errorStatus[kind], payload
}

func classifyError(err error) (string, string) {
	for _, item := range errorKinds {
		if errors.Is(err, item.err) {
			return item.kind, item.err.Error()
		}
	}
	return errorTypeInternal, errorTypeInternal
}

// classifyErrorForLog feeds the request logger's error_type and error_code.
func classifyErrorForLog(err error) (string, string) {
	if asValidationErrors(err) != nil {
		return errorTypeValidation, "invalid_request"
	}
	return classifyError(err)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	switch {
	case code == "invalid_request":
		return "request"
	case strings.HasPrefix(code, "unsupported_"):
		return strings.TrimPrefix(code, "unsupported_")
	case strings.HasPrefix(code, "invalid_"):
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
