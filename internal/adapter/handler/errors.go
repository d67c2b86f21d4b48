package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/core/service"
)

type ErrorBody struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	Field           string `json:"field,omitempty"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
	CurrentVersion  *int64 `json:"current_version,omitempty"`
}

type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest reports the first failing field as a domain validation error.
func validateRequest(entity string, req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(entity, fe.Field(), ruleMessage(fe))
	}
	return domain.NewValidationError(entity, "", err.Error())
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// httpError maps a service error to its status code and wire body.
func httpError(err error) (int, ErrorBody) {
	body := ErrorBody{Message: err.Error()}

	var (
		verr     *domain.ValidationError
		conflict *domain.ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &verr):
		body.Code = "validation_failed"
		body.Field = verr.Field
		return http.StatusBadRequest, body
	case errors.As(err, &conflict):
		body.Code = "concurrency_conflict"
		expected, current := int64(conflict.Expected), int64(conflict.Current)
		body.ExpectedVersion = &expected
		if current != 0 {
			body.CurrentVersion = &current
		}
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrNotFound):
		body.Code = "not_found"
		return http.StatusNotFound, body
	case errors.Is(err, domain.ErrStateTransition):
		body.Code = "invalid_state_transition"
		return http.StatusConflict, body
	case errors.Is(err, service.ErrDuplicateRequest):
		body.Code = "duplicate_request"
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrClockNotBiddable):
		body.Code = "clock_not_biddable"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrStorageUnavailable):
		body.Code = "storage_unavailable"
		body.Message = "storage unavailable, retry later"
		return http.StatusServiceUnavailable, body
	default:
		body.Code = "internal_error"
		body.Message = "internal error"
		return http.StatusInternalServerError, body
	}
}

func grpcError(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrConcurrencyConflict):
		code = codes.Aborted
	case errors.Is(err, service.ErrDuplicateRequest):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrStateTransition), errors.Is(err, domain.ErrClockNotBiddable):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrStorageUnavailable):
		code = codes.Unavailable
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
