// Package handler provides the HTTP handlers of the TaskKash API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"taskkash/internal/docstore"
	"taskkash/internal/repository"
	"taskkash/internal/service"
)

const maxBodyBytes = 1 << 20

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Handler errors.
var (
	ErrForbidden  = errors.New("admin access required")
	ErrBadRequest = errors.New("malformed request")
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their json names.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

// WriteJSON writes resp with the given status code.
func WriteJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// OK writes a 200 success envelope.
func OK(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, APIResponse{Success: true, Message: message, Data: data})
}

// Created writes a 201 success envelope.
func Created(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusCreated, APIResponse{Success: true, Message: message, Data: data})
}

// statusFor maps service and store errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, service.ErrWrongPassword),
		errors.Is(err, service.ErrInvalidResetToken),
		errors.Is(err, docstore.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden),
		errors.Is(err, service.ErrAccountSuspended),
		errors.Is(err, service.ErrCannotModifySelf):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrTaskNotFound),
		errors.Is(err, repository.ErrSubmissionNotFound),
		errors.Is(err, repository.ErrWithdrawalNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrDailyBonusClaimed),
		errors.Is(err, service.ErrTaskUnavailable),
		errors.Is(err, service.ErrTaskAlreadyStarted),
		errors.Is(err, service.ErrTaskAlreadyCompleted),
		errors.Is(err, service.ErrPendingSubmissionExists),
		errors.Is(err, service.ErrSubmissionAlreadyReviewed),
		errors.Is(err, service.ErrWithdrawalAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as a failure envelope. Unexpected errors are logged with
// the request logger and reported with a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := APIResponse{Success: false, Message: err.Error()}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		resp.Message = "validation failed"
		resp.Errors = verr.Fields
	}
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		resp.Message = "internal server error"
	}
	WriteJSON(w, status, resp)
}

// decodeJSON reads a JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return validateStruct(dst)
}

// validateStruct runs the struct tags and converts failures into a
// service.ValidationError keyed by json field name.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if _, ok := fields[field]; !ok {
			fields[field] = describe(fe)
		}
	}
	return &service.ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url", "http_url":
		return "must be a valid url"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "gte":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "ne":
		return "must not be " + fe.Param()
	case "hexadecimal", "len":
		return "is not a valid id"
	default:
		return "is invalid"
	}
}

// pathID parses a numeric route variable.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrBadRequest, name)
	}
	return id, nil
}

// page reads limit and offset query parameters.
func page(r *http.Request) (int, int) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return repository.PageLimit(limit), repository.PageOffset(offset)
}
