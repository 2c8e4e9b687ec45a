package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"familypoints/models"
	"familypoints/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response
type errorBody struct {
	Kind              string             `json:"kind"`
	Message           string             `json:"message"`
	Deficit           int64              `json:"deficit,omitempty"`
	RemainingMinutes  *int               `json:"remaining_minutes,omitempty"`
	RetryAfterSeconds int                `json:"retry_after_seconds,omitempty"`
	Fields            []validationDetail `json:"fields,omitempty"`
}

type validationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Use JSON tag names for field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Kind: kind, Message: message},
	})
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindInsufficientFunds, service.KindQuotaExceeded:
		return http.StatusUnprocessableEntity
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeServiceError maps an operation error to a response. Unexpected errors
// are logged and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	typed, ok := service.AsError(err)
	if !ok {
		log.WithFields(log.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"requestID": middleware.GetReqID(r.Context()),
			"error":     err,
		}).Error("Request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	body := errorBody{
		Kind:              string(typed.Kind),
		Message:           typed.Message,
		Deficit:           typed.Deficit,
		RetryAfterSeconds: typed.RetryAfterSeconds,
	}
	if typed.Kind == service.KindQuotaExceeded {
		remaining := typed.RemainingMinutes
		body.RemainingMinutes = &remaining
	}
	if typed.Kind == service.KindRateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(typed.RetryAfterSeconds))
	}
	if body.Message == "" {
		body.Message = typed.Error()
	}
	writeJSON(w, statusFor(typed.Kind), map[string]errorBody{"error": body})
}

// decodeJSON reads and validates a request body into dst. It writes the error
// response itself and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(service.KindValidation), fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			writeError(w, http.StatusBadRequest, string(service.KindValidation), err.Error())
			return false
		}
		body := errorBody{Kind: string(service.KindValidation), Message: "request validation failed"}
		for _, e := range validationErrors {
			body.Fields = append(body.Fields, validationDetail{Field: e.Field(), Message: validationMessage(e)})
		}
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": body})
		return false
	}
	return true
}

// validationMessage returns a human-readable validation message
func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "ne":
		return "Must not be " + e.Param()
	default:
		return "Invalid value"
	}
}

// idParam parses a positive int64 path parameter
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, string(service.KindValidation), fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return id, true
}

// requestActor returns the actor resolved by authenticate
func requestActor(r *http.Request) models.Actor {
	actor, _ := ActorFrom(r.Context())
	return actor
}
