package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"wbtrack-rest-api/internal/middleware"
	"wbtrack-rest-api/internal/model"
	"wbtrack-rest-api/pkg/apierror"
	"wbtrack-rest-api/pkg/response"
)

// writeServiceError converts a domain error into an API error response.
// Unexpected errors are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		details := make([]apierror.FieldError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			details = append(details, apierror.FieldError{Field: f.Field, Message: f.Message})
		}
		response.Error(w, apierror.ValidationError("Validation failed", details...))
		return
	}

	switch {
	case errors.Is(err, model.ErrUserExists):
		response.Error(w, apierror.BadRequest("Username already registered"))
	case errors.Is(err, model.ErrInvalidCredentials):
		writeUnauthorized(w, "Incorrect username or password")
	case errors.Is(err, model.ErrInvalidToken):
		writeUnauthorized(w, "Invalid or expired token")
	case errors.Is(err, model.ErrAccountBlocked):
		writeUnauthorized(w, "Account is blocked")
	case errors.Is(err, model.ErrInvalidOldPassword):
		response.Error(w, apierror.BadRequest("Invalid old password"))
	case errors.Is(err, model.ErrProductNotFound):
		response.Error(w, apierror.NotFound("Product not found"))
	case errors.Is(err, model.ErrNotFound):
		response.Error(w, apierror.NotFound(""))
	case errors.Is(err, model.ErrAlreadyTracked):
		response.Error(w, apierror.Conflict("Product is already tracked"))
	case errors.Is(err, model.ErrUpstreamUnavailable):
		response.Error(w, apierror.BadGateway(""))
	default:
		log.Printf("[Handler] %s %s failed, request_id=%s: %v",
			r.Method, r.URL.Path, middleware.GetRequestID(r.Context()), err)
		response.Error(w, apierror.InternalError(""))
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	response.Error(w, apierror.Unauthorized(message))
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationDetails turns validator output into field details.
func validationDetails(err error) ([]apierror.FieldError, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}

	details := make([]apierror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, apierror.FieldError{
			Field:   fe.Field(),
			Message: validationMessage(fe),
		})
	}
	return details, true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "numeric":
		return "must be a number"
	default:
		return "is invalid"
	}
}

// queryInt reads an integer query parameter, returning def when it is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

// currentUser returns the user attached by the auth middleware.
func currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Not authenticated")
	}
	return user, ok
}
