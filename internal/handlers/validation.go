package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/go-playground/validator/v10"
)

// Global validator instance (reused across all handlers)
var validate = newValidator()

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// answer lists never need more entries than there are questions; the
	// per-policy maximum is enforced by the recovery service
	_ = v.RegisterValidation("catalog_size", func(fl validator.FieldLevel) bool {
		return fl.Field().Len() <= len(models.SecurityQuestionCatalog)
	})
	return v
}

// ValidateRequest validates a request struct using go-playground/validator.
// Every failed rule is reported, keyed by the JSON field name.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return models.NewValidationError("body", err.Error())
	}

	verr := &models.ValidationError{}
	for _, fieldError := range ve {
		verr.Add(fieldPath(fieldError), formatValidationError(fieldError))
	}
	return verr
}

// decodeAndValidate reads a JSON body into req and validates it.
// It writes the 400 response itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeValidationError(w, models.NewValidationError("body", "invalid JSON"))
		return false
	}
	if err := ValidateRequest(req); err != nil {
		writeServiceError(w, err)
		return false
	}
	return true
}

// fieldPath drops the struct name from the namespace: "answers[0].answer"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must have a minimum of %s", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "catalog_size":
		return fmt.Sprintf("must have a maximum of %d", len(models.SecurityQuestionCatalog))
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
