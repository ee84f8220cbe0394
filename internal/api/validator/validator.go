package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// ValidationErrors wraps the validator's ValidationErrors
type ValidationErrors []playgroundvalidator.FieldError

// CustomValidator wraps go-playground/validator
type CustomValidator struct {
	validator *playgroundvalidator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() echo.Validator {
	v := playgroundvalidator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("request_status", validateRequestStatus); err != nil {
		return nil
	}
	if err := v.RegisterValidation("notblank", validateNotBlank); err != nil {
		return nil
	}

	return &CustomValidator{validator: v}
}

// Custom validation functions
func validateRequestStatus(fl playgroundvalidator.FieldLevel) bool {
	status := fl.Field().String()
	return status == "pending" || status == "approved" || status == "denied"
}

func validateNotBlank(fl playgroundvalidator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Validate implements echo.Validator interface
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		var validationErrors playgroundvalidator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return ValidationErrors(validationErrors)
		}
		return err
	}
	return nil
}

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	var fields []string
	for _, err := range ve {
		fields = append(fields, err.Field())
	}
	return fmt.Sprintf("validation failed on fields: %s", strings.Join(fields, ", "))
}

// SubmitAccessRequest is the body for filing an access request.
type SubmitAccessRequest struct {
	Reason string `json:"reason" validate:"required,notblank"`
}

// CreateItemRequest is the JSON body for adding an item without an image.
// Multipart uploads carry the same fields as form values.
type CreateItemRequest struct {
	Text string `json:"text" validate:"required,notblank"`
}

// ToggleItemRequest carries the completed value the client last saw; the
// server flips it rather than trusting a client-computed result.
type ToggleItemRequest struct {
	Completed bool `json:"completed"`
}
