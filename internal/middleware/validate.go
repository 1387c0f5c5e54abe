package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/bilgisen/altavoz/internal/logger"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const validatedKey = "validated"

// Validator is a struct that holds the validator instance
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance. Failing fields are
// reported by their json name, or their query name for query structs.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	return &Validator{validate: v}
}

// Validate validates the request body against the provided struct
func (v *Validator) Validate(s interface{}) error {
	return v.validate.Struct(s)
}

// Fields maps each failing field to the tag it failed. It returns nil for
// errors that are not validation errors.
func Fields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		fields[e.Field()] = e.Tag()
	}
	return fields
}

var defaultValidator = NewValidator()

// RequestError is a client error rendered with its own JSON body by
// ErrorHandler.
type RequestError struct {
	Status int
	Body   fiber.Map
}

func (e *RequestError) Error() string {
	if msg, ok := e.Body["error"].(string); ok {
		return msg
	}
	return http.StatusText(e.Status)
}

// ParseBody parses the JSON, form or multipart body into out and validates it.
func ParseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return &RequestError{Status: fiber.StatusBadRequest, Body: fiber.Map{
			"error": "Invalid request body",
			"msg":   err.Error(),
		}}
	}

	if err := defaultValidator.Validate(out); err != nil {
		return &RequestError{Status: fiber.StatusUnprocessableEntity, Body: fiber.Map{
			"error":  "Validation failed",
			"fields": Fields(err),
		}}
	}
	return nil
}

// ValidateRequest is a middleware that parses and validates the request
// body into a fresh T per request.
func ValidateRequest[T any]() fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := new(T)
		if err := c.BodyParser(body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
				"msg":   err.Error(),
			})
		}

		if err := defaultValidator.Validate(body); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  "Validation failed",
				"fields": Fields(err),
			})
		}

		c.Locals(validatedKey, body)
		return c.Next()
	}
}

// ValidateQueryParams validates query parameters into a fresh T per request.
func ValidateQueryParams[T any]() fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := new(T)
		if err := c.QueryParser(query); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid query parameters",
				"msg":   err.Error(),
			})
		}

		if err := defaultValidator.Validate(query); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  "Invalid query parameters",
				"fields": Fields(err),
			})
		}

		c.Locals(validatedKey, query)
		return c.Next()
	}
}

// Validated returns the value stored by ValidateRequest or ValidateQueryParams.
func Validated[T any](c *fiber.Ctx) *T {
	v, _ := c.Locals(validatedKey).(*T)
	return v
}

// ErrorHandler is a middleware that handles errors in a consistent way
func ErrorHandler(c *fiber.Ctx, err error) error {
	var re *RequestError
	if errors.As(err, &re) {
		return c.Status(re.Status).JSON(re.Body)
	}

	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	event := logger.Get().Error()
	if code < fiber.StatusInternalServerError {
		event = logger.Get().Warn()
	}
	event.
		Err(err).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", code).
		Msg("HTTP error")

	return c.Status(code).JSON(fiber.Map{
		"error": http.StatusText(code),
	})
}
