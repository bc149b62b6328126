package api

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"labreserve/internal/availability"
)

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

// BindError wraps body parsing and validation failures. The error handler
// answers it with 400.
type BindError struct {
	Err error
}

func (e *BindError) Error() string { return e.Err.Error() }

func (e *BindError) Unwrap() error { return e.Err }

// Bind parses the JSON body into out and validates it.
func Bind(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return &BindError{Err: fmt.Errorf("invalid request body: %w", err)}
	}
	if err := validate.Struct(out); err != nil {
		return &BindError{Err: err}
	}
	return nil
}

// ParamID reads a positive integer path parameter.
func ParamID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// QueryID reads an optional positive integer query parameter; absent is 0.
func QueryID(c *fiber.Ctx, name string) (int64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// DateRange reads date_from and date_to (YYYY-MM-DD), capped at maxDays.
func DateRange(c *fiber.Ctx, maxDays int) (from, to time.Time, err error) {
	from, to, err = availability.ParseRange(c.Query("date_from"), c.Query("date_to"), maxDays)
	if err != nil {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return from, to, nil
}
