// Package api holds the HTTP plumbing shared by the three services:
// response envelopes, request binding, error mapping and middleware.
package api

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Envelope is the JSON body of every response.
type Envelope struct {
	Code    int         `json:"code"`
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// Success responds 200 with data.
func Success(c *fiber.Ctx, message string, data interface{}) error {
	return SuccessWithCode(c, fiber.StatusOK, message, data)
}

// SuccessWithCode responds with a custom success status, e.g. 201.
func SuccessWithCode(c *fiber.Ctx, code int, message string, data interface{}) error {
	return c.Status(code).JSON(Envelope{Code: code, Status: "success", Message: message, Data: data})
}

func Error(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(Envelope{Code: code, Status: "error", Message: message})
}

func ErrorWithDetails(c *fiber.Ctx, code int, message string, details interface{}) error {
	return c.Status(code).JSON(Envelope{Code: code, Status: "error", Message: message, Errors: details})
}

// ValidationError reports validator failures per field.
func ValidationError(c *fiber.Ctx, err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return Error(c, fiber.StatusBadRequest, err.Error())
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	return ErrorWithDetails(c, fiber.StatusBadRequest, "validation failed", fields)
}
