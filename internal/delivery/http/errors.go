package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/domain"
)

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrInvalidSegment):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrModelNotFound):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, domain.ErrNoAdmissibleCandidates), errors.Is(err, domain.ErrEmptyRouteDefinition):
		return fiber.StatusUnprocessableEntity
	case domain.IsClientError(err):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// NewErrorHandler renders every error as {"error": true, "message": ...}.
// Internal errors are logged and hidden from the client. A segment without a
// trained model is reported as unavailable with the reason kept visible.
func NewErrorHandler(log logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := StatusFor(err)
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"method": c.Method(),
				"path":   c.Path(),
			}).Error("request failed")
			message = "Internal Server Error"
		}
		if code == fiber.StatusServiceUnavailable && errors.Is(err, domain.ErrModelNotFound) {
			log.WithError(err).WithField("path", c.Path()).Warn("model not trained")
			message = "model not trained: " + err.Error()
		}

		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"message": message,
		})
	}
}
