package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/indexer"
	"github.com/papercomputeco/vecindex/pkg/vector"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Error: msg})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, indexer.ErrEmptyQuery):
		return fiber.StatusBadRequest
	case errors.Is(err, indexer.ErrEntityNotRegistered):
		return fiber.StatusNotFound
	case errors.Is(err, embeddings.ErrEmbeddingUnavailable),
		errors.Is(err, vector.ErrDriverNotRegistered),
		errors.Is(err, vector.ErrDriverNotImplemented):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Unexpected errors are logged and
// answered with a generic message.
func (s *Server) fail(c *fiber.Ctx, op string, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		s.logger.Error(op+" failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return errorJSON(c, status, op+" failed")
	}
	s.logger.Debug(op+" rejected",
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Error(err),
	)
	return errorJSON(c, status, err.Error())
}
