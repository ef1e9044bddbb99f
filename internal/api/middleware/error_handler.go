package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/omarbridgetech/AlertHub/internal/domain"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID := RequestID(c)

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"error": errorBody{Code: "HTTP_ERROR", Message: fiberErr.Message, RequestID: requestID},
			})
		}

		appErr := domain.ErrInternal.WithError(err)
		if !errors.As(err, &appErr) {
			logger.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Path()),
				slog.String("request_id", requestID),
			)
		} else if appErr.StatusCode >= 500 {
			logger.Error("request failed",
				slog.String("code", appErr.Code),
				slog.String("path", c.Path()),
				slog.String("request_id", requestID),
				slog.Any("error", appErr.Err),
			)
		}

		return c.Status(appErr.StatusCode).JSON(fiber.Map{
			"error": errorBody{Code: appErr.Code, Message: appErr.Message, RequestID: requestID},
		})
	}
}
