package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/todoapi/internal/common"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newError(code int, title, message string) *echo.HTTPError {
	return echo.NewHTTPError(code, errorResponse{Error: title, Message: message})
}

// toHTTPError maps service errors to responses. Anything unrecognised is an
// internal error and its text is not exposed.
func toHTTPError(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		msg := strings.TrimPrefix(err.Error(), common.ErrorValidation.Error()+": ")
		return http.StatusBadRequest, errorResponse{Error: "Validation Error", Message: msg}
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusBadRequest, errorResponse{Error: "HTTP Error", Message: "Resource already exists"}
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, errorResponse{Error: "Authentication Error", Message: "Invalid authentication credentials"}
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Message: "Authentication required"}
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden, errorResponse{Error: "Forbidden", Message: "You can only access your own tasks"}
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, errorResponse{Error: "Not Found", Message: "Task not found"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "Internal Server Error", Message: "An unexpected error occurred"}
	}
}

func (s *HTTPServer) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		code int
		body errorResponse
		he   *echo.HTTPError
	)
	if errors.As(err, &he) {
		code = he.Code
		switch m := he.Message.(type) {
		case errorResponse:
			body = m
		default:
			body = errorResponse{Error: "HTTP Error", Message: fmt.Sprint(m)}
		}
	} else {
		code, body = toHTTPError(err)
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed", "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		s.logger.Error(c.Request().Context(), "failed to write error response", "error", err)
	}
}
