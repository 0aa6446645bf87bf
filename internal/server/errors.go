package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"minix/internal/drive"
)

type errorBody struct {
	Error string `json:"error"`
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, drive.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, drive.ErrNotFoundOrForbidden):
		return http.StatusNotFound
	case errors.Is(err, drive.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler writes errors as JSON. Internal errors are logged and
// reported without detail.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		s.logger.Warn("error after response was committed", "path", c.Path(), "error", err)
		return
	}

	status := statusOf(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(he.Code)
		}
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		msg = http.StatusText(status)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, errorBody{Error: msg})
	}
	if werr != nil {
		s.logger.Warn("writing error response", "error", werr)
	}
}
