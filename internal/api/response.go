package api

import (
	"time"

	"github.com/labstack/echo/v4"
)

// Response is the single response envelope every handler in this package
// returns — the teacher's api/response.go and api/handlers.go disagree on
// a SuccessResponse signature (1-arg constructor vs. 3-arg call sites);
// this repo settles on one signature used consistently (see DESIGN.md).
type Response struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorBody   `json:"error,omitempty"`
	Meta  ResponseMeta `json:"meta"`
}

// ErrorBody carries a machine-readable code and a human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta carries response-level metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
}

// Respond writes a successful envelope.
func Respond(c echo.Context, status int, data any) error {
	return c.JSON(status, Response{Data: data, Meta: ResponseMeta{Timestamp: time.Now().UTC()}})
}

// RespondError writes an error envelope.
func RespondError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Response{
		Error: &ErrorBody{Code: code, Message: message},
		Meta:  ResponseMeta{Timestamp: time.Now().UTC()},
	})
}
