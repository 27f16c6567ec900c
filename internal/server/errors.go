package server

import (
	"strings"

	offerr "github.com/mediaoffload/offloader/internal/errors"

	"github.com/danielgtaylor/huma/v2"
)

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	status  int
	Message string `json:"error" doc:"Human-readable error message"`
}

func (e *ErrorBody) Error() string  { return e.Message }
func (e *ErrorBody) GetStatus() int { return e.status }

func init() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		details := make([]string, 0, len(errs))
		for _, err := range errs {
			if err != nil {
				details = append(details, err.Error())
			}
		}
		if len(details) > 0 {
			msg = msg + ": " + strings.Join(details, "; ")
		}
		return &ErrorBody{status: status, Message: msg}
	}
}

// apiError maps a domain error to its HTTP status.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	return huma.NewError(offerr.Status(err), err.Error())
}
