package router

import (
	"encoding/json"
	"io"
)

// Error is an error that knows how to write itself as a response.
type Error interface {
	error
	StatusCode() int
	Encode(w io.Writer) error
}

// JsonError is the body of every error response.
// Reason is a stable identifier of the failure, for clients that branch on it.
type JsonError struct {
	Code   int    `json:"code"`
	Err    string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewJsonError(code int, err string) JsonError {
	return JsonError{
		Code: code,
		Err:  err,
	}
}

// StatusMapper returns a mapper that responds with code, the message of the mapped error
// and reason.
func StatusMapper(code int, reason string) ErrorMapper {
	return func(err error) Error {
		return JsonError{Code: code, Err: err.Error(), Reason: reason}
	}
}

func (e JsonError) StatusCode() int {
	return e.Code
}

func (e JsonError) Error() string {
	return e.Err
}

func (e JsonError) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(e)
}
