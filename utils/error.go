package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ClientError marks failures caused by the request itself (bad input,
// missing configuration). Handlers map these to 4xx instead of 5xx.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string { return e.Message }

func NewClientError(message string) error {
	return &ClientError{Message: message}
}

func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) || errors.Is(err, ErrorRecordNotFound)
}
