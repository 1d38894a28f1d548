package errors

import (
	"fmt"
)

var ErrAlreadyExists = fmt.Errorf("already exists")
var ErrInternal = fmt.Errorf("internal error")
var ErrNotFound = fmt.Errorf("not found")
var ErrRequest = fmt.Errorf("request error")
var ErrBadRequest = fmt.Errorf("bad request")
var ErrBadResponse = fmt.Errorf("bad response")
var ErrInvalidRequest = fmt.Errorf("invalid request")
var ErrUnknownTenant = fmt.Errorf("unknown tenant")
var ErrUnauthorized = fmt.Errorf("unauthorized")

var ErrNotConnected = fmt.Errorf("not connected")
var ErrMalformedReference = fmt.Errorf("malformed reference")
var ErrUnknownEntityType = fmt.Errorf("unknown entity type")
var ErrRehydrationFailed = fmt.Errorf("rehydration failed")

// bridgeError carries a detail message while still matching one of the sentinels above
type bridgeError struct {
	msg    string
	target error
}

func (e bridgeError) Error() string        { return e.msg }
func (e bridgeError) Is(target error) bool { return target == e.target }

func newError(target error, msg string) error {
	return &bridgeError{msg: msg, target: target}
}

func NewAlreadyExistsError(msg string) error      { return newError(ErrAlreadyExists, msg) }
func NewBadRequestDataError(msg string) error     { return newError(ErrBadRequest, msg) }
func NewInvalidRequestError(msg string) error     { return newError(ErrInvalidRequest, msg) }
func NewNotFoundError(msg string) error           { return newError(ErrNotFound, msg) }
func NewUnknownTenantError(msg string) error      { return newError(ErrUnknownTenant, msg) }
func NewMalformedReferenceError(msg string) error { return newError(ErrMalformedReference, msg) }
func NewRehydrationError(msg string) error        { return newError(ErrRehydrationFailed, msg) }

func NewUnknownEntityTypeError(entityType string) error {
	return newError(ErrUnknownEntityType, fmt.Sprintf("no factory registered for entity type \"%s\"", entityType))
}
