package errors

import (
	"encoding/json"
	"fmt"
	"go.uber.org/zap"
)

// Details holds additional error details that can be viewed and logged.
type Details map[string]interface{}

// Error is the general error type for appearing errors.
type Error struct {
	// Code is the error code.
	Code Code
	// Kind is a more detailed description of what went wrong. It is optional.
	Kind Kind
	// Err is the original error that occurred.
	Err error
	// Message is the manually created message that can be used in order to trace the error.
	Message string
	// Details holds any error details.
	Details Details
}

func (e Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the original error.
func (e Error) Unwrap() error {
	return e.Err
}

// Cast casts the given error to Error. If the given one is not of type Error, an unknown one with error code
// ErrUnexpected is created and false returned
func Cast(err error) (Error, bool) {
	if e, ok := err.(Error); ok {
		return e, ok
	}
	e := Error{
		Code:    ErrUnexpected,
		Kind:    KindUnexpected,
		Err:     err,
		Message: "unknown operation",
		Details: make(Details),
	}
	return e, false
}

// Wrap wraps the given error with the given message.
func Wrap(err error, message string, details Details) error {
	e, ok := Cast(err)
	// Check whether to append to message or replace.
	var errMsg string
	if ok {
		errMsg = fmt.Sprintf("%s: %s", message, e.Message)
	} else {
		errMsg = message
	}
	// Add details. We copy the original ones in order to not modify details of
	// errors that might be referenced somewhere else.
	var mergedDetails Details
	if e.Details != nil || details != nil {
		mergedDetails = make(Details, len(e.Details)+len(details))
	}
	for k, v := range e.Details {
		mergedDetails[k] = v
	}
	for k, v := range details {
		// Check if detail with same key already set.
		if originalV, ok := mergedDetails[k]; ok {
			// Add prefix to original key. Original value will be overwritten after this
			// block.
			mergedDetails[fmt.Sprintf("_%s", k)] = originalV
		}
		mergedDetails[k] = v
	}
	return Error{
		Code:    e.Code,
		Kind:    e.Kind,
		Err:     e.Err,
		Message: errMsg,
		Details: mergedDetails,
	}
}

// detailsAsJSON encodes the Details of the given Error as JSON string.
func detailsAsJSON(err error) []byte {
	e, _ := Cast(err)
	if e.Details == nil {
		return nil
	}
	b, err := json.Marshal(e.Details)
	if err != nil {
		return []byte(fmt.Sprintf("%+v", e.Details))
	}
	return b
}

// Log logs the given error with its details. If the error is ErrFatal, the error will be logged is fatal.
func Log(logger *zap.Logger, err error) {
	e, _ := Cast(err)
	fields := make([]zap.Field, 0, len(e.Details)+3)
	fields = append(fields, zap.String("err_code", string(e.Code)))
	if e.Kind != "" {
		fields = append(fields, zap.String("err_kind", string(e.Kind)))
	}
	// Add each details entry as separate field for better readability.
	for k, v := range e.Details {
		fields = append(fields, zap.Any(fmt.Sprintf("err_details_v_%s", k), v))
	}
	if e.Err != nil {
		fields = append(fields, zap.String("err_orig", e.Err.Error()))
	}
	switch e.Code {
	case ErrBadRequest, ErrProtocolViolation, ErrNotFound:
		logger.Warn(e.Error(), fields...)
	case ErrFatal:
		logger.Fatal(e.Error(), fields...)
	default:
		logger.Error(e.Error(), fields...)
	}
}

// Prettify returns a detailed error string with error details.
func Prettify(err error) string {
	e, _ := Cast(err)
	return fmt.Sprintf("Code: %s\nKind: %s\nOriginal Error: %+v\nMessage: %s\nDetails: %s\n",
		e.Code, e.Kind, e.Err, e.Message, detailsAsJSON(e))
}

// BlameUser checks if the given error is ErrBadRequest, ErrProtocolViolation or
// ErrNotFound.
func BlameUser(err error) bool {
	e, ok := Cast(err)
	if !ok {
		// Unexpected.
		return false
	}
	switch e.Code {
	case ErrBadRequest,
		ErrProtocolViolation,
		ErrNotFound:
		return true
	}
	// Otherwise.
	return false
}
