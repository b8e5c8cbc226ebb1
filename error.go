package atomicops

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

var (
	// ErrAtomic marks internal errors raised by this package that are not
	// request faults.
	ErrAtomic = errors.New("atomicops error")
)

// atomicError wraps an internal (non-fault) error condition.
func atomicError(format string, v ...any) error {
	msg := fmt.Sprintf(format, v...)
	return fmt.Errorf("%w: %s", ErrAtomic, msg)
}

// deserializationTitle prefixes every grammar fault title, mirroring the
// error vocabulary of the JSON:API specification's error objects.
const deserializationTitle = "Failed to deserialize request body"

// Error is a request fault in JSON:API error object form. It is consumed by
// the response-serialization layer; this package never writes HTTP responses
// from the core pipeline itself.
// See https://jsonapi.org/format/#error-objects for details.
type Error struct {
	Status string       `json:"status,omitempty"` // The HTTP status code applicable to this problem.
	Title  string       `json:"title,omitempty"`  // A short summary of the problem.
	Detail string       `json:"detail,omitempty"` // A specific explanation of the problem.
	Source *ErrorSource `json:"source,omitempty"` // Reference to the primary source of the error.
	Meta   Meta         `json:"meta,omitempty"`   // Non-standard meta-information about the error.
}

// Error returns the combined title and detail as a single message.
func (e Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

// StatusCode returns the numeric HTTP status of the fault, or 500 when the
// status member is absent or malformed.
func (e Error) StatusCode() int {
	code, err := strconv.Atoi(e.Status)
	if err != nil {
		return http.StatusInternalServerError
	}
	return code
}

// ErrorSource is an object containing references to the primary source of the
// error.
type ErrorSource struct {
	// A JSON Pointer [RFC6901] to the value in the request document that
	// caused the error. Operation faults use the extension's bracketed form,
	// e.g. "/atomic:operations[2]".
	Pointer string `json:"pointer,omitempty"`

	Parameter string `json:"parameter,omitempty"` // URI query parameter that caused the error.
	Header    string `json:"header,omitempty"`    // Name of a single request header which caused the error.
}

// ErrorList aggregates multiple faults raised for one document. Only the
// batched reference-resolution phase produces more than one fault at a time;
// grammar validation is fail-fast.
type ErrorList []*Error

// Error joins the messages of all contained faults.
func (l ErrorList) Error() string {
	if len(l) == 0 {
		return ""
	}
	errs := make([]error, 0, len(l))
	for _, e := range l {
		errs = append(errs, e)
	}
	return errors.Join(errs...).Error()
}

// Errors flattens err into the faults it carries. A nil error yields nil; an
// error that is neither an *Error nor an ErrorList is folded into a single
// 500 fault so no failure is ever silently swallowed.
func Errors(err error) []*Error {
	if err == nil {
		return nil
	}

	var list ErrorList
	if errors.As(err, &list) {
		return list
	}

	var fault *Error
	if errors.As(err, &fault) {
		return []*Error{fault}
	}

	return []*Error{{
		Status: strconv.Itoa(http.StatusInternalServerError),
		Title:  "Internal server error.",
		Detail: err.Error(),
	}}
}

// NewDocumentError returns the document-level fault raised when the request
// body is malformed or contains no operations: 400, no source pointer.
func NewDocumentError(detail string) *Error {
	return &Error{
		Status: strconv.Itoa(http.StatusBadRequest),
		Title:  deserializationTitle + ".",
		Detail: detail,
	}
}

// OperationPointer returns the JSON pointer locating the operation at the
// given index in the request document.
func OperationPointer(index int) string {
	return fmt.Sprintf("/%s[%d]", MemberOperations, index)
}

// newOperationError returns a grammar fault for the operation at the given
// index: 422, title prefixed with the deserialization summary, pointer to the
// offending operation.
func newOperationError(index int, title, detail string) *Error {
	return &Error{
		Status: strconv.Itoa(http.StatusUnprocessableEntity),
		Title:  fmt.Sprintf("%s: %s", deserializationTitle, title),
		Detail: detail,
		Source: &ErrorSource{Pointer: OperationPointer(index)},
	}
}

// newNotFoundError returns a reference-resolution fault for the operation at
// the given index: 404, pointer to the owning operation.
func newNotFoundError(index int, detail string) *Error {
	return &Error{
		Status: strconv.Itoa(http.StatusNotFound),
		Title:  "The referenced resource does not exist.",
		Detail: detail,
		Source: &ErrorSource{Pointer: OperationPointer(index)},
	}
}

// newFieldError returns a field-write fault raised during instantiation.
// Field faults carry no pointer of their own; the operations path stamps the
// owning operation's pointer on afterwards.
func newFieldError(status int, title, detail string) *Error {
	return &Error{
		Status: strconv.Itoa(status),
		Title:  title,
		Detail: detail,
	}
}
