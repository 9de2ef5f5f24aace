package crosschain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorCodeConfig   ErrorCode = "CONFIG_ERROR"
	ErrorCodeNetwork  ErrorCode = "NETWORK_ERROR"
	ErrorCodeOnchain  ErrorCode = "ONCHAIN_ERROR"
	ErrorCodeEncoding ErrorCode = "ENCODING_ERROR"

	ErrorCodeUnspecified ErrorCode = "UNSPECIFIED"
)

// StructuredError tags a failure with the category the CLI reports. Every category is fatal for the run.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *StructuredError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *StructuredError) Unwrap() error {
	return e.Err
}

// Is matches any StructuredError carrying the same code, so errors.Is(err, ErrOnchain) works.
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

var (
	ErrConfig   = &StructuredError{Code: ErrorCodeConfig}
	ErrNetwork  = &StructuredError{Code: ErrorCodeNetwork}
	ErrOnchain  = &StructuredError{Code: ErrorCodeOnchain}
	ErrEncoding = &StructuredError{Code: ErrorCodeEncoding}
)

func NewStructuredError(code ErrorCode, message string, err error, details ...map[string]interface{}) *StructuredError {
	var detailsMap map[string]interface{}
	if len(details) > 0 {
		detailsMap = details[0]
	}

	return &StructuredError{
		Code:    code,
		Message: message,
		Details: detailsMap,
		Err:     err,
	}
}

func NewConfigError(message string, err error, details ...map[string]interface{}) *StructuredError {
	return NewStructuredError(ErrorCodeConfig, message, err, details...)
}

func NewNetworkError(message string, err error, details ...map[string]interface{}) *StructuredError {
	return NewStructuredError(ErrorCodeNetwork, message, err, details...)
}

func NewOnchainError(message string, err error, details ...map[string]interface{}) *StructuredError {
	return NewStructuredError(ErrorCodeOnchain, message, err, details...)
}

func NewEncodingError(message string, err error, details ...map[string]interface{}) *StructuredError {
	return NewStructuredError(ErrorCodeEncoding, message, err, details...)
}

// GetErrorCode returns the code of the outermost StructuredError in err's chain.
func GetErrorCode(err error) ErrorCode {
	var structErr *StructuredError
	if errors.As(err, &structErr) {
		return structErr.Code
	}
	return ErrorCodeUnspecified
}
