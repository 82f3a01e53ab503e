// Package errors provides structured error types for the Ratelake engine.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline concern.
type ErrorCategory string

const (
	ErrCategorySchema   ErrorCategory = "SCHEMA"
	ErrCategoryRecord   ErrorCategory = "RECORD"
	ErrCategoryMemory   ErrorCategory = "MEMORY"
	ErrCategoryMerge    ErrorCategory = "MERGE"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryCatalog  ErrorCategory = "CATALOG"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes
	CodeMissingColumn   = "MISSING_COLUMN"
	CodeColumnType      = "COLUMN_TYPE_MISMATCH"
	CodeUnreadableTable = "UNREADABLE_TABLE"

	// Record codes
	CodeMalformedRow   = "MALFORMED_ROW"
	CodeInvalidRate    = "INVALID_RATE"
	CodeInvalidPeriod  = "INVALID_PERIOD"
	CodeMissingKeyPart = "MISSING_KEY_PART"

	// Memory codes
	CodeBudgetExceeded = "BUDGET_EXCEEDED"

	// Merge codes
	CodeIdentityCollision = "IDENTITY_COLLISION"
	CodeMergeFailed       = "MERGE_FAILED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeRenameFailed   = "RENAME_FAILED"

	// Catalog codes
	CodeCatalogWrite      = "CATALOG_WRITE"
	CodePartitionNotFound = "PARTITION_NOT_FOUND"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// RatelakeError is the structured error type used throughout the engine.
type RatelakeError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *RatelakeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *RatelakeError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *RatelakeError) Is(target error) bool {
	var t *RatelakeError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new RatelakeError.
func New(category ErrorCategory, code, message string) *RatelakeError {
	return &RatelakeError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new RatelakeError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *RatelakeError {
	return &RatelakeError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *RatelakeError) WithDetails(details map[string]interface{}) *RatelakeError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var re *RatelakeError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a RatelakeError.
func GetCategory(err error) ErrorCategory {
	var re *RatelakeError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a RatelakeError.
func GetCode(err error) string {
	var re *RatelakeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// isRetryable determines whether an error code is worth retrying.
// Only transient storage and catalog contention qualify; schema and
// record problems never heal on retry.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryCatalog && code == CodeCatalogWrite:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewSchemaError(code, message string) *RatelakeError {
	return New(ErrCategorySchema, code, message)
}

func NewRecordError(code, message string) *RatelakeError {
	return New(ErrCategoryRecord, code, message)
}

func NewMemoryError(message string) *RatelakeError {
	return New(ErrCategoryMemory, CodeBudgetExceeded, message)
}

func NewMergeError(code, message string, cause error) *RatelakeError {
	return Wrap(ErrCategoryMerge, code, message, cause)
}

func NewStorageError(code, message string, cause error) *RatelakeError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewCatalogError(code, message string, cause error) *RatelakeError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewConfigError(message string) *RatelakeError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *RatelakeError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
