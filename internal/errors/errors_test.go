package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestRatelakeError_Error(t *testing.T) {
	err := New(ErrCategoryStorage, CodeUploadFailed, "upload failed")
	expected := "[STORAGE:UPLOAD_FAILED] upload failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestRatelakeError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryStorage, CodeUploadFailed, "upload failed", cause)
	expected := "[STORAGE:UPLOAD_FAILED] upload failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestRatelakeError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryCatalog, CodeCatalogWrite, "locked", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestRatelakeError_Is(t *testing.T) {
	err1 := New(ErrCategoryStorage, CodeUploadFailed, "first")
	err2 := New(ErrCategoryStorage, CodeUploadFailed, "second")
	err3 := New(ErrCategoryStorage, CodeDownloadFailed, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryCatalog, CodeCatalogWrite, true},
		{ErrCategoryCatalog, CodePartitionNotFound, false},
		{ErrCategorySchema, CodeMissingColumn, false},
		{ErrCategoryRecord, CodeMalformedRow, false},
		{ErrCategoryMerge, CodeIdentityCollision, false},
		{ErrCategoryMemory, CodeBudgetExceeded, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategory(t *testing.T) {
	err := New(ErrCategorySchema, CodeMissingColumn, "no payer_slug")
	if GetCategory(err) != ErrCategorySchema {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategorySchema)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-RatelakeError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCategoryRecord, CodeInvalidRate, "negative rate")
	if GetCode(err) != CodeInvalidRate {
		t.Errorf("got %q, want %q", GetCode(err), CodeInvalidRate)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-RatelakeError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategorySchema, CodeMissingColumn, "bad table")
	detailed := err.WithDetails(map[string]interface{}{"column": "payer_slug"})

	if detailed.Details["column"] != "payer_slug" {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	s := NewSchemaError(CodeMissingColumn, "missing column")
	if s.Category != ErrCategorySchema || s.Code != CodeMissingColumn {
		t.Error("NewSchemaError mismatch")
	}

	r := NewRecordError(CodeInvalidRate, "rate <= 0")
	if r.Category != ErrCategoryRecord || r.Code != CodeInvalidRate {
		t.Error("NewRecordError mismatch")
	}

	st := NewStorageError(CodeUploadFailed, "s3 down", cause)
	if st.Category != ErrCategoryStorage || !errors.Is(st, cause) {
		t.Error("NewStorageError mismatch")
	}

	m := NewMergeError(CodeMergeFailed, "partition merge failed", cause)
	if m.Category != ErrCategoryMerge {
		t.Error("NewMergeError mismatch")
	}

	c := NewCatalogError(CodeCatalogWrite, "locked", cause)
	if c.Category != ErrCategoryCatalog {
		t.Error("NewCatalogError mismatch")
	}

	mem := NewMemoryError("over budget")
	if mem.Category != ErrCategoryMemory || mem.Code != CodeBudgetExceeded {
		t.Error("NewMemoryError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
