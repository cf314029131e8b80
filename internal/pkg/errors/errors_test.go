package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "invalid input")

	if err.Code != CodeValidation {
		t.Errorf("expected code=%s, got %s", CodeValidation, err.Code)
	}
	if err.Message != "invalid input" {
		t.Errorf("expected message='invalid input', got %s", err.Message)
	}
	if len(err.Stack) == 0 {
		t.Error("expected stack trace to be captured")
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name:     "simple error",
			err:      New(CodeValidation, "invalid"),
			contains: []string{"VALIDATION_ERROR", "invalid"},
		},
		{
			name: "error with op",
			err: &Error{
				Code:    CodeStorage,
				Message: "put failed",
				Op:      "pipeline.materialize",
			},
			contains: []string{"pipeline.materialize", "STORAGE_ERROR", "put failed"},
		},
		{
			name: "error with underlying",
			err: &Error{
				Code:    CodeInternal,
				Message: "wrapper",
				Err:     fmt.Errorf("underlying error"),
			},
			contains: []string{"wrapper", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			str := tt.err.Error()
			for _, c := range tt.contains {
				if !strings.Contains(str, c) {
					t.Errorf("expected error string to contain %q, got: %s", c, str)
				}
			}
		})
	}
}

func TestWrap(t *testing.T) {
	original := fmt.Errorf("original error")
	wrapped := Wrap(original, "renderer.submit", "submit failed")

	if wrapped == nil {
		t.Fatal("expected wrapped error to be non-nil")
	}
	if wrapped.Code != CodeInternal {
		t.Errorf("expected code=%s, got %s", CodeInternal, wrapped.Code)
	}
	if wrapped.Op != "renderer.submit" {
		t.Errorf("expected op='renderer.submit', got %s", wrapped.Op)
	}
	if errors.Unwrap(wrapped) != original {
		t.Error("Unwrap should return original error")
	}
}

func TestWrapPreservesCode(t *testing.T) {
	inner := New(CodeNotFound, "job not found")
	wrapped := Wrap(inner, "job.complete", "lookup failed")

	if wrapped.Code != CodeNotFound {
		t.Errorf("expected inner code to be preserved, got %s", wrapped.Code)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "op", "msg") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeValidation, 400},
		{CodeBadRequest, 400},
		{CodeUnauthorized, 401},
		{CodeForbidden, 403},
		{CodeNotFound, 404},
		{CodeConflict, 409},
		{CodeUnavailable, 503},
		{CodeTimeout, 504},
		{CodeStorage, 500},
		{CodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "x")
			if got := err.HTTPStatus(); got != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, got)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(CodeConflict, "dup")); got != CodeConflict {
		t.Errorf("expected CONFLICT, got %s", got)
	}
	if got := GetCode(fmt.Errorf("plain")); got != CodeInternal {
		t.Errorf("plain errors should map to INTERNAL_ERROR, got %s", got)
	}
}

func TestIsHelpers(t *testing.T) {
	nf := NotFound("job", "job-123")
	if !IsNotFound(nf) {
		t.Error("IsNotFound should be true for NotFound errors")
	}
	if IsValidation(nf) {
		t.Error("IsValidation should be false for NotFound errors")
	}
	if nf.Fields["id"] != "job-123" {
		t.Errorf("expected id field, got %v", nf.Fields)
	}

	v := ValidationField("params.VIDEO", "missing required parameter")
	if !IsValidation(v) {
		t.Error("IsValidation should be true")
	}
	if v.Fields["field"] != "params.VIDEO" {
		t.Errorf("expected field name in fields, got %v", v.Fields)
	}
}

func TestErrorsIsByCode(t *testing.T) {
	a := New(CodeUnavailable, "renderer down")
	b := New(CodeUnavailable, "different message")

	if !errors.Is(a, b) {
		t.Error("errors with the same code should match via errors.Is")
	}
}
