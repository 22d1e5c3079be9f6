package errors

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New("test error")
	if err == nil {
		t.Fatal("New() returned nil")
	}

	if !strings.Contains(err.Error(), "test error") {
		t.Errorf("Expected error message to contain 'test error', got: %s", err.Error())
	}

	if err.Location() == "" {
		t.Error("Location should not be empty")
	}
}

func TestWrap(t *testing.T) {
	baseErr := errors.New("base error")
	err := Wrap(baseErr, "wrapped")

	if err == nil {
		t.Fatal("Wrap() returned nil")
	}

	if !strings.Contains(err.Error(), "wrapped") {
		t.Errorf("Expected error message to contain 'wrapped', got: %s", err.Error())
	}

	if !strings.Contains(err.Error(), "base error") {
		t.Errorf("Expected error message to contain 'base error', got: %s", err.Error())
	}

	unwrapped := errors.Unwrap(err)
	if unwrapped != baseErr {
		t.Errorf("Unwrap() returned wrong error: %v", unwrapped)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "wrapped"); err != nil {
		t.Errorf("Wrap(nil) should return nil, got: %v", err)
	}
}

func TestWithField(t *testing.T) {
	err := New("test error").WithField("key", "value")

	fields := err.GetFields()
	if len(fields) != 1 {
		t.Fatalf("Expected 1 field, got %d", len(fields))
	}

	if fields["key"] != "value" {
		t.Errorf("Expected field['key'] = 'value', got: %v", fields["key"])
	}
}

func TestWithFields(t *testing.T) {
	fields := map[string]interface{}{
		"key1": "value1",
		"key2": 123,
	}

	err := New("test error").WithFields(fields)

	errFields := err.GetFields()
	if len(errFields) != 2 {
		t.Fatalf("Expected 2 fields, got %d", len(errFields))
	}

	if errFields["key1"] != "value1" {
		t.Errorf("Expected field['key1'] = 'value1', got: %v", errFields["key1"])
	}

	if errFields["key2"] != 123 {
		t.Errorf("Expected field['key2'] = 123, got: %v", errFields["key2"])
	}
}

func TestWithCode(t *testing.T) {
	err := New("test error").WithCode("TEST_CODE")

	if err.GetCode() != "TEST_CODE" {
		t.Errorf("Expected code 'TEST_CODE', got: %s", err.GetCode())
	}
}

func TestErrorIs(t *testing.T) {
	notFoundErr := NewNotFound("resource not found")
	if !errors.Is(notFoundErr, ErrNotFound) {
		t.Error("errors.Is() should return true for ErrNotFound")
	}

	wrapped := Wrap(ErrInvalidInput, "wrapped invalid input")
	if !errors.Is(wrapped, ErrInvalidInput) {
		t.Error("errors.Is() should return true for wrapped ErrInvalidInput")
	}

	terminated := NewSessionTerminated("call-1")
	if !errors.Is(terminated, ErrSessionTerminated) {
		t.Error("errors.Is() should return true for ErrSessionTerminated")
	}
}

func TestErrorAs(t *testing.T) {
	err := New("test error").WithCode("TEST_CODE")

	var structErr *Error
	if !errors.As(err, &structErr) {
		t.Error("errors.As() should successfully cast to *Error")
	}

	if structErr.GetCode() != "TEST_CODE" {
		t.Errorf("Expected code 'TEST_CODE', got: %s", structErr.GetCode())
	}
}

func TestDomainConstructors(t *testing.T) {
	t.Run("SessionNotFound", func(t *testing.T) {
		err := NewSessionNotFound("call-42")
		if err.GetCode() != "SESSION_NOT_FOUND" {
			t.Errorf("Expected code 'SESSION_NOT_FOUND', got: %s", err.GetCode())
		}
		if err.GetFields()["session_id"] != "call-42" {
			t.Errorf("Expected session_id field, got: %v", err.GetFields())
		}
	})

	t.Run("InvalidTransition", func(t *testing.T) {
		err := NewInvalidTransition("COMPLETED", "IN_PROGRESS")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Error("errors.Is() should return true for ErrInvalidTransition")
		}
		if !strings.Contains(err.Error(), "COMPLETED -> IN_PROGRESS") {
			t.Errorf("Expected transition in message, got: %s", err.Error())
		}
	})

	t.Run("InvalidMetadata", func(t *testing.T) {
		err := NewInvalidMetadata("missing consent flag")
		if GetErrorCode(err) != "INVALID_METADATA" {
			t.Errorf("Expected code 'INVALID_METADATA', got: %s", GetErrorCode(err))
		}
	})
}

func TestHelperFunctions(t *testing.T) {
	notFoundErr := NewNotFound("resource not found")
	if !IsErrorType(notFoundErr, ErrNotFound) {
		t.Error("IsErrorType() should return true for ErrNotFound")
	}

	codeErr := New("test error").WithCode("TEST_CODE")
	if GetErrorCode(codeErr) != "TEST_CODE" {
		t.Errorf("GetErrorCode() should return 'TEST_CODE', got: %s", GetErrorCode(codeErr))
	}

	fieldsErr := New("test error").WithField("key", "value")
	fields := GetErrorFields(fieldsErr)
	if fields == nil || fields["key"] != "value" {
		t.Error("GetErrorFields() should return the error fields")
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	testCases := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"NotFound", ErrNotFound, http.StatusNotFound},
		{"InvalidInput", ErrInvalidInput, http.StatusBadRequest},
		{"Wrapped", Wrap(ErrNotFound, "wrapped"), http.StatusNotFound},
		{"Unknown", errors.New("unknown"), http.StatusInternalServerError},
		{"SessionNotFound", NewSessionNotFound("123"), http.StatusNotFound},
		{"SessionTerminated", NewSessionTerminated("123"), http.StatusConflict},
		{"InvalidMetadata", NewInvalidMetadata("bad flag"), http.StatusBadRequest},
		{"InvalidTransition", NewInvalidTransition("COMPLETED", "RINGING"), http.StatusConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status := HTTPStatusFromError(tc.err)
			if status != tc.expectedStatus {
				t.Errorf("Expected status %d, got: %d", tc.expectedStatus, status)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	testCases := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "StructuredError",
			err:            New("test error").WithField("key", "value").WithCode("TEST_CODE"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"message"`,
		},
		{
			name:           "StandardError",
			err:            ErrNotFound,
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"error": "resource not found"`,
		},
		{
			name:           "SessionNotFound",
			err:            NewSessionNotFound("123"),
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"session_id": "123"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			if rec.Code != tc.expectedStatus {
				t.Errorf("Expected status %d, got: %d", tc.expectedStatus, rec.Code)
			}

			contentType := rec.Header().Get("Content-Type")
			if contentType != "application/json" {
				t.Errorf("Expected Content-Type 'application/json', got: %s", contentType)
			}

			body := rec.Body.String()
			if !strings.Contains(body, tc.expectedBody) {
				t.Errorf("Expected body to contain '%s', got: %s", tc.expectedBody, body)
			}
		})
	}
}
