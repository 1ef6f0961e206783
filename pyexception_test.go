package tablebridge

import (
	"errors"
	"strings"
	"testing"
)

// decodeException decodes an exception the way replies from an interpreter
// without msgpack are decoded.
func decodeException(data []byte) (*PythonException, error) {
	var ex PythonException
	if err := (JSONSerializer{}).Unmarshal(data, &ex); err != nil {
		return nil, err
	}
	return &ex, nil
}

func TestPythonExceptionFromJSON(t *testing.T) {
	jsonData := []byte(`{
		"exception": "ValueError",
		"message": "invalid value",
		"traceback": "Traceback (most recent call last):\n  File \"hello.py\", line 1\nValueError: invalid value"
	}`)

	ex, err := decodeException(jsonData)
	if err != nil {
		t.Fatalf("Failed to parse exception: %v", err)
	}

	if ex.Exception != "ValueError" {
		t.Errorf("Expected exception type 'ValueError', got '%s'", ex.Exception)
	}
	if ex.Message != "invalid value" {
		t.Errorf("Expected message 'invalid value', got '%s'", ex.Message)
	}
	if ex.Cause != nil {
		t.Error("Expected Cause to be nil for simple exception")
	}
}

func TestPythonExceptionWithCause(t *testing.T) {
	jsonData := []byte(`{
		"exception": "RuntimeError",
		"message": "operation failed",
		"traceback": "Traceback (most recent call last):\nRuntimeError: operation failed",
		"cause": {
			"exception": "ModuleNotFoundError",
			"message": "No module named 'polars'",
			"traceback": "Traceback (most recent call last):\nModuleNotFoundError"
		}
	}`)

	ex, err := decodeException(jsonData)
	if err != nil {
		t.Fatalf("Failed to parse exception with cause: %v", err)
	}

	if ex.Cause == nil {
		t.Fatal("Expected Cause to be non-nil for chained exception")
	}
	if ex.Cause.Exception != "ModuleNotFoundError" {
		t.Errorf("Expected cause exception type 'ModuleNotFoundError', got '%s'", ex.Cause.Exception)
	}
}

func TestPythonExceptionWithArgs(t *testing.T) {
	jsonData := []byte(`{
		"exception": "OSError",
		"message": "[Errno 2] No such file or directory: 'chart.html'",
		"traceback": "Traceback...",
		"args": [2, "No such file or directory", "chart.html"]
	}`)

	ex, err := decodeException(jsonData)
	if err != nil {
		t.Fatalf("Failed to parse exception with args: %v", err)
	}

	if len(ex.ExceptionArgs) != 3 {
		t.Fatalf("Expected 3 args, got %d", len(ex.ExceptionArgs))
	}
	if errno := normalizeNative(ex.ExceptionArgs[0]); errno != int64(2) {
		t.Errorf("Expected errno 2, got %#v", errno)
	}
	if ex.ExceptionArgs[2] != "chart.html" {
		t.Errorf("Expected filename arg, got %v", ex.ExceptionArgs[2])
	}
}

func TestPythonExceptionToStringWithCause(t *testing.T) {
	ex := &PythonException{
		Exception: "RuntimeError",
		Message:   "top level error",
		Traceback: "Traceback...",
		Cause: &PythonException{
			Exception: "ValueError",
			Message:   "underlying error",
			Traceback: "Inner traceback...",
			Cause: &PythonException{
				Exception: "KeyError",
				Message:   "'Date'",
			},
		},
	}

	str := ex.ToString()
	for _, want := range []string{"RuntimeError", "Caused by: ValueError", "Caused by: KeyError"} {
		if !strings.Contains(str, want) {
			t.Errorf("ToString should contain %q, got %q", want, str)
		}
	}
}

func TestPythonExceptionIsError(t *testing.T) {
	var err error = &PythonException{Exception: "KeyError", Message: "'missing_key'"}

	wrapped := newError(PhaseCall, "line_graph", err)

	var pyErr *PythonException
	if !errors.As(wrapped, &pyErr) {
		t.Fatal("errors.As should find the PythonException")
	}
	if pyErr.Exception != "KeyError" {
		t.Errorf("Expected KeyError, got %s", pyErr.Exception)
	}
	if !strings.Contains(wrapped.Error(), "[call] line_graph: KeyError: 'missing_key'") {
		t.Errorf("unexpected error text %q", wrapped.Error())
	}
}
