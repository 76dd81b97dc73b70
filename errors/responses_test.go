package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            *APIError
		expectedCode   int
		expectedType   ErrorType
		expectedFields []string
	}{
		{
			name: "timeout error",
			err: &APIError{
				Type:      TimeoutError,
				Message:   "too slow",
				Code:      http.StatusGatewayTimeout,
				RequestID: "test-id",
			},
			expectedCode:   http.StatusGatewayTimeout,
			expectedType:   TimeoutError,
			expectedFields: []string{"type", "message", "request_id"},
		},
		{
			name: "error with details",
			err: &APIError{
				Type:      ValidationError,
				Message:   "validation failed",
				Code:      http.StatusBadRequest,
				RequestID: "test-id",
				Details: map[string]interface{}{
					"missing_fields": []string{"profile"},
				},
			},
			expectedCode:   http.StatusBadRequest,
			expectedType:   ValidationError,
			expectedFields: []string{"type", "message", "request_id", "details"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)

			if rr.Code != tt.expectedCode {
				t.Errorf("WriteError() status = %v, want %v", rr.Code, tt.expectedCode)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("WriteError() content-type = %v, want application/json", ct)
			}

			var response map[string]interface{}
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response body: %v", err)
			}
			if errorType, ok := response["type"].(string); !ok || ErrorType(errorType) != tt.expectedType {
				t.Errorf("WriteError() error type = %v, want %v", errorType, tt.expectedType)
			}
			for _, field := range tt.expectedFields {
				if _, exists := response[field]; !exists {
					t.Errorf("WriteError() missing expected field: %s", field)
				}
			}
			if _, exists := response["code"]; exists {
				t.Error("status code must not be serialized")
			}
		})
	}
}

func TestErrorWithTypeUsesRequestIDHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Header().Set(RequestIDHeader, "abc")

	ErrorWithType(rr, "nope", NotFoundError, http.StatusNotFound)

	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != "abc" || resp.Type != NotFoundError {
		t.Errorf("unexpected response %+v", resp)
	}
}
