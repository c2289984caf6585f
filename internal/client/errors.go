package client

import (
	"errors"
	"fmt"
)

// Error codes returned by the backend in the {code, message} payload.
const (
	CodeUnauthorized            = "unauthorized"
	CodeNotFound                = "not_found"
	CodeLocked                  = "locked"
	CodeValidationFailed        = "validation_failed"
	CodeLLMFailed               = "llm_failed"
	CodeSuggestionsNotProcessed = "suggestions_not_processed"
	CodeRateLimitExceeded       = "rate_limit_exceeded"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasCode reports whether err is an APIError carrying code.
func HasCode(err error, code string) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == code
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// FastAPI validation errors use "detail".
	Detail any `json:"detail"`
}
