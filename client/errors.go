package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/list-cutter/cutover/internal/models"
)

// APIError represents a structured error response from the destination API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("destination: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// parseAPIError attempts to decode a JSON error body; falls back to raw text.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = "unknown"
		apiErr.Message = string(body)
	}

	return apiErr
}

// classifyStatus wraps an APIError in the retry taxonomy: 5xx and 429 are
// transient, every other 4xx is permanent.
func classifyStatus(op string, apiErr *APIError) error {
	if apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests {
		return &models.TransientError{Op: op, Err: apiErr}
	}

	return &models.PermanentError{Op: op, Err: apiErr}
}

// classifyNetErr wraps a transport-level failure. Network errors and
// timeouts (including context deadlines) are always retryable.
func classifyNetErr(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &models.TransientError{Op: op, Err: err}
	}

	// url.Error from http.Client wraps everything transport-side; without
	// a response there is nothing to prove the request landed, so retry.
	return &models.TransientError{Op: op, Err: err}
}
