package session

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/afterword/afterword/internal/client"
)

var (
	// ErrReadOnly is returned for edits while another device holds the lock.
	ErrReadOnly = errors.New("work is locked by another device; editor is read-only")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session closed")
)

// Kind classifies a failed operation.
type Kind string

const (
	KindUnauthorized            Kind = client.CodeUnauthorized
	KindNotFound                Kind = client.CodeNotFound
	KindLocked                  Kind = client.CodeLocked
	KindValidationFailed        Kind = client.CodeValidationFailed
	KindLLMFailed               Kind = client.CodeLLMFailed
	KindSuggestionsNotProcessed Kind = client.CodeSuggestionsNotProcessed
	KindRateLimitExceeded       Kind = client.CodeRateLimitExceeded
	KindUnknown                 Kind = "unknown"
)

// Error is a failure translated into a user-presentable message.
type Error struct {
	Kind    Kind
	Message string
	// Missing and Total are set for KindSuggestionsNotProcessed when known.
	Missing int
	Total   int

	err error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.err }

const (
	msgUnauthorized = "Session expired. Please sign in again."
	msgNotFound     = "Work not found."
	msgLocked       = "This work is locked by another device. Editor is now read-only."
	msgValidation   = "Validation failed. Please check your input."
	msgLLMFailed    = "AI analysis is temporarily unavailable. Please try again in a moment."
	msgUnprocessed  = "Some sentence comments are still unprocessed. Mark each as resolved or rejected before submit."
	msgRateLimit    = "Rate limit reached. Please wait and try again."
	msgRequest      = "Request failed."
)

var unprocessedPattern = regexp.MustCompile(`(?i)Unprocessed suggestions:\s*(\d+)\s*out of\s*(\d+)`)

func unprocessedMessage(missing, total int) string {
	return fmt.Sprintf("You still have %d unprocessed sentence comments (total: %d). Mark each as resolved or rejected before submit.", missing, total)
}

func unprocessedError(missing, total int) *Error {
	return &Error{
		Kind:    KindSuggestionsNotProcessed,
		Message: unprocessedMessage(missing, total),
		Missing: missing,
		Total:   total,
	}
}

// MapError converts any error from the client into an *Error. Codes win
// over statuses; a 409 carrying the locked code is treated as locked.
func MapError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	apiErr, ok := client.AsAPIError(err)
	if !ok {
		return &Error{Kind: KindUnknown, Message: err.Error(), err: err}
	}

	code, status := apiErr.Code, apiErr.Status
	e := &Error{err: err}
	switch {
	case code == client.CodeUnauthorized || status == http.StatusUnauthorized:
		e.Kind, e.Message = KindUnauthorized, msgUnauthorized
	case code == client.CodeNotFound || status == http.StatusNotFound:
		e.Kind, e.Message = KindNotFound, msgNotFound
	case code == client.CodeLocked || status == http.StatusLocked:
		e.Kind, e.Message = KindLocked, msgLocked
	case code == client.CodeValidationFailed:
		e.Kind, e.Message = KindValidationFailed, orDefault(apiErr.Message, msgValidation)
	case code == client.CodeLLMFailed:
		e.Kind, e.Message = KindLLMFailed, msgLLMFailed
	case code == client.CodeSuggestionsNotProcessed:
		if m := unprocessedPattern.FindStringSubmatch(apiErr.Message); m != nil {
			missing, _ := strconv.Atoi(m[1])
			total, _ := strconv.Atoi(m[2])
			parsed := unprocessedError(missing, total)
			parsed.err = err
			return parsed
		}
		e.Kind, e.Message = KindSuggestionsNotProcessed, orDefault(apiErr.Message, msgUnprocessed)
	case code == client.CodeRateLimitExceeded || status == http.StatusTooManyRequests:
		e.Kind, e.Message = KindRateLimitExceeded, msgRateLimit
	default:
		e.Kind = KindUnknown
		if code != "" {
			e.Kind = Kind(code)
		}
		e.Message = orDefault(apiErr.Message, msgRequest)
	}
	return e
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
