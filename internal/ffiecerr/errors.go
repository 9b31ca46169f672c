// Package ffiecerr defines the error taxonomy shared by every layer of the
// FFIEC client: typed codes, retryability hints, and the optional legacy
// collapse mode for callers that predate the taxonomy.
package ffiecerr

import (
	"errors"
	"fmt"
	"time"
)

const (
	CodeValidation = "E_VALIDATION"
	CodeCredential = "E_CREDENTIAL"
	CodeRateLimit  = "E_RATE_LIMIT"
	CodeNoData     = "E_NO_DATA"
	CodeConnection = "E_CONNECTION"
	CodeParse      = "E_PARSE"
	CodeSession    = "E_SESSION"
)

// Error wraps FFIEC webservice failures with a code and retryability hint.
type Error struct {
	Code      string
	Retryable bool
	Err       error

	// Details carries structured context (field, value, expected, URL).
	Details map[string]string

	// RetryAfter is set on rate-limit errors when the server supplied a hint.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error         { return e.Err }
func (e *Error) CodeValue() string     { return e.Code }
func (e *Error) RetryableStatus() bool { return e.Retryable }

func wrap(code string, retryable bool, err error) *Error {
	return &Error{Code: code, Retryable: retryable, Err: err}
}

// Validation reports a rejected input. Field, value, and expectation land in
// Details so callers can surface precise feedback.
func Validation(field string, value any, expected string) *Error {
	e := wrap(CodeValidation, false, fmt.Errorf("invalid %s: got %v, expected %s", field, value, expected))
	e.Details = map[string]string{
		"field":    field,
		"value":    fmt.Sprintf("%v", value),
		"expected": expected,
	}
	return e
}

// Credential reports rejected or malformed credentials.
func Credential(err error) *Error {
	return wrap(CodeCredential, false, err)
}

// RateLimit reports an upstream throttle response with its retry hint.
func RateLimit(retryAfter time.Duration, err error) *Error {
	e := wrap(CodeRateLimit, true, err)
	e.RetryAfter = retryAfter
	return e
}

// NoData reports a well-formed request for which the service holds nothing.
func NoData(err error) *Error {
	return wrap(CodeNoData, false, err)
}

// Connection reports transport-level failure. Retryable.
func Connection(err error) *Error {
	return wrap(CodeConnection, true, err)
}

// snippetLimit caps how much of a bad payload a parse error carries.
const snippetLimit = 200

// Parse reports an unparseable payload, keeping a truncated snippet for
// diagnosis without dragging whole facsimiles into error chains.
func Parse(err error, payload []byte) *Error {
	e := wrap(CodeParse, false, err)
	if len(payload) > 0 {
		snippet := payload
		if len(snippet) > snippetLimit {
			snippet = snippet[:snippetLimit]
		}
		e.Details = map[string]string{"snippet": string(snippet)}
	}
	return e
}

// Session reports a failure constructing or reusing a cached client.
func Session(err error) *Error {
	return wrap(CodeSession, false, err)
}

// =============================================================================
// KIND PREDICATES
// =============================================================================

func is(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func IsValidation(err error) bool { return is(err, CodeValidation) }
func IsCredential(err error) bool { return is(err, CodeCredential) }
func IsRateLimit(err error) bool  { return is(err, CodeRateLimit) }
func IsNoData(err error) bool     { return is(err, CodeNoData) }
func IsConnection(err error) bool { return is(err, CodeConnection) }
func IsParse(err error) bool      { return is(err, CodeParse) }
func IsSession(err error) bool    { return is(err, CodeSession) }

// Retryable reports whether the error is worth retrying at all.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// =============================================================================
// LEGACY MODE
// =============================================================================

// Legacy collapses a typed error into a plain generic error carrying only the
// message, for callers written against the original single-exception surface.
// The toggle is per-client, never ambient; this helper does the collapsing.
func Legacy(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return errors.New(e.Error())
	}
	return err
}
