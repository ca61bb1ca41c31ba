package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed fetch.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindConfiguration
	KindAPI
	KindDecode
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindConfiguration:
		return "configuration"
	case KindAPI:
		return "api"
	case KindDecode:
		return "decode"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Provider error codes with dedicated messages.
const (
	CodeInvalidKey       = "invalid-key"
	CodeInactiveAccount  = "inactive-account"
	CodeUnsupportedCode  = "unsupported-code"
	CodeMalformedRequest = "malformed-request"
	CodeQuotaReached     = "quota-reached"
)

// FetchError is returned by rate and catalog fetches.
type FetchError struct {
	Kind ErrorKind
	// Code is the provider's error-type, set for KindAPI.
	Code string
	// Status is the HTTP status when one was received.
	Status int
	Err    error
}

// Sentinels for errors.Is. They match any FetchError of the same kind.
var (
	ErrTransport     = &FetchError{Kind: KindTransport}
	ErrConfiguration = &FetchError{Kind: KindConfiguration}
	ErrAPI           = &FetchError{Kind: KindAPI}
	ErrDecode        = &FetchError{Kind: KindDecode}
	ErrTimeout       = &FetchError{Kind: KindTimeout}
)

func (e *FetchError) Error() string {
	msg := e.Kind.String() + " error"
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches sentinels by kind, and by code when the target carries one.
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

func NewConfigurationError(msg string) *FetchError {
	return &FetchError{Kind: KindConfiguration, Err: errors.New(msg)}
}

func NewTransportError(status int, err error) *FetchError {
	return &FetchError{Kind: KindTransport, Status: status, Err: err}
}

func NewAPIError(status int, code string) *FetchError {
	return &FetchError{Kind: KindAPI, Status: status, Code: code}
}

func NewDecodeError(err error) *FetchError {
	return &FetchError{Kind: KindDecode, Err: err}
}

func NewTimeoutError(err error) *FetchError {
	return &FetchError{Kind: KindTimeout, Err: err}
}

// KindOf returns the kind of err, treating unknown errors as transport failures.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransport
}

var apiMessages = map[string]string{
	CodeInvalidKey:       "The exchange API key is invalid.",
	CodeInactiveAccount:  "The exchange API account is inactive.",
	CodeUnsupportedCode:  "This currency is not supported by the rate provider.",
	CodeMalformedRequest: "The request to the rate provider was malformed.",
	CodeQuotaReached:     "The exchange API request quota has been reached.",
}

// Describe turns a fetch error into a message suitable for display.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		return "Failed to load data: " + err.Error()
	}
	switch fe.Kind {
	case KindConfiguration:
		return "The exchange API key is not configured."
	case KindAPI:
		if msg, ok := apiMessages[fe.Code]; ok {
			return msg
		}
		if fe.Code == "" {
			return "The rate provider returned an error."
		}
		return fmt.Sprintf("The rate provider returned an error (%s).", fe.Code)
	case KindDecode:
		return "The rate provider sent an unexpected response."
	case KindTimeout:
		return "The rate provider took too long to respond."
	default:
		return "Could not reach the rate provider."
	}
}

// Classify gives err a kind if it has none. Deadline errors, from err or
// from ctx, become timeouts and everything else a transport failure.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	return NewTransportError(0, err)
}
