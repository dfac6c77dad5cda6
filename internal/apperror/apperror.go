// Package apperror implements the closed taxonomy of aggregation failures.
//
// Every kind is tagged with an owner (user, provider, us) that selects the
// HTTP status a hosting surface would report; the core only needs the kind
// and owner, never a raw status code picked ad hoc at the call site.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Owner classifies who is responsible for a failure.
type Owner int

const (
	OwnerUser Owner = iota
	OwnerProvider
	OwnerOurs
)

func (o Owner) statusCode() int {
	switch o {
	case OwnerUser:
		return http.StatusBadRequest
	case OwnerProvider:
		return http.StatusConflict
	case OwnerOurs:
		return http.StatusExpectationFailed
	default:
		return http.StatusInternalServerError
	}
}

// Kind is the closed set of failure kinds the engine can produce.
type Kind string

const (
	// user-owned (400)
	KindInsufficientBalance   Kind = "InsufficientBalance"
	KindInsufficientAllowance Kind = "InsufficientAllowance"
	KindInvalidTokens         Kind = "InvalidTokens"
	KindEstimationFailed      Kind = "EstimationFailed"

	// provider-owned (409)
	KindInsufficientLiquidity Kind = "InsufficientLiquidity"
	KindPriceUnavailable      Kind = "PriceUnavailable"
	KindProviderTimeout       Kind = "ProviderTimeout"
	KindProviderUnspecified   Kind = "ProviderUnspecified"

	// our-owned (417)
	KindValidationFailed       Kind = "ValidationFailed"
	KindParseResponse          Kind = "ParseResponse"
	KindProviderNotFound       Kind = "ProviderNotFound"
	KindSpenderAddressNotFound Kind = "SpenderAddressNotFound"
)

var kindOwner = map[Kind]Owner{
	KindInsufficientBalance:   OwnerUser,
	KindInsufficientAllowance: OwnerUser,
	KindInvalidTokens:         OwnerUser,
	KindEstimationFailed:      OwnerUser,

	KindInsufficientLiquidity: OwnerProvider,
	KindPriceUnavailable:      OwnerProvider,
	KindProviderTimeout:       OwnerProvider,
	KindProviderUnspecified:   OwnerProvider,

	KindValidationFailed:       OwnerOurs,
	KindParseResponse:          OwnerOurs,
	KindProviderNotFound:       OwnerOurs,
	KindSpenderAddressNotFound: OwnerOurs,
}

// Error is the typed error carried through the engine and out to a hosting
// surface. It never leaves the kind/owner pairing up to the call site.
type Error struct {
	Kind         Kind
	ProviderName string
	Message      string
	Details      map[string]interface{}
	Err          error
}

func (e *Error) Error() string {
	if e.ProviderName != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.ProviderName, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Owner reports who is responsible for this error.
func (e *Error) Owner() Owner { return kindOwner[e.Kind] }

// StatusCode is the HTTP status a hosting surface would report.
func (e *Error) StatusCode() int { return e.Owner().statusCode() }

// New builds a typed error of the given kind.
func New(kind Kind, providerName, message string, err error) *Error {
	return &Error{Kind: kind, ProviderName: providerName, Message: message, Err: err}
}

// WithDetails attaches structured detail fields and returns the receiver.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// LogFields renders the error as structured logger fields.
func (e *Error) LogFields() map[string]interface{} {
	f := map[string]interface{}{
		"kind":    string(e.Kind),
		"message": e.Message,
	}
	if e.ProviderName != "" {
		f["provider"] = e.ProviderName
	}
	for k, v := range e.Details {
		f[k] = v
	}
	return f
}

// ToBody renders the user-visible error body a hosting HTTP surface returns:
// {status, body: {error, reason, provider}}.
func (e *Error) ToBody() map[string]interface{} {
	return map[string]interface{}{
		"error":    string(e.Kind),
		"reason":   e.Message,
		"provider": e.ProviderName,
	}
}

// As reports whether err is (or wraps) an *Error of the given kind.
func As(err error, kind Kind) bool {
	var ae *Error
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Kind == kind
}

// Convenience constructors for the closed kind set.

func InsufficientBalance(provider, message string) *Error {
	return New(KindInsufficientBalance, provider, message, nil)
}

func InsufficientAllowance(provider, message string) *Error {
	return New(KindInsufficientAllowance, provider, message, nil)
}

func InvalidTokens(provider, message string) *Error {
	return New(KindInvalidTokens, provider, message, nil)
}

func EstimationFailed(provider, message string, err error) *Error {
	return New(KindEstimationFailed, provider, message, err)
}

func InsufficientLiquidity(provider, message string) *Error {
	return New(KindInsufficientLiquidity, provider, message, nil)
}

func PriceUnavailable(provider, message string) *Error {
	return New(KindPriceUnavailable, provider, message, nil)
}

func ProviderTimeout(provider string, err error) *Error {
	return New(KindProviderTimeout, provider, "request timed out", err)
}

func ProviderUnspecified(provider, message string, err error) *Error {
	return New(KindProviderUnspecified, provider, message, err)
}

func ValidationFailed(message string) *Error {
	return New(KindValidationFailed, "", message, nil)
}

func ParseResponse(provider, message string, err error) *Error {
	return New(KindParseResponse, provider, message, err)
}

func ProviderNotFound(provider, message string) *Error {
	return New(KindProviderNotFound, provider, message, nil)
}

func SpenderAddressNotFound(provider, message string) *Error {
	return New(KindSpenderAddressNotFound, provider, message, nil)
}

// NoPricesFound is the fatal-to-the-request error when every provider fails.
func NoPricesFound() *Error {
	return New(KindProviderUnspecified, "", "No prices found", nil)
}
