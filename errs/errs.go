// Package errs holds the error kinds shared by the credential, codec and
// submission packages. Boundary code (controllers, cli) maps kinds to
// user-facing status; core packages only attach them.
package errs

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure by how a caller should react to it.
type Kind uint8

const (
	Other Kind = iota
	// Validation is malformed or missing input. Never retried.
	Validation
	// Cryptographic is a proof generation or local pre-verification failure.
	// Identical inputs fail identically, so it is never retried.
	Cryptographic
	// RelayRejection is a structured error returned by the bundler.
	RelayRejection
	// TransportTimeout means no answer arrived within the polling budget.
	// Callers may poll again later.
	TransportTimeout
	// Unavailable means the service lacks what the operation needs, such
	// as a signing key.
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Cryptographic:
		return "cryptographic"
	case RelayRejection:
		return "relay rejection"
	case TransportTimeout:
		return "transport timeout"
	case Unavailable:
		return "unavailable"
	}
	return "other"
}

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// Ef builds a classified error from a format string.
func Ef(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RelayError carries the structured rejection returned by a bundler.
type RelayError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *RelayError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("bundler error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("bundler error %d: %s", e.Code, e.Message)
}
