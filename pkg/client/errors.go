package client

import (
	"errors"
	"fmt"
)

// Kind classifies a download failure. Every failure that leaves the client or the
// download engine carries exactly one Kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthenticationRequired
	KindNotFound
	KindRangeNotSatisfiable
	KindTimeout
	KindNetworkTransient
	KindNoDestination
	KindSizeUnknown
	KindDestinationExists
	KindSizeMismatchWarning
	KindIOFailure
)

var kindNames = map[Kind]string{
	KindUnknown:                "Unknown",
	KindAuthenticationRequired: "AuthenticationRequired",
	KindNotFound:               "NotFound",
	KindRangeNotSatisfiable:    "RangeNotSatisfiable",
	KindTimeout:                "Timeout",
	KindNetworkTransient:       "NetworkTransient",
	KindNoDestination:          "NoDestination",
	KindSizeUnknown:            "SizeUnknown",
	KindDestinationExists:      "DestinationExists",
	KindSizeMismatchWarning:    "SizeMismatchWarning",
	KindIOFailure:              "IOFailure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinels for errors.Is matching against an *Error of the same Kind.
var (
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrRangeNotSatisfiable    = &Error{Kind: KindRangeNotSatisfiable}
	ErrTimeout                = &Error{Kind: KindTimeout}
	ErrNetworkTransient       = &Error{Kind: KindNetworkTransient}
	ErrNoDestination          = &Error{Kind: KindNoDestination}
	ErrSizeUnknown            = &Error{Kind: KindSizeUnknown}
	ErrDestinationExists      = &Error{Kind: KindDestinationExists}
	ErrSizeMismatch           = &Error{Kind: KindSizeMismatchWarning}
	ErrIOFailure              = &Error{Kind: KindIOFailure}
)

// Error is the discriminated failure value returned across the client and
// download boundaries. Message is suitable for direct display to a user.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

var _ error = &Error{}

func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same Kind, which lets the
// package level sentinels be used with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
