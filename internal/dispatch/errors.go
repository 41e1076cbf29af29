package dispatch

import (
	"errors"
	"fmt"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/storage/smb"
)

// ErrorKind classifies a dispatch failure.
type ErrorKind string

const (
	// KindValidation: a required field is missing or unusable. Raised
	// before any remote call.
	KindValidation ErrorKind = "validation"
	// KindAuthentication: credentials could not be found or the share
	// rejected them.
	KindAuthentication ErrorKind = "authentication"
	// KindRemote: the primary remote command failed.
	KindRemote ErrorKind = "remote_operation"
	// KindParse: remote output did not have the expected shape.
	KindParse ErrorKind = "parse"
)

// Error is the single failure returned for a request.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a validation Error with the given reason.
func Validation(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

// KindOf returns the kind of err, or "" when err is not a dispatch Error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// wrap classifies a failure from the share layer.
func wrap(reason string, err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	kind := KindRemote
	switch {
	case errors.Is(err, smb.ErrAuthentication):
		kind, reason = KindAuthentication, "Could not connect to the share"
	case errors.Is(err, smb.ErrInvalidPath), errors.Is(err, smb.ErrInvalidCredentials):
		kind = KindValidation
	}
	return &Error{Kind: kind, Reason: reason, Err: err}
}
