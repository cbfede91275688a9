// Package connecterr classifies the failures of a synchronization run.
//
// Every error produced by the engine is marked with exactly one of the
// sentinel categories below so that callers can decide how to report it with
// errors.Is, independent of the wrapping chain.
package connecterr

import (
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
)

// Error categories
var (
	// ErrConfiguration covers a bad instance alias, a missing instance id or
	// missing credentials.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuthentication covers rejected credentials, a missing session cookie
	// and failed federation exchanges.
	ErrAuthentication = errors.New("authentication error")

	// ErrProtocolDrift signals that the console markup or contract changed.
	// Retrying never helps.
	ErrProtocolDrift = errors.New("console protocol changed")

	// ErrValidation covers local input the operator must fix.
	ErrValidation = errors.New("validation error")

	// ErrRemoteRejection covers HTTP errors returned by the console.
	ErrRemoteRejection = errors.New("rejected by console")

	// ErrNotAuthenticated is returned when a console call is made without a
	// session token.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Configuration returns a new configuration error.
func Configuration(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// Authentication returns a new authentication error.
func Authentication(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrAuthentication)
}

// ProtocolDrift returns a new protocol drift error.
func ProtocolDrift(format string, args ...interface{}) error {
	return errors.WithHint(
		errors.Mark(errors.Newf(format, args...), ErrProtocolDrift),
		"the console may have changed; check for an updated release or re-run with --log-level debug",
	)
}

// Validation returns a new validation error.
func Validation(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// RemoteRejection returns a new remote rejection error.
func RemoteRejection(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrRemoteRejection)
}

// MarkAuthentication tags err as an authentication failure.
func MarkAuthentication(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrAuthentication)
}

// MarkConfiguration tags err as a configuration failure.
func MarkConfiguration(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrConfiguration)
}

// ExitCode maps an error to the process exit code. A batch of errors
// collected with multierror exits with the code of its first error when that
// error is classified; otherwise the categories marked on err decide.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		if code := ExitCode(merr.Errors[0]); code != 1 {
			return code
		}
	}
	return category(err)
}

func category(err error) int {
	switch {
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return 2
	case errors.Is(err, ErrAuthentication):
		return 3
	case errors.Is(err, ErrProtocolDrift):
		return 4
	case errors.Is(err, ErrRemoteRejection):
		return 5
	default:
		return 1
	}
}

// Hints returns the operator hints attached anywhere in the error chain,
// including every error of a batch, without duplicates.
func Hints(err error) []string {
	all := errors.GetAllHints(err)
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			all = append(all, errors.GetAllHints(e)...)
		}
	}

	var hints []string
	seen := map[string]bool{}
	for _, h := range all {
		if !seen[h] {
			seen[h] = true
			hints = append(hints, h)
		}
	}
	return hints
}
