package activation

import (
	"errors"
	"fmt"
)

// Kind classifies activation failures.
type Kind int

const (
	NotFound Kind = iota + 1
	AccessDenied
	PlatformFailure
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case AccessDenied:
		return "access_denied"
	case PlatformFailure:
		return "platform_failure"
	default:
		return "unknown"
	}
}

var (
	ErrNotFound        = errors.New("package not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrPlatformFailure = errors.New("activation failed")
)

// HRESULT values the activation manager reports.
const (
	hrFileNotFound           uint32 = 0x80070002 // HRESULT_FROM_WIN32(ERROR_FILE_NOT_FOUND)
	hrAccessDenied           uint32 = 0x80070005 // E_ACCESSDENIED
	hrNotFound               uint32 = 0x80070490 // HRESULT_FROM_WIN32(ERROR_NOT_FOUND)
	hrInstallPackageNotFound uint32 = 0x80073CF1 // HRESULT_FROM_WIN32(ERROR_INSTALL_PACKAGE_NOT_FOUND)
)

// Error is returned by Activator implementations and Service.Activate.
type Error struct {
	Kind         Kind
	ActivationID string
	Code         uint32 // HRESULT, 0 if none
	Err          error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.ActivationID, e.sentinel())
	if e.Code != 0 {
		msg += fmt.Sprintf(" (hresult 0x%08X)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.sentinel() }

func (e *Error) sentinel() error {
	switch e.Kind {
	case NotFound:
		return ErrNotFound
	case AccessDenied:
		return ErrAccessDenied
	default:
		return ErrPlatformFailure
	}
}

// FromHRESULT classifies a failed HRESULT for id.
func FromHRESULT(id string, hr uint32, err error) *Error {
	kind := PlatformFailure
	switch hr {
	case hrFileNotFound, hrNotFound, hrInstallPackageNotFound:
		kind = NotFound
	case hrAccessDenied:
		kind = AccessDenied
	}
	return &Error{Kind: kind, ActivationID: id, Code: hr, Err: err}
}

// Outcome is the metrics label for err.
func Outcome(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.String()
	}
	return PlatformFailure.String()
}
