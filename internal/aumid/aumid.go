// Package aumid validates Application User Model IDs, the activation
// identifiers of packaged Windows applications.
package aumid

import (
	"errors"
	"fmt"
	"strings"
)

// Separator splits the package family name from the application id.
const Separator = "!"

// Kind classifies resolution failures.
type Kind int

const (
	// Malformed means the identifier is not PackageFamilyName!ApplicationId.
	Malformed Kind = iota + 1
)

func (k Kind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ErrMalformed matches any ResolutionError of kind Malformed via errors.Is.
var ErrMalformed = errors.New("malformed activation id")

// ResolutionError reports why an identifier could not be resolved.
type ResolutionError struct {
	Kind   Kind
	ID     string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrMalformed, e.ID, e.Reason)
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrMalformed && e.Kind == Malformed
}

// ID is a parsed activation identifier.
type ID struct {
	PackageFamilyName string
	ApplicationID     string
}

func (id ID) String() string { return id.PackageFamilyName + Separator + id.ApplicationID }

// Parse splits s into its two parts. Exactly one separator with non-empty
// text on both sides is required. s is taken as given; callers reading
// Get-StartApps output trim it there.
func Parse(s string) (ID, error) {
	if s == "" {
		return ID{}, malformed(s, "empty identifier")
	}
	switch n := strings.Count(s, Separator); {
	case n == 0:
		return ID{}, malformed(s, "missing '!' separator")
	case n > 1:
		return ID{}, malformed(s, fmt.Sprintf("expected one '!' separator, found %d", n))
	}
	family, app, _ := strings.Cut(s, Separator)
	if family == "" {
		return ID{}, malformed(s, "empty package family name")
	}
	if app == "" {
		return ID{}, malformed(s, "empty application id")
	}
	return ID{PackageFamilyName: family, ApplicationID: app}, nil
}

// Resolve returns the identifier unchanged once it passes the structural
// check. It does not consult installed packages.
func Resolve(s string) (string, error) {
	id, err := Parse(s)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Valid reports whether s is a well-formed activation id.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func malformed(id, reason string) error {
	return &ResolutionError{Kind: Malformed, ID: id, Reason: reason}
}
