//go:build !windows

package activation

import (
	"context"
	"errors"
)

type unsupported struct{}

// System returns the platform activator. Activation is only available on Windows.
func System() Activator { return unsupported{} }

func (unsupported) Activate(_ context.Context, req Request) (uint32, error) {
	return 0, &Error{Kind: PlatformFailure, ActivationID: req.ActivationID, Err: errors.ErrUnsupported}
}
