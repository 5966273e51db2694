// Package detector finds running processes that match a strategy.
package detector

import (
	"context"

	"github.com/loykin/librarylink/internal/process"
)

// Detector is a strategy that locates a running process.
// It must be safe for concurrent use.
type Detector interface {
	// Detect returns a matching process not listed in exclude.
	Detect(ctx context.Context, exclude ...uint32) (process.Record, bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

// Lister takes a process snapshot. process.List satisfies it.
type Lister func(ctx context.Context) ([]process.Record, error)
