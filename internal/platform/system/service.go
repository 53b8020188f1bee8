// Package system provides the lifecycle contract long-running gateway
// components implement (the orchestrator runner, the event bus listener,
// background cache/GC jobs) so the process entry point can start and stop
// them deterministically.
package system

import (
	"context"

	core "github.com/nlsql/gateway/internal/platform/core"
)

// Service represents a lifecycle-managed component. All background
// components must implement this interface so the system manager can start
// and stop them deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DescriptorProvider optionally advertises service metadata (layer, capabilities).
type DescriptorProvider interface {
	Descriptor() core.Descriptor
}
