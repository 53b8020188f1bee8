// Package core holds small, dependency-free contracts shared across the
// gateway's pipeline stages: service descriptors, tracing, retry policy,
// and list-limit clamping.
package core

// Layer describes the architectural slice a component belongs to: the HTTP
// boundary, an adapter to an external collaborator, a pipeline engine stage,
// a data/cache tier, or a cross-cutting security concern.
type Layer string

const (
	LayerIngress  Layer = "ingress"
	LayerAdapter  Layer = "adapter"
	LayerEngine   Layer = "engine"
	LayerData     Layer = "data"
	LayerSecurity Layer = "security"
)

// Descriptor advertises a component's placement and capabilities. It is
// optional and does not change runtime behavior, but lets the system runner
// and status endpoints reason about the running module set uniformly.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
}

// WithCapabilities returns a copy of the descriptor with additional
// capabilities appended.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	combined = append(combined, caps...)
	d.Capabilities = combined
	return d
}
