package modgraph

import (
	"github.com/GoCodeAlone/modgraph/phase"
)

// Introspector is the read-only view of an application. Every application
// registers itself under this interface so that modules can inject it.
type Introspector interface {
	ID() string
	Name() string
	Phase() phase.Phase
	Snapshot() []NodeInfo
}

// NodeInfo describes one node at the time of a Snapshot.
type NodeInfo struct {
	Path       string `json:"path"`
	Kind       Kind   `json:"kind"`
	State      State  `json:"state"`
	AutoInvoke bool   `json:"autoInvoke,omitempty"`
}

// Snapshot lists every node depth-first with its current state.
func (a *Application) Snapshot() []NodeInfo {
	nodes := a.Nodes()
	out := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeInfo{
			Path:       n.path,
			Kind:       n.desc.kind,
			State:      n.State(),
			AutoInvoke: n.desc.autoInvoke,
		})
	}
	return out
}
