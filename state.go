package modgraph

// State is the lifecycle state of a node in the component tree.
type State int

const (
	// StateCreated nodes have an instance but no bound configuration yet.
	StateCreated State = iota
	// StateConfigured nodes are bound and their configure hooks have run.
	StateConfigured
	StateStarting
	StateStarted
	StateStopping
	StateStopped
	// StateFailed nodes had a configure or start hook fail.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateConfigured:
		return "CONFIGURED"
	case StateStarting:
		return "STARTING"
	case StateStarted:
		return "STARTED"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
