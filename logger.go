package modgraph

// Logger defines the interface for application logging.
// modgraph uses structured logging with key-value pairs:
//
//	logger.Info("Node started", "node", "http/main/a", "kind", "submodule")
//
// *slog.Logger satisfies the interface directly.
type Logger interface {
	// Info logs normal lifecycle events such as application start and stop.
	Info(msg string, args ...any)

	// Error logs failures that do not stop the current operation, for example
	// an isolated shutdown failure on one node.
	Error(msg string, args ...any)

	// Warn logs unusual conditions such as a hook exceeding its timeout.
	Warn(msg string, args ...any)

	// Debug logs per-node transitions and build details.
	Debug(msg string, args ...any)
}
