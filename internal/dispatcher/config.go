package dispatcher

// Config configures a Dispatcher. The zero value is read-write, collects
// no metrics and lets handler panics propagate.
type Config struct {
	// ReadOnly refuses every command outside the read-only whitelist.
	ReadOnly bool

	// CollectMetrics enables Metrics.
	CollectMetrics bool

	// RecoverPanics rolls back a command whose handler panicked and
	// reports ReasonHandlerPanic. Contract violations always propagate.
	RecoverPanics bool
}

// DefaultConfig recovers handler panics.
func DefaultConfig() Config {
	return Config{RecoverPanics: true}
}
