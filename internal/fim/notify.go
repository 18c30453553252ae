package fim

// NotificationSink receives the summary of a completed scan. Implementations
// live in internal/notify: log, syslog, email, telegram, and metrics sinks.
type NotificationSink interface {
	// Name identifies the sink in logs.
	Name() string

	// Notify dispatches one summary. Errors are reported to the caller
	// but must not leave the sink in a broken state.
	Notify(summary NotifySummary) error
}

// Dispatcher fans a summary out to zero or more sinks. A failing sink is
// logged and skipped; it never aborts delivery to the others.
type Dispatcher struct {
	sinks  []NotificationSink
	logger Logger
}

// NewDispatcher creates a Dispatcher over the given sinks.
func NewDispatcher(logger Logger, sinks ...NotificationSink) *Dispatcher {
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Dispatch delivers the summary to every sink.
func (d *Dispatcher) Dispatch(summary NotifySummary) {
	for _, sink := range d.sinks {
		if err := sink.Notify(summary); err != nil {
			d.logger.Warn("notification sink failed", "sink", sink.Name(), "error", err)
		}
	}
}
