package inputmethod

import "time"

// EventKind names what a logged Event describes.
type EventKind string

const (
	EventCatalogRefreshed EventKind = "catalog.refreshed"
	EventCatalogStale     EventKind = "catalog.stale"
	EventCatalogFailed    EventKind = "catalog.failed"
	EventPayloadRejected  EventKind = "registry.payload_rejected"
	EventReconciled       EventKind = "enablement.reconciled"
	EventSaved            EventKind = "enablement.saved"
	EventSaveFailed       EventKind = "enablement.save_failed"
)

// Event is one structured log record emitted by the catalog and manager.
type Event struct {
	Kind       EventKind
	UserID     string
	Generation uint64
	Methods    int
	Enabled    string
	Selected   string
	Duration   time.Duration
	Err        error
}

// Logger receives events. Implementations must be safe for concurrent use.
type Logger interface {
	LogEvent(Event)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(Event)

func (f LoggerFunc) LogEvent(event Event) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogEvent(Event) {}
