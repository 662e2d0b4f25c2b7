package research

type EventType string

const (
	EventNewAction    EventType = "new-action"
	EventSourcesFound EventType = "sources-found"
)

// ProgressEvent is reported to the caller while a run is in flight.
type ProgressEvent struct {
	Type    EventType     `json:"type"`
	Action  *Action       `json:"action,omitempty"`
	Sources *SourcesFound `json:"sources,omitempty"`
}

// SourcesFound lists the sources discovered by one retrieval round.
type SourcesFound struct {
	Sources []Source `json:"sources"`
	Query   string   `json:"query"`
}

// ProgressSink receives progress events in emission order.
type ProgressSink interface {
	Emit(ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) Emit(ev ProgressEvent) { f(ev) }

type discardSink struct{}

func (discardSink) Emit(ProgressEvent) {}
