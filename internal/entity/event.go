package entity

// EventKind tags the ProgressEvent variant.
type EventKind string

// Event kinds. Complete and error are terminal.
const (
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// Progress statuses.
const (
	StatusStarted      = "started"
	StatusTierComplete = "tier_complete"
	StatusSkipped      = "skipped"
)

// ProgressEvent is one frame of a run's event stream. Fields not used by
// a kind are left zero and omitted from JSON.
type ProgressEvent struct {
	Kind EventKind `json:"kind"`

	Tier          string `json:"tier,omitempty"`
	Status        string `json:"status,omitempty"`
	Found         int    `json:"found"`
	Target        int    `json:"target,omitempty"`
	CurrentSource string `json:"currentSource,omitempty"`

	Contacts []Contact `json:"contacts,omitempty"`
	Total    int       `json:"total"`

	Message string `json:"message,omitempty"`

	Logs []string `json:"logs"`
}

// Terminal reports whether the event ends the stream.
func (e ProgressEvent) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}
