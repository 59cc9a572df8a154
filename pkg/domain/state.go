package domain

// OutputWaiting is the output shown before the first evaluation completes.
const OutputWaiting = "waiting"

// SampleSource is the example program a new session starts with.
const SampleSource = "(def a 10)\n(def b 11)\n(+ a b)"

// EvaluationStatus tells readers whether the output reflects the current source.
type EvaluationStatus string

const (
	StatusIdle        EvaluationStatus = "idle"        // No evaluation requested yet
	StatusPending     EvaluationStatus = "pending"     // A call newer than the committed output is in flight
	StatusReady       EvaluationStatus = "ready"       // Output belongs to the newest call
	StatusUnavailable EvaluationStatus = "unavailable" // The evaluator could not be loaded
)

// Snapshot is a consistent view of a session's observable state.
// Snapshots are values; readers never observe a partially applied write.
type Snapshot struct {
	SessionID string `json:"session_id"`

	// Source is the text the editor shows. It is updated before evaluation begins.
	Source string `json:"source"`

	// Output is the text of the most recently committed evaluation.
	Output string `json:"output"`

	// Theme is the current display theme.
	Theme Theme `json:"theme"`

	// Status summarises the relation between Source and Output.
	Status EvaluationStatus `json:"status"`

	// Started is the sequence number of the newest evaluate call.
	Started uint64 `json:"started"`

	// Committed is the sequence number the current Output belongs to.
	Committed uint64 `json:"committed"`

	// Revision increases by one on every write to any field.
	Revision uint64 `json:"revision"`
}

// NewSnapshot creates the initial state of a session.
func NewSnapshot(sessionID, source string, theme Theme) Snapshot {
	if theme == "" {
		theme = DefaultTheme
	}
	return Snapshot{
		SessionID: sessionID,
		Source:    source,
		Output:    OutputWaiting,
		Theme:     theme,
		Status:    StatusIdle,
	}
}

// Settled reports whether no evaluation newer than the committed output is in flight.
func (s Snapshot) Settled() bool {
	return s.Committed >= s.Started
}
