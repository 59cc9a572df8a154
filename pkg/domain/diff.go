package domain

// SnapshotDiff represents the changes between two snapshots.
// It is designed to be serialized to JSON for partial updates on the client.
type SnapshotDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	Revision  uint64            `json:"revision"`
	Source    *string           `json:"source,omitempty"`
	Output    *string           `json:"output,omitempty"`
	Theme     *Theme            `json:"theme,omitempty"`
	Status    *EvaluationStatus `json:"status,omitempty"`
	Started   *uint64           `json:"started,omitempty"`
	Committed *uint64           `json:"committed,omitempty"`
}

// Diff calculates the difference between oldSnap and newSnap.
// If oldSnap is nil, it returns a diff carrying every field of newSnap (initial load).
// It returns nil when nothing observable changed.
func Diff(oldSnap, newSnap *Snapshot) *SnapshotDiff {
	if newSnap == nil {
		return nil
	}

	diff := &SnapshotDiff{
		SessionID: newSnap.SessionID,
		Revision:  newSnap.Revision,
	}

	if oldSnap == nil || oldSnap.Source != newSnap.Source {
		diff.Source = &newSnap.Source
	}
	if oldSnap == nil || oldSnap.Output != newSnap.Output {
		diff.Output = &newSnap.Output
	}
	if oldSnap == nil || oldSnap.Theme != newSnap.Theme {
		diff.Theme = &newSnap.Theme
	}
	if oldSnap == nil || oldSnap.Status != newSnap.Status {
		diff.Status = &newSnap.Status
	}
	if oldSnap == nil || oldSnap.Started != newSnap.Started {
		diff.Started = &newSnap.Started
	}
	if oldSnap == nil || oldSnap.Committed != newSnap.Committed {
		diff.Committed = &newSnap.Committed
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.Source == nil &&
		d.Output == nil &&
		d.Theme == nil &&
		d.Status == nil &&
		d.Started == nil &&
		d.Committed == nil
}

// Apply merges the diff into s and returns the result.
func (d *SnapshotDiff) Apply(s Snapshot) Snapshot {
	s.SessionID = d.SessionID
	s.Revision = d.Revision
	if d.Source != nil {
		s.Source = *d.Source
	}
	if d.Output != nil {
		s.Output = *d.Output
	}
	if d.Theme != nil {
		s.Theme = *d.Theme
	}
	if d.Status != nil {
		s.Status = *d.Status
	}
	if d.Started != nil {
		s.Started = *d.Started
	}
	if d.Committed != nil {
		s.Committed = *d.Committed
	}
	return s
}
