package domain

// LoaderPhase is the discriminant of LoaderStatus.
type LoaderPhase string

const (
	LoaderUnloaded LoaderPhase = "unloaded"
	LoaderLoading  LoaderPhase = "loading"
	LoaderLoaded   LoaderPhase = "loaded"
	LoaderFailed   LoaderPhase = "failed"
)

// LoaderStatus describes the evaluator handle.
// Phases only move forward: unloaded -> loading -> loaded | failed.
type LoaderStatus struct {
	Phase LoaderPhase `json:"phase"`
	// Error holds the load failure when Phase is LoaderFailed.
	Error string `json:"error,omitempty"`
}

// Terminal reports whether the loader reached a final phase.
func (s LoaderStatus) Terminal() bool {
	return s.Phase == LoaderLoaded || s.Phase == LoaderFailed
}
