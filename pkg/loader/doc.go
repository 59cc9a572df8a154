/*
Package loader acquires the evaluator on demand, exactly once.

A Loader wraps a ports.EvaluatorProvider and moves through the phases of domain.LoaderStatus:

	unloaded -> loading -> loaded
	                    -> failed

The first EnsureLoaded call starts the acquisition. Callers that arrive while it is in flight
wait for the same acquisition; callers that arrive afterwards get the cached evaluator (or the
cached failure) immediately. A failed load is permanent: the loader never retries, and every
later call returns ErrEvaluatorUnavailable wrapping the original cause.

The acquisition runs on the loader's own context, so a caller that gives up waiting does not
abort the load for everyone else.
*/
package loader
