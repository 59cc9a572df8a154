/*
Package orchestrator sequences evaluation of editor source.

Every call to Evaluate performs the same four steps:

 1. the new source is written to the session state, synchronously, before Evaluate returns;
 2. the evaluator is obtained from the loader, waiting for it to load if necessary;
 3. the evaluator runs the source;
 4. the result is committed to the session state, if the ordering policy admits it.

Steps 2 to 4 run on their own goroutine. Each call carries a sequence number taken in step 1,
and the commit in step 4 is decided atomically against the newest started and last committed
sequence numbers, so overlapping calls never leave a stale result on screen under the default
policy.

The orchestrator never reports evaluation failures to its caller. A load failure becomes the
output "evaluator unavailable: <cause>" and a failure of the evaluator itself becomes
"error: <cause>". Whatever text the evaluator returns, including Lisp error messages, is
committed verbatim.
*/
package orchestrator
