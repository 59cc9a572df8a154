/*
Package domain contains the core data model of the Lisper playground.

It defines the observable state of an editing session and the values that flow between the
orchestrator, the evaluator loader and the render layer. This package is kept pure and free of
external dependencies like I/O or persistence.

# Key Entities

  - Snapshot: the three observable fields of a session (source, output, theme) plus the
    bookkeeping the orchestrator needs to order commits (sequence numbers, status).
  - Theme: the two-state light/dark display setting.
  - LoaderStatus: the tagged variant describing the evaluator handle (unloaded, loading, loaded, failed).
  - OrderingPolicy: how overlapping evaluations are committed.
  - LifecycleHooks: observability callbacks fired on every state transition.
*/
package domain
