/*
Package session holds the observable state of editing sessions.

A Store owns one session's snapshot: the source text, the output text and the theme, plus the
sequence numbers that order evaluations. Every write replaces the snapshot under a lock, so a
reader always sees a complete value. The orchestrator is the only writer of source and output;
ToggleTheme is the only writer of the theme.

The Manager keeps the live sessions of a process. It restores sessions from a
ports.SnapshotStore, starts new ones from the sample program, writes every change through to
the store and serializes lifecycle operations per session, optionally across replicas through
a ports.DistributedLocker.
*/
package session
