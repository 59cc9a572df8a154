/*
Package observability turns lifecycle hooks into structured logs.

It complements pkg/metrics: metrics count what happens, LogHooks records each transition
with its session and sequence number so a single evaluation can be traced through the logs.
*/
package observability
