/*
Package ports defines the driven ports (interfaces) of the Lisper playground.

These interfaces decouple the orchestration core from the environment it runs in, allowing
the same core to be driven by a web page, a terminal editor or an MCP client, backed by
different evaluators and storage.

# Key Interfaces

  - Evaluator: the opaque Lisp engine, a single run(source) -> output entry point.
  - EvaluatorProvider: acquires an Evaluator (e.g. compiles a wasm module, locates a binary).
  - SnapshotStore: persists session snapshots so a session survives a server restart or moves between replicas.
  - DistributedLocker: provides distributed locking for handling concurrent session access.
*/
package ports
