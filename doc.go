/*
Package lisper is an interactive Lisp playground core: type Lisp source, see it highlighted,
and see the result of evaluating it as you type.

The core is evaluator-agnostic. The Lisp engine is an opaque run(source) -> output function
acquired through a ports.EvaluatorProvider, either a WebAssembly module (pkg/adapters/wasm) or
an external interpreter (pkg/adapters/process). It is loaded at most once, on first use.

# Concept

Every edit replaces the session source and starts an evaluation. Evaluations run concurrently
and complete in any order; each call carries a sequence number, and a result is only committed
if the ordering policy admits it, so a slow stale result never overwrites a newer one. The
session state (source, output, theme) is a single-writer store that readers observe as whole
snapshots.

# Key Features

  - Lazy, single-flight evaluator loading with a permanent failed state.
  - Sequence-numbered commits with selectable ordering policies.
  - Round-trip syntax highlighting that never fails, even on unbalanced input.
  - Persistent sessions (memory, redis, bbolt) with distributed locking.
  - HTTP editor with server-sent events, an MCP tool server and a terminal editor.

# Usage

	cfg := config.Default()
	cfg.Evaluator.Path = "lisp.wasm"

	pg, err := lisper.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pg.Close(context.Background())

	call, err := pg.Eval(context.Background(), "(+ 1 2)")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(call.Output())
*/
package lisper
