/*
Package wasm loads the Lisp evaluator from a WebAssembly module through Extism.

The module must export a function (by default "run") that reads the source text from the
Extism input and writes the output text. The module is compiled once, in Acquire; every Run
gets a fresh instance, since Extism plugin instances are not safe for concurrent use.
*/
package wasm
