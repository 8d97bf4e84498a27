// Package engine evaluates icrepl scripts.
//
// A Session owns everything shared by one script run: the transport to the
// replica, the canister interface cache, the offline message log and the
// worker pool used by parallel calls. An Env is a variable scope within a
// session; function calls and proxy calls spawn child scopes that share the
// session but copy the parent's variables.
//
// EVALUATION MODEL:
//
// Expressions are reduced on a single goroutine, arguments left to right.
// Builtins are dispatched through a table of descriptors; lazy builtins
// (ite, exist, export) receive unevaluated expressions.
//
// A parallel call is the only concurrent construct. Its arguments are
// evaluated and encoded on the evaluation goroutine; only the network calls
// run on the session pool. Results are returned in submission order and
// the batch fails fast.
//
// OFFLINE MODE:
//
// With an offline session, calls are signed instead of sent. Each signed
// envelope is appended to the message log, written to the sink as one JSON
// line and the call yields an empty result.
package engine
