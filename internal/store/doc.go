// Package store provides SQLite-backed persistence for the REPL.
//
// Two tables are kept:
//   - messages: every message signed in offline mode, in signing order
//   - interfaces: Candid sources fetched from canisters, reused across runs
//
// Messages are content addressed by ir.MessageDigest, so appending the same
// message twice stores it once. Ordering always uses the seq column, a
// logical clock that continues across sessions (see LastSeq).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
