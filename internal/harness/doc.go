// Package harness runs scripted conformance scenarios against a replica.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: greet_and_count
//	description: "Greets a caller and bumps the counter"
//	offline: false
//	canisters:
//	  greeter:
//	    id: rrkah-fqaaa-aaaaa-aaaaq-cai
//	    did: greeter.did          # or candid: "service : { ... }"
//	replies:
//	  greeter.greet: '("hello")'
//	script: |
//	  let r = call greeter.greet("a");
//	steps:
//	  - let: n
//	    exp: call greeter.inc(1)
//	  - show: n
//	  - assert: r
//	    equals: '"hello"'
//	  - function: double
//	    params: [x]
//	    body:
//	      - exp: add(x, x)
//	expect:
//	  output: ['"hello"']
//	  error: ""
//	  messages: 0
//
// The script block runs before the steps. Every canister alias is bound to
// its principal. Replies are Candid argument lists, cast to the return types
// the canister's interface declares, and are only used when the scenario runs
// against the in-memory replica.
//
// # Expectations
//
//   - output: exact lines printed by show statements
//   - output_contains: substrings that must appear in the output
//   - error: substring of the error the run must fail with
//   - messages: number of messages signed in offline mode
//   - calls: methods the replica must have seen, in order
package harness
