// Package agent speaks the replica HTTP interface: it builds and signs
// request envelopes, submits queries and calls, polls request status via
// read_state and looks values up in the returned certificates.
//
// Certificates are decoded and their hash trees walked, but the BLS
// signature is not verified.
package agent
