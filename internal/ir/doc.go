// Package ir provides the runtime value algebra and script tree types for icrepl.
//
// This package contains the Candid value and type model, principals, the
// expression and statement tree consumed by the engine, and the canonical
// JSON used for outgoing message records. All other internal packages import
// ir; ir imports nothing internal.
//
// Key design constraints:
//   - Values are immutable once constructed
//   - Records are kept sorted by label id with unique labels
//   - Equality is only defined between values with identical type tags
//   - All JSON tags use snake_case
package ir
