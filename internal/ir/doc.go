// Package ir holds the shared data model: identifiers, primitive values,
// the schema (templates, library operatives, library instances, traits) and
// the runtime shapes (instance records, edges, blueprints).
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key constraints:
//   - Identifiers are 128-bit UIDs rendered as hyphenated UUIDs
//   - A Schema is immutable once handed out; edits go through Clone
//   - Edge lists are kept sorted so reversed blueprints restore state exactly
//   - All JSON tags use snake_case
package ir
