// Package builder stages composite graph edits and compiles them into
// blueprints.
//
// A Builder creates one instance (New) or edits a live one (Edit). Builders
// nest: AddNew builds a child in place, and Incorporate merges any other
// builder, so a whole subgraph can be staged and committed as one
// blueprint. Instances not yet committed are referenced either by the UID
// their builder already holds or by a temporary id (SetTempID, Temporary)
// resolved at compile time.
//
// Compile validates the tree against the engine's current graph and schema
// and reports every problem at once as an *ir.AggregateError. Execute
// compiles and commits; a failed Execute leaves both the engine and the
// builders untouched.
package builder
