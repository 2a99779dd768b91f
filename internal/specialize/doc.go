// Package specialize resolves and edits slot specializations.
//
// A derived operative may narrow a slot it inherits: its cardinality (per
// the bound lattice in Narrows) and the operatives it admits (Single, Multi
// or TraitObject). Effective walks an operative's ancestry and returns the
// childest cardinality specialization plus every type narrowing in scope;
// the builder and the engine check edges against that constraint.
//
// Editor turns lock and specialization edits into blueprints carrying a
// schema change, so they commit and undo like any graph edit.
package specialize
