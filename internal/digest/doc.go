// Package digest computes flattened views of schema items over their
// operative ancestry and template: locked field closures, exposed slots with
// bound library instances, and transitive trait implementations.
//
// Digests are pure functions of the schema. Resolver caches them by
// (operative id, schema version).
package digest
