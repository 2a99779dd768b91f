// Package harness provides conformance testing for molecule schemas.
//
// The harness loads a schema, drives builders, history and specialization
// edits through a scenario, and checks the resulting trace and graph.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: shelf_basics
//	description: "What this scenario validates"
//	schema: shelf.cue
//	steps:
//	  - build:
//	      operative: shelf
//	      as: inbox
//	      fields: { label: inbox }
//	      add:
//	        notes:
//	          - new: { operative: note, as: first, fields: { body: hello } }
//	  - edit:
//	      instance: inbox
//	      fields: { label: outbox }
//	  - undo: true
//	  - narrow: { operative: shelf, slot: notes, bound: "Range(0,0)" }
//	    expect: { codes: [SPECIALIZATION_INVALID] }
//	assertions:
//	  - type: field
//	    instance: inbox
//	    field: label
//	    equals: inbox
//	  - type: replay
//
// Names given with "as" address instances in later steps and assertions.
// Within one build step a target may reference a name declared anywhere in
// that step; the harness passes it to the builder as a temporary id, so
// mutually required instances can be built together.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_count: Verifies events of a kind occur exactly N times
//   - trace_order: Verifies event kinds occur in the specified order
//   - instance_count: Counts live instances of an operative
//   - exists: Verifies a named instance is live (or, with live: false, gone)
//   - field: Compares a field value
//   - targets: Compares a slot's targets as a set of names
//   - history: Compares undo and redo depth
//   - verify: Runs the engine's invariant check over the graph
//   - replay: Restores the graph from the scenario's journal and compares
//
// # Deterministic Testing
//
// Every scenario runs against a fresh engine with a sequential id generator
// and journals into an in-memory SQLite store, so traces and snapshots are
// identical across runs and can be compared with golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/shelf.scenario.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
