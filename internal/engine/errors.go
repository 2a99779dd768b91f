package engine

import (
	"errors"
	"fmt"
)

// StaleSchemaError is returned by Commit when a blueprint's schema change
// was staged against a schema that is no longer current.
//
// Schema edits carry the schema they were computed from. Committing one on
// top of a different schema would silently discard the intervening edit,
// so the engine refuses; the caller re-stages against Engine.Schema().
type StaleSchemaError struct {
	Current string // Version of the engine's schema
	Staged  string // Version the blueprint was staged against
}

// Error implements the error interface.
func (e *StaleSchemaError) Error() string {
	return fmt.Sprintf("blueprint staged against schema %s, engine is at %s", short(e.Staged), short(e.Current))
}

// IsStaleSchema returns true if the error is a StaleSchemaError.
// Uses errors.As to handle wrapped errors.
func IsStaleSchema(err error) bool {
	var se *StaleSchemaError
	return errors.As(err, &se)
}

func short(version string) string {
	if len(version) > 12 {
		return version[:12]
	}
	return version
}
