package builder

import (
	"fmt"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// BlueprintID names an edge endpoint while a builder is staged: either an
// instance that already has a UID (live, or new in this builder tree), or a
// temporary id resolved when the blueprint compiles.
type BlueprintID struct {
	id   ir.UID
	temp string
}

// Existing refers to an instance by UID.
func Existing(id ir.UID) BlueprintID {
	return BlueprintID{id: id}
}

// Temporary refers to a new instance by the temporary id it will be given
// with SetTempID.
func Temporary(tempID string) BlueprintID {
	return BlueprintID{temp: tempID}
}

// IsTemporary reports whether the id must be resolved at compile time.
func (b BlueprintID) IsTemporary() bool {
	return b.temp != ""
}

// UID returns the instance id of an Existing reference.
func (b BlueprintID) UID() ir.UID {
	return b.id
}

// TempID returns the temporary id of a Temporary reference.
func (b BlueprintID) TempID() string {
	return b.temp
}

func (b BlueprintID) String() string {
	if b.IsTemporary() {
		return fmt.Sprintf("temp:%s", b.temp)
	}
	return b.id.String()
}

// resolve maps the reference to a UID through the temp id table.
func (b BlueprintID) resolve(temps map[string]ir.UID) (ir.UID, bool) {
	if !b.IsTemporary() {
		return b.id, true
	}
	id, ok := temps[b.temp]
	return id, ok
}
