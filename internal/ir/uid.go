package ir

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// UID is a 128-bit identifier for schema items and live instances.
// Stored big-endian so byte order equals numeric order.
type UID [16]byte

// NilUID is the zero identifier. It never names a real item.
var NilUID UID

// NewUID returns a random (v4) identifier.
func NewUID() UID {
	return UID(uuid.New())
}

// UIDFromUint64 builds a UID from two 64-bit halves.
func UIDFromUint64(hi, lo uint64) UID {
	var u UID
	binary.BigEndian.PutUint64(u[:8], hi)
	binary.BigEndian.PutUint64(u[8:], lo)
	return u
}

// ParseUID parses the canonical hyphenated form (or any form uuid.Parse accepts).
func ParseUID(s string) (UID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilUID, fmt.Errorf("parse uid %q: %w", s, err)
	}
	return UID(u), nil
}

// MustParseUID is ParseUID for constants in tests and fixtures.
func MustParseUID(s string) UID {
	u, err := ParseUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// NameUID derives a stable identifier from a namespace and a name.
// Used by loaders for items authored without explicit ids.
func NameUID(namespace UID, name string) UID {
	return UID(uuid.NewSHA1(uuid.UUID(namespace), []byte(name)))
}

// String returns the hyphenated UUID form.
func (u UID) String() string {
	return uuid.UUID(u).String()
}

// IsZero reports whether u is NilUID.
func (u UID) IsZero() bool {
	return u == NilUID
}

// Compare orders UIDs numerically.
func (u UID) Compare(o UID) int {
	return bytes.Compare(u[:], o[:])
}

// MarshalText implements encoding.TextMarshaler.
func (u UID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UID) UnmarshalText(data []byte) error {
	parsed, err := ParseUID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// SortUIDs sorts ids in place and returns them.
func SortUIDs(ids []UID) []UID {
	slices.SortFunc(ids, UID.Compare)
	return ids
}

// SortedKeys returns the keys of a UID-keyed map in UID order.
func SortedKeys[V any](m map[UID]V) []UID {
	keys := make([]UID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return SortUIDs(keys)
}

// Tag is a human label plus identity.
type Tag struct {
	Name string `json:"name" validate:"required"`
	ID   UID    `json:"id"`
}

// NewTag creates a tag with a fresh random id.
func NewTag(name string) Tag {
	return Tag{Name: name, ID: NewUID()}
}

// UIDGenerator allocates identifiers for new instances.
// Implemented by RandomUIDs (production) and SequentialUIDs (tests).
type UIDGenerator interface {
	Next() UID
}

// RandomUIDs generates v4 random identifiers.
//
// Thread-safety: stateless and safe for concurrent use.
type RandomUIDs struct{}

// Next returns a fresh random UID.
func (RandomUIDs) Next() UID {
	return NewUID()
}

// SequentialUIDs hands out predictable identifiers: prefix in the high half,
// a counter starting at 1 in the low half.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialUIDs struct {
	mu     sync.Mutex
	prefix uint64
	n      uint64
}

// NewSequentialUIDs creates a generator whose ids share the given prefix.
func NewSequentialUIDs(prefix uint64) *SequentialUIDs {
	return &SequentialUIDs{prefix: prefix}
}

// Next returns the next id in sequence.
func (g *SequentialUIDs) Next() UID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return UIDFromUint64(g.prefix, g.n)
}
