package digest

import (
	"sync"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Resolver caches operative digests for one schema version at a time.
// Digests are pure over the schema, so a version change simply drops the cache.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Resolver struct {
	mu      sync.Mutex
	version string
	ops     map[ir.UID]*OperativeDigest
	hits    int
	misses  int
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{ops: make(map[ir.UID]*OperativeDigest)}
}

// Operative returns the cached digest, computing it on first use.
// Callers must not mutate the returned digest.
func (r *Resolver) Operative(s *ir.Schema, id ir.UID) (*OperativeDigest, error) {
	v := s.Version()

	r.mu.Lock()
	if r.version != v {
		r.version = v
		r.ops = make(map[ir.UID]*OperativeDigest)
	}
	if d, ok := r.ops[id]; ok {
		r.hits++
		r.mu.Unlock()
		return d, nil
	}
	r.misses++
	r.mu.Unlock()

	d, err := Operative(s, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.version == v {
		r.ops[id] = d
	}
	r.mu.Unlock()
	return d, nil
}

// LockedFields returns the locked field closure of an operative.
func (r *Resolver) LockedFields(s *ir.Schema, id ir.UID) (map[ir.UID]LockedField, error) {
	d, err := r.Operative(s, id)
	if err != nil {
		return nil, err
	}
	return d.LockedFields, nil
}

// TraitImpls returns the trait implementations visible on an operative.
func (r *Resolver) TraitImpls(s *ir.Schema, id ir.UID) (ir.TraitImpls, error) {
	d, err := r.Operative(s, id)
	if err != nil {
		return nil, err
	}
	return d.TraitImpls, nil
}

// Satisfies is the cached form of the package-level Satisfies.
func (r *Resolver) Satisfies(s *ir.Schema, operativeID ir.UID, desc ir.OperativeDescriptor) (bool, error) {
	d, err := r.Operative(s, operativeID)
	if err != nil {
		return false, err
	}
	switch desc.Kind {
	case ir.DescriptorLibraryOperative:
		return d.DescendsFrom(desc.OperativeID), nil
	default:
		return Satisfies(s, operativeID, desc)
	}
}

// Stats reports cache hits and misses since creation.
func (r *Resolver) Stats() (hits, misses int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits, r.misses
}
