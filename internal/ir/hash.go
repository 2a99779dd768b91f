package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainSchema    = "molecule/schema/v1"
	DomainBlueprint = "molecule/blueprint/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SchemaHash computes the content hash of a schema. Two schemas with the same
// templates, operatives, library instances and traits hash identically
// regardless of map iteration order.
func SchemaHash(s *Schema) (string, error) {
	data, err := MarshalSchema(s)
	if err != nil {
		return "", fmt.Errorf("SchemaHash: %w", err)
	}
	canonical, err := CanonicalJSON(data)
	if err != nil {
		return "", fmt.Errorf("SchemaHash: %w", err)
	}
	return hashWithDomain(DomainSchema, canonical), nil
}

// BlueprintHash identifies a blueprint's content; the journal stores it so
// replays can be checked against what was recorded.
func BlueprintHash(bp *Blueprint) (string, error) {
	data, err := MarshalBlueprint(bp)
	if err != nil {
		return "", fmt.Errorf("BlueprintHash: %w", err)
	}
	canonical, err := CanonicalJSON(data)
	if err != nil {
		return "", fmt.Errorf("BlueprintHash: %w", err)
	}
	return hashWithDomain(DomainBlueprint, canonical), nil
}

// MustSchemaHash is like SchemaHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSchemaHash(s *Schema) string {
	h, err := SchemaHash(s)
	if err != nil {
		panic(err)
	}
	return h
}
