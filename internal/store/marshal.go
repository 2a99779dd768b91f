package store

import (
	"encoding/json"
	"fmt"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// marshalSchema converts a schema to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalSchema(s *ir.Schema) (string, error) {
	data, err := ir.MarshalSchema(s)
	if err != nil {
		return "", err
	}
	canonical, err := ir.CanonicalJSON(data)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return string(canonical), nil
}

// unmarshalSchema parses stored schema TEXT and links any specialization
// stored without an upstream.
func unmarshalSchema(data string) (*ir.Schema, error) {
	s, err := ir.UnmarshalSchema([]byte(data))
	if err != nil {
		return nil, err
	}
	s.LinkUpstreams()
	return s, nil
}

// marshalBlueprint converts a blueprint to canonical JSON TEXT and returns
// its content hash alongside.
func marshalBlueprint(bp *ir.Blueprint) (text, hash string, err error) {
	data, err := ir.MarshalBlueprint(bp)
	if err != nil {
		return "", "", err
	}
	canonical, err := ir.CanonicalJSON(data)
	if err != nil {
		return "", "", fmt.Errorf("marshal blueprint: %w", err)
	}
	hash, err = ir.BlueprintHash(bp)
	if err != nil {
		return "", "", err
	}
	return string(canonical), hash, nil
}

// unmarshalBlueprint parses stored blueprint TEXT.
func unmarshalBlueprint(data string) (*ir.Blueprint, error) {
	return ir.UnmarshalBlueprint([]byte(data))
}

// marshalInstances converts a standalone export to canonical JSON TEXT.
func marshalInstances(instances []ir.StandaloneInstance) (string, error) {
	if instances == nil {
		instances = []ir.StandaloneInstance{}
	}
	data, err := json.Marshal(instances)
	if err != nil {
		return "", fmt.Errorf("marshal instances: %w", err)
	}
	canonical, err := ir.CanonicalJSON(data)
	if err != nil {
		return "", fmt.Errorf("marshal instances: %w", err)
	}
	return string(canonical), nil
}

// unmarshalInstances parses a stored standalone export.
func unmarshalInstances(data string) ([]ir.StandaloneInstance, error) {
	var out []ir.StandaloneInstance
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal instances: %w", err)
	}
	if out == nil {
		out = []ir.StandaloneInstance{}
	}
	return out, nil
}
