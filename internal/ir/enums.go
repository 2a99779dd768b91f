package ir

import "fmt"

func lookupName[K comparable](names map[K]string, s, what string) (K, error) {
	for k, n := range names {
		if n == s {
			return k, nil
		}
	}
	var zero K
	return zero, fmt.Errorf("unknown %s %q", what, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k BoundKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *BoundKind) UnmarshalText(data []byte) error {
	v, err := lookupName(boundKindNames, string(data), "bound kind")
	if err != nil {
		return err
	}
	*k = v
	return nil
}

var descriptorKindNames = map[DescriptorKind]string{
	DescriptorLibraryOperative: "LibraryOperative",
	DescriptorTraitOperative:   "TraitOperative",
}

// String returns the descriptor kind name.
func (k DescriptorKind) String() string { return descriptorKindNames[k] }

// MarshalText implements encoding.TextMarshaler.
func (k DescriptorKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *DescriptorKind) UnmarshalText(data []byte) error {
	v, err := lookupName(descriptorKindNames, string(data), "descriptor kind")
	if err != nil {
		return err
	}
	*k = v
	return nil
}

var pathStepKindNames = map[PathStepKind]string{
	StepField:                       "Field",
	StepLibraryOperativeConstituent: "LibraryOperativeConstituent",
	StepInstanceConstituent:         "InstanceConstituent",
	StepTraitOperativeConstituent:   "TraitOperativeConstituent",
}

// String returns the step kind name.
func (k PathStepKind) String() string { return pathStepKindNames[k] }

// MarshalText implements encoding.TextMarshaler.
func (k PathStepKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PathStepKind) UnmarshalText(data []byte) error {
	v, err := lookupName(pathStepKindNames, string(data), "path step kind")
	if err != nil {
		return err
	}
	*k = v
	return nil
}

var typeSpecKindNames = map[TypeSpecKind]string{
	TypeSingle:      "Single",
	TypeMulti:       "Multi",
	TypeTraitObject: "TraitObject",
}

// String returns the type specialization kind name.
func (k TypeSpecKind) String() string { return typeSpecKindNames[k] }

// MarshalText implements encoding.TextMarshaler.
func (k TypeSpecKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TypeSpecKind) UnmarshalText(data []byte) error {
	v, err := lookupName(typeSpecKindNames, string(data), "type specialization kind")
	if err != nil {
		return err
	}
	*k = v
	return nil
}
