package ir

import (
	"encoding/json"
	"fmt"
)

// schemaDoc is the JSON form of a Schema. Entries are listed in id order so
// the encoding is deterministic.
type schemaDoc struct {
	FormatVersion string               `json:"format_version"`
	Templates     []*Template          `json:"templates"`
	Operatives    []operativeDoc       `json:"operatives"`
	Instances     []libraryInstanceDoc `json:"instances"`
	Traits        []*Trait             `json:"traits"`
}

type fieldValueDoc struct {
	FieldID UID        `json:"field_id"`
	Value   TypedValue `json:"value"`
}

type operativeDoc struct {
	Tag                 Tag                  `json:"tag"`
	TemplateID          UID                  `json:"template_id"`
	ParentID            *UID                 `json:"parent_operative,omitempty"`
	LockedFields        []fieldValueDoc      `json:"locked_fields,omitempty"`
	TraitImpls          TraitImpls           `json:"trait_impls,omitempty"`
	SlotSpecializations []SlotSpecialization `json:"slot_specializations,omitempty"`
}

type libraryInstanceDoc struct {
	Tag             Tag             `json:"tag"`
	OperativeID     UID             `json:"operative_id"`
	FulfilledFields []fieldValueDoc `json:"fulfilled_fields,omitempty"`
}

func toFieldDocs(fvs []FieldValue) []fieldValueDoc {
	if len(fvs) == 0 {
		return nil
	}
	out := make([]fieldValueDoc, len(fvs))
	for i, fv := range fvs {
		out[i] = fieldValueDoc{FieldID: fv.FieldID, Value: TypedValue{Value: fv.Value}}
	}
	return out
}

func fromFieldDocs(docs []fieldValueDoc) []FieldValue {
	if len(docs) == 0 {
		return nil
	}
	out := make([]FieldValue, len(docs))
	for i, d := range docs {
		out[i] = FieldValue{FieldID: d.FieldID, Value: d.Value.Value}
	}
	return out
}

// MarshalSchema encodes a schema as JSON.
func MarshalSchema(s *Schema) ([]byte, error) {
	doc := schemaDoc{
		FormatVersion: FormatVersion,
		Templates:     []*Template{},
		Operatives:    []operativeDoc{},
		Instances:     []libraryInstanceDoc{},
		Traits:        []*Trait{},
	}
	for _, id := range SortedKeys(s.Templates) {
		doc.Templates = append(doc.Templates, s.Templates[id])
	}
	for _, id := range SortedKeys(s.Operatives) {
		op := s.Operatives[id]
		od := operativeDoc{
			Tag:                 op.Tag,
			TemplateID:          op.TemplateID,
			LockedFields:        toFieldDocs(op.LockedFields),
			TraitImpls:          op.TraitImpls,
			SlotSpecializations: op.SlotSpecializations,
		}
		if op.HasParent() {
			parent := op.ParentID
			od.ParentID = &parent
		}
		doc.Operatives = append(doc.Operatives, od)
	}
	for _, id := range SortedKeys(s.Instances) {
		inst := s.Instances[id]
		doc.Instances = append(doc.Instances, libraryInstanceDoc{
			Tag:             inst.Tag,
			OperativeID:     inst.OperativeID,
			FulfilledFields: toFieldDocs(inst.FulfilledFields),
		})
	}
	for _, id := range SortedKeys(s.Traits) {
		doc.Traits = append(doc.Traits, s.Traits[id])
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// UnmarshalSchema decodes the output of MarshalSchema. It checks syntax only;
// structural checks live in the compiler.
func UnmarshalSchema(data []byte) (*Schema, error) {
	var doc schemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if doc.FormatVersion != "" && doc.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unmarshal schema: unsupported format version %q", doc.FormatVersion)
	}
	s := NewSchema()
	for _, t := range doc.Templates {
		if t == nil {
			continue
		}
		if t.FieldConstraints == nil {
			t.FieldConstraints = make(map[UID]FieldConstraint)
		}
		if t.OperativeSlots == nil {
			t.OperativeSlots = make(map[UID]OperativeSlot)
		}
		if _, dup := s.Templates[t.Tag.ID]; dup {
			return nil, fmt.Errorf("unmarshal schema: duplicate template %s", t.Tag.ID)
		}
		s.Templates[t.Tag.ID] = t
	}
	for _, od := range doc.Operatives {
		op := &LibraryOperative{
			Tag:                 od.Tag,
			TemplateID:          od.TemplateID,
			LockedFields:        fromFieldDocs(od.LockedFields),
			TraitImpls:          od.TraitImpls,
			SlotSpecializations: od.SlotSpecializations,
		}
		if od.ParentID != nil {
			op.ParentID = *od.ParentID
		}
		if _, dup := s.Operatives[op.Tag.ID]; dup {
			return nil, fmt.Errorf("unmarshal schema: duplicate operative %s", op.Tag.ID)
		}
		s.Operatives[op.Tag.ID] = op
	}
	for _, id := range doc.Instances {
		if _, dup := s.Instances[id.Tag.ID]; dup {
			return nil, fmt.Errorf("unmarshal schema: duplicate library instance %s", id.Tag.ID)
		}
		s.Instances[id.Tag.ID] = &LibraryInstance{
			Tag:             id.Tag,
			OperativeID:     id.OperativeID,
			FulfilledFields: fromFieldDocs(id.FulfilledFields),
		}
	}
	for _, t := range doc.Traits {
		if t == nil {
			continue
		}
		if _, dup := s.Traits[t.Tag.ID]; dup {
			return nil, fmt.Errorf("unmarshal schema: duplicate trait %s", t.Tag.ID)
		}
		s.Traits[t.Tag.ID] = t
	}
	return s, nil
}

// blueprintDoc is the journal form of a Blueprint. Schema changes are stored
// as full schema documents.
type blueprintDoc struct {
	Added          []StandaloneInstance `json:"added"`
	Deleted        []StandaloneInstance `json:"deleted"`
	AddOutgoing    []EdgeRef            `json:"add_outgoing"`
	RemoveOutgoing []EdgeRef            `json:"remove_outgoing"`
	AddIncoming    []EdgeRef            `json:"add_incoming"`
	RemoveIncoming []EdgeRef            `json:"remove_incoming"`
	FieldUpdates   []fieldEditDoc       `json:"field_updates"`
	SchemaBefore   json.RawMessage      `json:"schema_before,omitempty"`
	SchemaAfter    json.RawMessage      `json:"schema_after,omitempty"`
}

type fieldEditDoc struct {
	InstanceID UID         `json:"instance_id"`
	FieldID    UID         `json:"field_id"`
	New        TypedValue  `json:"new"`
	Prev       *TypedValue `json:"prev,omitempty"`
}

func nonNilEdges(edges []EdgeRef) []EdgeRef {
	if edges == nil {
		return []EdgeRef{}
	}
	return edges
}

// MarshalBlueprint encodes a blueprint for the journal.
func MarshalBlueprint(bp *Blueprint) ([]byte, error) {
	doc := blueprintDoc{
		Added:          make([]StandaloneInstance, 0, len(bp.Added)),
		Deleted:        make([]StandaloneInstance, 0, len(bp.Deleted)),
		AddOutgoing:    nonNilEdges(bp.AddOutgoing),
		RemoveOutgoing: nonNilEdges(bp.RemoveOutgoing),
		AddIncoming:    nonNilEdges(bp.AddIncoming),
		RemoveIncoming: nonNilEdges(bp.RemoveIncoming),
		FieldUpdates:   make([]fieldEditDoc, 0, len(bp.FieldUpdates)),
	}
	for _, r := range bp.Added {
		doc.Added = append(doc.Added, r.Standalone())
	}
	for _, r := range bp.Deleted {
		doc.Deleted = append(doc.Deleted, r.Standalone())
	}
	for _, fe := range bp.FieldUpdates {
		fd := fieldEditDoc{InstanceID: fe.InstanceID, FieldID: fe.FieldID, New: TypedValue{Value: fe.New}}
		if fe.Prev != nil {
			fd.Prev = &TypedValue{Value: fe.Prev}
		}
		doc.FieldUpdates = append(doc.FieldUpdates, fd)
	}
	if bp.Schema != nil {
		var err error
		if doc.SchemaBefore, err = MarshalSchema(bp.Schema.Before); err != nil {
			return nil, fmt.Errorf("marshal blueprint: %w", err)
		}
		if doc.SchemaAfter, err = MarshalSchema(bp.Schema.After); err != nil {
			return nil, fmt.Errorf("marshal blueprint: %w", err)
		}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal blueprint: %w", err)
	}
	return data, nil
}

// UnmarshalBlueprint decodes the output of MarshalBlueprint.
func UnmarshalBlueprint(data []byte) (*Blueprint, error) {
	var doc blueprintDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal blueprint: %w", err)
	}
	bp := &Blueprint{
		AddOutgoing:    doc.AddOutgoing,
		RemoveOutgoing: doc.RemoveOutgoing,
		AddIncoming:    doc.AddIncoming,
		RemoveIncoming: doc.RemoveIncoming,
	}
	for _, s := range doc.Added {
		bp.Added = append(bp.Added, s.Record().WithoutEdges())
	}
	for _, s := range doc.Deleted {
		bp.Deleted = append(bp.Deleted, s.Record().WithoutEdges())
	}
	for _, fd := range doc.FieldUpdates {
		fe := FieldEdit{InstanceID: fd.InstanceID, FieldID: fd.FieldID, New: fd.New.Value}
		if fd.Prev != nil {
			fe.Prev = fd.Prev.Value
		}
		bp.FieldUpdates = append(bp.FieldUpdates, fe)
	}
	if len(doc.SchemaBefore) > 0 && len(doc.SchemaAfter) > 0 {
		before, err := UnmarshalSchema(doc.SchemaBefore)
		if err != nil {
			return nil, fmt.Errorf("unmarshal blueprint: %w", err)
		}
		after, err := UnmarshalSchema(doc.SchemaAfter)
		if err != nil {
			return nil, fmt.Errorf("unmarshal blueprint: %w", err)
		}
		bp.Schema = &SchemaChange{Before: before, After: after}
	}
	return bp, nil
}
