package ir

import "slices"

// EdgeRef identifies one edge: Host's outgoing slot Slot holds Target.
// Every live edge appears on the host's Outgoing map and the target's Incoming list.
type EdgeRef struct {
	Host   UID `json:"host_instance_id"`
	Target UID `json:"target_instance_id"`
	Slot   UID `json:"slot_id"`
}

// Compare orders edges by host, then slot, then target.
func (e EdgeRef) Compare(o EdgeRef) int {
	if c := e.Host.Compare(o.Host); c != 0 {
		return c
	}
	if c := e.Slot.Compare(o.Slot); c != 0 {
		return c
	}
	return e.Target.Compare(o.Target)
}

// Touches reports whether id is either endpoint.
func (e EdgeRef) Touches(id UID) bool {
	return e.Host == id || e.Target == id
}

// SortEdges sorts edges in place and removes duplicates.
func SortEdges(edges []EdgeRef) []EdgeRef {
	slices.SortFunc(edges, EdgeRef.Compare)
	return slices.Compact(edges)
}

// InstanceRecord is the live state of one node.
// ID, OperativeID and TemplateID never change. Outgoing target lists and the
// Incoming list are kept sorted by the engine.
type InstanceRecord struct {
	ID          UID
	OperativeID UID
	TemplateID  UID
	Fields      map[UID]Value
	Outgoing    map[UID][]UID
	Incoming    []EdgeRef
}

// NewInstanceRecord creates an empty record.
func NewInstanceRecord(id, operativeID, templateID UID) *InstanceRecord {
	return &InstanceRecord{
		ID:          id,
		OperativeID: operativeID,
		TemplateID:  templateID,
		Fields:      make(map[UID]Value),
		Outgoing:    make(map[UID][]UID),
	}
}

// Clone deep-copies the record.
func (r *InstanceRecord) Clone() *InstanceRecord {
	out := r.WithoutEdges()
	for slot, targets := range r.Outgoing {
		out.Outgoing[slot] = append([]UID(nil), targets...)
	}
	out.Incoming = append([]EdgeRef(nil), r.Incoming...)
	return out
}

// WithoutEdges copies identity and fields only.
func (r *InstanceRecord) WithoutEdges() *InstanceRecord {
	out := NewInstanceRecord(r.ID, r.OperativeID, r.TemplateID)
	for id, v := range r.Fields {
		out.Fields[id] = v
	}
	return out
}

// Targets returns the targets held in a slot.
func (r *InstanceRecord) Targets(slot UID) []UID {
	return r.Outgoing[slot]
}

// OutgoingEdges lists every outgoing edge in sorted order.
func (r *InstanceRecord) OutgoingEdges() []EdgeRef {
	var edges []EdgeRef
	for _, slot := range SortedKeys(r.Outgoing) {
		for _, target := range r.Outgoing[slot] {
			edges = append(edges, EdgeRef{Host: r.ID, Target: target, Slot: slot})
		}
	}
	return edges
}

// Equal reports bit-equivalence: same identity, fields and edges.
func (r *InstanceRecord) Equal(o *InstanceRecord) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.ID != o.ID || r.OperativeID != o.OperativeID || r.TemplateID != o.TemplateID {
		return false
	}
	if len(r.Fields) != len(o.Fields) {
		return false
	}
	for id, v := range r.Fields {
		ov, ok := o.Fields[id]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	if !slices.Equal(r.OutgoingEdges(), o.OutgoingEdges()) {
		return false
	}
	return slices.Equal(r.Incoming, o.Incoming)
}

// FieldEdit records one field change with the value it replaces.
type FieldEdit struct {
	InstanceID UID
	FieldID    UID
	New        Value
	Prev       Value
}

// Inverse swaps New and Prev.
func (e FieldEdit) Inverse() FieldEdit {
	e.New, e.Prev = e.Prev, e.New
	return e
}

// SchemaChange swaps the engine's schema when a blueprint applies.
type SchemaChange struct {
	Before *Schema
	After  *Schema
}

// Blueprint is a reversible change set.
//
// Added records carry fields only; every edge touching an added or deleted
// record is listed in the edge sets. Deleted records are pre-deletion
// snapshots (fields only) so Reverse can resurrect them verbatim.
type Blueprint struct {
	Added          []*InstanceRecord
	Deleted        []*InstanceRecord
	AddOutgoing    []EdgeRef
	RemoveOutgoing []EdgeRef
	AddIncoming    []EdgeRef
	RemoveIncoming []EdgeRef
	FieldUpdates   []FieldEdit
	Schema         *SchemaChange
}

// Reverse returns the inverse change set. Reverse(Reverse(bp)) equals bp.
func (bp *Blueprint) Reverse() *Blueprint {
	rev := &Blueprint{
		Added:          bp.Deleted,
		Deleted:        bp.Added,
		AddOutgoing:    bp.RemoveOutgoing,
		RemoveOutgoing: bp.AddOutgoing,
		AddIncoming:    bp.RemoveIncoming,
		RemoveIncoming: bp.AddIncoming,
	}
	if bp.FieldUpdates != nil {
		rev.FieldUpdates = make([]FieldEdit, len(bp.FieldUpdates))
		for i, fe := range bp.FieldUpdates {
			rev.FieldUpdates[i] = fe.Inverse()
		}
	}
	if bp.Schema != nil {
		rev.Schema = &SchemaChange{Before: bp.Schema.After, After: bp.Schema.Before}
	}
	return rev
}

// IsEmpty reports whether applying the blueprint would change nothing.
func (bp *Blueprint) IsEmpty() bool {
	return bp.ChangeCount() == 0 && bp.Schema == nil
}

// ChangeCount is the number of individual changes carried.
func (bp *Blueprint) ChangeCount() int {
	return len(bp.Added) + len(bp.Deleted) +
		len(bp.AddOutgoing) + len(bp.RemoveOutgoing) +
		len(bp.AddIncoming) + len(bp.RemoveIncoming) +
		len(bp.FieldUpdates)
}

// StandaloneInstance is the self-contained on-disk form of one instance.
type StandaloneInstance struct {
	ID            UID                `json:"id"`
	OperativeID   UID                `json:"operative_id"`
	TemplateID    UID                `json:"template_id"`
	Fields        map[UID]TypedValue `json:"fields"`
	OutgoingSlots []EdgeRef          `json:"outgoing_slots"`
	IncomingSlots []EdgeRef          `json:"incoming_slots"`
}

// Standalone converts a record to its standalone form.
func (r *InstanceRecord) Standalone() StandaloneInstance {
	s := StandaloneInstance{
		ID:            r.ID,
		OperativeID:   r.OperativeID,
		TemplateID:    r.TemplateID,
		Fields:        make(map[UID]TypedValue, len(r.Fields)),
		OutgoingSlots: r.OutgoingEdges(),
		IncomingSlots: append([]EdgeRef(nil), r.Incoming...),
	}
	for id, v := range r.Fields {
		s.Fields[id] = TypedValue{Value: v}
	}
	if s.OutgoingSlots == nil {
		s.OutgoingSlots = []EdgeRef{}
	}
	if s.IncomingSlots == nil {
		s.IncomingSlots = []EdgeRef{}
	}
	return s
}

// Record converts the standalone form back to a record with sorted edge lists.
func (s StandaloneInstance) Record() *InstanceRecord {
	r := NewInstanceRecord(s.ID, s.OperativeID, s.TemplateID)
	for id, tv := range s.Fields {
		r.Fields[id] = tv.Value
	}
	for _, e := range SortEdges(append([]EdgeRef(nil), s.OutgoingSlots...)) {
		r.Outgoing[e.Slot] = append(r.Outgoing[e.Slot], e.Target)
	}
	for slot := range r.Outgoing {
		SortUIDs(r.Outgoing[slot])
	}
	if len(s.IncomingSlots) > 0 {
		r.Incoming = SortEdges(append([]EdgeRef(nil), s.IncomingSlots...))
	}
	return r
}
