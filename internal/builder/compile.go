package builder

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/specialize"
)

// ExecutionResult reports a committed build.
type ExecutionResult struct {
	// Blueprint is the change set that was committed.
	Blueprint *ir.Blueprint

	// TempIDs maps every temporary id in the builder tree to the UID it
	// named.
	TempIDs map[string]ir.UID
}

// Execute compiles the builder tree and commits the blueprint. On error the
// engine is untouched and the builder may be corrected and executed again.
// Once Execute succeeds the tree's new instances are live, and executing it
// again fails with INSTANCE_ALREADY_EXISTS until that commit is undone.
func (b *Builder) Execute() (*ExecutionResult, error) {
	bp, temps, err := b.Compile()
	if err != nil {
		errs := ir.AsErrors(err)
		engine.RecordExecuteFailure(context.Background(), len(errs))
		b.eng.Logger().Info("execute rejected",
			"subject", b.subject,
			"errors", len(errs),
			"codes", ir.Codes(err),
		)
		return nil, err
	}
	if err := b.eng.Commit(bp); err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	return &ExecutionResult{Blueprint: bp, TempIDs: temps}, nil
}

type fieldKey struct {
	instance ir.UID
	field    ir.UID
}

// compilation is one run of the compile pipeline. It works on copies of
// the builder tree's pending changes and reads the engine without mutating
// it.
type compilation struct {
	eng    *engine.Engine
	schema *ir.Schema

	wips  []*ir.InstanceRecord
	isWip map[ir.UID]*ir.InstanceRecord
	temps map[string]ir.UID
	errs  []*ir.Error

	// fields whose staged value was rejected; they are not also reported empty
	rejected map[fieldKey]bool

	adds        []ir.EdgeRef
	removes     []ir.EdgeRef
	tempEdges   []tempEdge
	edits       map[fieldKey]ir.Value
	deletes     []ir.UID
	rootDeletes []ir.UID

	live      map[ir.UID]*ir.InstanceRecord
	deleted   map[ir.UID]bool
	deletedBy []ir.UID
	slots     map[ir.UID]map[ir.UID]specialize.Constraint
}

// Compile runs the compile pipeline without committing and returns the
// blueprint Execute would commit, with the temporary id table.
//
// Steps, in order: collect the tree's new instances and temporary ids;
// resolve temporary edges; expand recursive deletes; cancel changes to
// deleted instances; check slot cardinality; check target types;
// materialize new instances. Errors from every step are returned together.
func (b *Builder) Compile() (*ir.Blueprint, map[string]ir.UID, error) {
	c := &compilation{
		eng:      b.eng,
		schema:   b.eng.Schema(),
		isWip:    make(map[ir.UID]*ir.InstanceRecord),
		temps:    make(map[string]ir.UID),
		rejected: make(map[fieldKey]bool),
		edits:    make(map[fieldKey]ir.Value),
		live:     make(map[ir.UID]*ir.InstanceRecord),
		deleted:  make(map[ir.UID]bool),
		slots:    make(map[ir.UID]map[ir.UID]specialize.Constraint),
	}
	b.collect(c, make(map[*Builder]bool))

	c.resolveTempEdges()
	c.checkEndpoints()
	c.expandDeletes()
	c.cancelDeleted()
	c.checkCardinality()
	c.checkTypes()
	added := c.materialize()
	updates := c.fieldUpdates()

	if len(c.errs) > 0 {
		return nil, nil, ir.Aggregate(c.errs)
	}

	bp := &ir.Blueprint{
		Added:          added,
		Deleted:        c.snapshots(),
		AddOutgoing:    ir.SortEdges(slices.Clone(c.adds)),
		AddIncoming:    ir.SortEdges(slices.Clone(c.adds)),
		RemoveOutgoing: ir.SortEdges(slices.Clone(c.removes)),
		RemoveIncoming: ir.SortEdges(slices.Clone(c.removes)),
		FieldUpdates:   updates,
	}
	b.eng.Logger().Debug("blueprint compiled",
		"added", len(bp.Added),
		"deleted", len(bp.Deleted),
		"edges_added", len(bp.AddOutgoing),
		"edges_removed", len(bp.RemoveOutgoing),
		"field_updates", len(bp.FieldUpdates),
		"temp_ids", len(c.temps),
	)
	return bp, c.temps, nil
}

// collect flattens the builder tree into c, parents before children.
func (b *Builder) collect(c *compilation, seen map[*Builder]bool) {
	if seen[b] {
		return
	}
	seen[b] = true

	c.errs = append(c.errs, b.errs...)
	for _, fieldID := range ir.SortedKeys(b.fieldErrs) {
		c.errs = append(c.errs, b.fieldErrs[fieldID])
		c.rejected[fieldKey{instance: b.subject, field: fieldID}] = true
	}
	if b.wip != nil {
		rec := b.wip.WithoutEdges()
		if c.eng.Contains(rec.ID) {
			err := ir.Errorf(ir.CodeInstanceExists, "instance %s is already live", rec.ID)
			err.InstanceID = rec.ID
			c.errs = append(c.errs, err)
		} else {
			c.wips = append(c.wips, rec)
			c.isWip[rec.ID] = rec
		}
	}
	if b.tempID != "" {
		if prev, ok := c.temps[b.tempID]; ok && prev != b.subject {
			err := ir.Errorf(ir.CodeDuplicateTempID, "temporary id %q names both %s and %s", b.tempID, prev, b.subject)
			err.TempID, err.InstanceID = b.tempID, b.subject
			c.errs = append(c.errs, err)
		} else {
			c.temps[b.tempID] = b.subject
		}
	}
	c.adds = append(c.adds, b.adds...)
	c.removes = append(c.removes, b.removes...)
	c.tempEdges = append(c.tempEdges, b.tempEdges...)
	for fieldID, v := range b.edits {
		c.edits[fieldKey{instance: b.subject, field: fieldID}] = v
	}
	c.deletes = append(c.deletes, b.deletes...)
	c.rootDeletes = append(c.rootDeletes, b.rootDeletes...)

	for _, child := range b.children {
		child.collect(c, seen)
	}
}

func (c *compilation) get(id ir.UID) (*ir.InstanceRecord, bool) {
	if rec, ok := c.live[id]; ok {
		return rec, true
	}
	rec, ok := c.eng.Get(id)
	if !ok {
		return nil, false
	}
	c.live[id] = rec
	return rec, true
}

func (c *compilation) operativeOf(id ir.UID) (ir.UID, bool) {
	if rec, ok := c.isWip[id]; ok {
		return rec.OperativeID, true
	}
	rec, ok := c.get(id)
	if !ok {
		return ir.UID{}, false
	}
	return rec.OperativeID, true
}

func (c *compilation) exists(id ir.UID) bool {
	_, ok := c.operativeOf(id)
	return ok
}

func (c *compilation) isLiveEdge(e ir.EdgeRef) bool {
	rec, ok := c.get(e.Host)
	if !ok {
		return false
	}
	_, found := slices.BinarySearchFunc(rec.Outgoing[e.Slot], e.Target, ir.UID.Compare)
	return found
}

// graphError converts a lookup failure into an atomic error.
func graphError(id ir.UID, err error) *ir.Error {
	var ge *ir.Error
	if errors.As(err, &ge) {
		return ge
	}
	e := ir.Errorf(ir.CodeOperativeNotFound, "instance %s: %v", id, err)
	e.InstanceID = id
	return e
}

// resolveTempEdges turns temporary edges into concrete ones through the
// temp id table.
func (c *compilation) resolveTempEdges() {
	for _, te := range c.tempEdges {
		host, ok := te.host.resolve(c.temps)
		if !ok {
			c.errs = append(c.errs, ir.NonexistentTempID(te.host.TempID()))
			continue
		}
		target, ok := te.target.resolve(c.temps)
		if !ok {
			c.errs = append(c.errs, ir.NonexistentTempID(te.target.TempID()))
			continue
		}
		c.adds = append(c.adds, ir.EdgeRef{Host: host, Target: target, Slot: te.slot})
	}
	if len(c.temps) > 0 {
		c.eng.Logger().Debug("temporary ids resolved", "count", len(c.temps), "edges", len(c.tempEdges))
	}
}

// checkEndpoints drops added edges whose endpoints are neither live nor new.
func (c *compilation) checkEndpoints() {
	kept := c.adds[:0:0]
	for _, e := range c.adds {
		ok := true
		for _, id := range []ir.UID{e.Host, e.Target} {
			if !c.exists(id) {
				err := ir.OutgoingElementDoesNotExist(id)
				err.InstanceID, err.SlotID = e.Host, e.Slot
				c.errs = append(c.errs, err)
				ok = false
			}
		}
		if ok {
			kept = append(kept, e)
		}
	}
	c.adds = kept
}

func (c *compilation) markDeleted(id ir.UID) bool {
	if c.deleted[id] {
		return true
	}
	if _, ok := c.get(id); !ok {
		c.errs = append(c.errs, ir.OutgoingElementDoesNotExist(id))
		return false
	}
	c.deleted[id] = true
	c.deletedBy = append(c.deletedBy, id)
	return true
}

// expandDeletes marks plain and recursive deletes. A recursive delete
// removes each outgoing target that would be left with no incoming edges,
// then recurses into it. Instances that only reference each other keep each
// other alive unless one of them is itself deleted.
func (c *compilation) expandDeletes() {
	for _, id := range c.deletes {
		c.markDeleted(id)
	}
	var roots []ir.UID
	for _, id := range c.rootDeletes {
		if c.markDeleted(id) {
			roots = append(roots, id)
		}
	}
	for _, id := range roots {
		c.deleteOrphans(id)
	}
}

func (c *compilation) deleteOrphans(id ir.UID) {
	rec, _ := c.get(id)
	for _, e := range rec.OutgoingEdges() {
		if c.deleted[e.Target] {
			continue
		}
		if c.remainingIncoming(e.Target) > 0 {
			continue
		}
		if c.markDeleted(e.Target) {
			c.deleteOrphans(e.Target)
		}
	}
}

// remainingIncoming counts the incoming edges an instance keeps after the
// pending changes: live edges not removed and not held by deleted hosts,
// plus new edges from surviving hosts.
func (c *compilation) remainingIncoming(id ir.UID) int {
	rec, ok := c.get(id)
	if !ok {
		return 0
	}
	n := 0
	for _, e := range rec.Incoming {
		if !c.deleted[e.Host] && !slices.Contains(c.removes, e) {
			n++
		}
	}
	for _, e := range c.adds {
		if e.Target == id && !c.deleted[e.Host] && !c.isLiveEdge(e) {
			n++
		}
	}
	return n
}

// cancelDeleted drops pending changes to deleted instances, stages removal
// of every live edge touching them, and reduces the edge sets to real
// changes: adds of edges that already exist and removes of edges that do
// not are dropped.
func (c *compilation) cancelDeleted() {
	for _, id := range c.deletedBy {
		rec, _ := c.get(id)
		c.removes = append(c.removes, rec.OutgoingEdges()...)
		c.removes = append(c.removes, rec.Incoming...)
	}

	adds := c.adds[:0:0]
	for _, e := range c.adds {
		if c.deleted[e.Host] || c.deleted[e.Target] || c.isLiveEdge(e) {
			continue
		}
		adds = append(adds, e)
	}
	c.adds = ir.SortEdges(adds)

	removes := c.removes[:0:0]
	for _, e := range c.removes {
		if c.isLiveEdge(e) {
			removes = append(removes, e)
		}
	}
	c.removes = ir.SortEdges(removes)

	for k := range c.edits {
		if c.deleted[k.instance] {
			delete(c.edits, k)
		}
	}
}

func (c *compilation) slotsOf(host ir.UID) (map[ir.UID]specialize.Constraint, bool) {
	if slots, ok := c.slots[host]; ok {
		return slots, slots != nil
	}
	opID, ok := c.operativeOf(host)
	if !ok {
		return nil, false
	}
	if _, ok := c.schema.Operative(opID); !ok {
		return nil, false // reported by New
	}
	slots, err := specialize.Slots(c.schema, opID)
	if err != nil {
		c.errs = append(c.errs, graphError(host, err))
		c.slots[host] = nil
		return nil, false
	}
	c.slots[host] = slots
	return slots, true
}

// checkCardinality checks every slot of every host whose edges change, and
// of every new instance, against its effective bound.
func (c *compilation) checkCardinality() {
	delta := make(map[ir.UID]map[ir.UID]int)
	bump := func(e ir.EdgeRef, n int) {
		if delta[e.Host] == nil {
			delta[e.Host] = make(map[ir.UID]int)
		}
		delta[e.Host][e.Slot] += n
	}
	for _, e := range c.adds {
		bump(e, 1)
	}
	for _, e := range c.removes {
		bump(e, -1)
	}
	for _, rec := range c.wips {
		if delta[rec.ID] == nil {
			delta[rec.ID] = make(map[ir.UID]int)
		}
	}

	for _, host := range ir.SortedKeys(delta) {
		if c.deleted[host] {
			continue
		}
		slots, ok := c.slotsOf(host)
		if !ok {
			continue
		}
		var current map[ir.UID][]ir.UID
		if rec, ok := c.get(host); ok {
			current = rec.Outgoing
		}
		for _, slotID := range ir.SortedKeys(slots) {
			con := slots[slotID]
			n := len(current[slotID]) + delta[host][slotID]
			if !con.Bound.Allows(n) {
				c.errs = append(c.errs, ir.CardinalityOutOfRange(host, slotID, con.Slot.Tag.Name, n, con.Bound))
			}
		}
	}
}

// checkTypes checks every added edge's target against the host slot's
// effective constraint.
func (c *compilation) checkTypes() {
	for _, e := range c.adds {
		slots, ok := c.slotsOf(e.Host)
		if !ok {
			continue
		}
		con, ok := slots[e.Slot]
		if !ok {
			opID, _ := c.operativeOf(e.Host)
			err := ir.Errorf(ir.CodeSlotNotFound, "operative %s has no slot %s", opID, e.Slot)
			err.InstanceID, err.SlotID, err.OperativeID = e.Host, e.Slot, opID
			c.errs = append(c.errs, err)
			continue
		}
		targetOp, _ := c.operativeOf(e.Target)
		admitted, err := con.Admits(c.schema, c.eng.Resolver(), targetOp)
		if err != nil {
			c.errs = append(c.errs, graphError(e.Target, err))
			continue
		}
		if !admitted {
			c.errs = append(c.errs, ir.OutgoingElementWrongType(e.Host, e.Slot, e.Target, targetOp, con.Describe()))
		}
	}
}

// materialize completes new instances: a field left unset takes its locked
// value, otherwise it is reported empty.
func (c *compilation) materialize() []*ir.InstanceRecord {
	added := make([]*ir.InstanceRecord, 0, len(c.wips))
	for _, rec := range c.wips {
		tmpl, ok := c.schema.TemplateOf(rec.OperativeID)
		if !ok {
			continue
		}
		locked, err := c.eng.Resolver().LockedFields(c.schema, rec.OperativeID)
		if err != nil {
			c.errs = append(c.errs, graphError(rec.ID, err))
			continue
		}
		for _, fieldID := range ir.SortedKeys(tmpl.FieldConstraints) {
			if _, ok := rec.Fields[fieldID]; ok || c.rejected[fieldKey{instance: rec.ID, field: fieldID}] {
				continue
			}
			if lf, ok := locked[fieldID]; ok {
				rec.Fields[fieldID] = lf.Value
				continue
			}
			c.errs = append(c.errs, ir.RequiredFieldEmpty(rec.ID, fieldID, tmpl.FieldConstraints[fieldID].Tag.Name))
		}
		added = append(added, rec)
	}
	slices.SortFunc(added, func(a, b *ir.InstanceRecord) int { return a.ID.Compare(b.ID) })
	return added
}

// fieldUpdates turns staged edits into field edits against live values.
// Edits that would not change a value are dropped.
func (c *compilation) fieldUpdates() []ir.FieldEdit {
	var out []ir.FieldEdit
	for k, v := range c.edits {
		rec, ok := c.get(k.instance)
		if !ok {
			continue
		}
		prev := rec.Fields[k.field]
		if ir.Equal(prev, v) {
			continue
		}
		out = append(out, ir.FieldEdit{InstanceID: k.instance, FieldID: k.field, New: v, Prev: prev})
	}
	slices.SortFunc(out, func(a, b ir.FieldEdit) int {
		if n := a.InstanceID.Compare(b.InstanceID); n != 0 {
			return n
		}
		return a.FieldID.Compare(b.FieldID)
	})
	return out
}

// snapshots returns the pre-deletion records of deleted instances, fields
// only, in id order.
func (c *compilation) snapshots() []*ir.InstanceRecord {
	ids := ir.SortUIDs(slices.Clone(c.deletedBy))
	out := make([]*ir.InstanceRecord, len(ids))
	for i, id := range ids {
		rec, _ := c.get(id)
		out[i] = rec.WithoutEdges()
	}
	return out
}
