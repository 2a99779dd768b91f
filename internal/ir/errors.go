package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes graph errors.
type ErrorCode string

const (
	// CodeRequiredFieldEmpty indicates a new instance is missing a required field.
	CodeRequiredFieldEmpty ErrorCode = "REQUIRED_FIELD_EMPTY"

	// CodeCardinalityOutOfRange indicates a slot count would violate its effective bound.
	CodeCardinalityOutOfRange ErrorCode = "CARDINALITY_OUT_OF_RANGE"

	// CodeOutgoingElementWrongType indicates a target does not satisfy the slot descriptor.
	CodeOutgoingElementWrongType ErrorCode = "OUTGOING_ELEMENT_WRONG_TYPE"

	// CodeOutgoingElementDoesNotExist indicates a referenced instance is not live.
	CodeOutgoingElementDoesNotExist ErrorCode = "OUTGOING_ELEMENT_DOES_NOT_EXIST"

	// CodeNonexistentTempID indicates a temporary id was never assigned.
	CodeNonexistentTempID ErrorCode = "NONEXISTENT_TEMP_ID"

	// CodeFieldNotFound indicates a field id is not declared on the template.
	CodeFieldNotFound ErrorCode = "FIELD_NOT_FOUND"

	// CodeFieldTypeMismatch indicates a value's type differs from the field constraint.
	CodeFieldTypeMismatch ErrorCode = "FIELD_TYPE_MISMATCH"

	// CodeLockedFieldViolation indicates a locked field would take a different value.
	CodeLockedFieldViolation ErrorCode = "LOCKED_FIELD_VIOLATION"

	// CodeSlotNotFound indicates a slot id is not declared on the template.
	CodeSlotNotFound ErrorCode = "SLOT_NOT_FOUND"

	// CodeDuplicateTempID indicates two new instances claimed the same temporary id.
	CodeDuplicateTempID ErrorCode = "DUPLICATE_TEMP_ID"

	// CodeInstanceExists indicates a new instance's UID is already live.
	CodeInstanceExists ErrorCode = "INSTANCE_ALREADY_EXISTS"

	// CodeOperativeNotFound indicates an operative id is not in the schema.
	CodeOperativeNotFound ErrorCode = "OPERATIVE_NOT_FOUND"

	// CodeEdgeDuality indicates outgoing and incoming edge lists disagree.
	CodeEdgeDuality ErrorCode = "EDGE_DUALITY"

	// CodeSpecializationInvalid indicates a slot specialization is not a narrowing
	// or conflicts with the live graph.
	CodeSpecializationInvalid ErrorCode = "SPECIALIZATION_INVALID"
)

// Error is one atomic graph error. Only the identifiers relevant to the code
// are set.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// InstanceID is the instance being created or edited (host for slot errors).
	InstanceID UID

	// FieldID is set for field errors.
	FieldID UID

	// SlotID is set for slot errors.
	SlotID UID

	// OperativeID is the offending operative (wrong-type target, missing operative).
	OperativeID UID

	// TargetID is the referenced instance for edge errors.
	TargetID UID

	// TempID is set for temporary id errors.
	TempID string

	// Attempted is the slot count that failed the bound.
	Attempted int

	// Bound is the effective bound that was violated.
	Bound *SlotBound

	// Expected describes the slot descriptor for type errors.
	Expected string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "graph error <nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	var ctx []string
	if !e.InstanceID.IsZero() {
		ctx = append(ctx, "instance="+e.InstanceID.String())
	}
	if !e.SlotID.IsZero() {
		ctx = append(ctx, "slot="+e.SlotID.String())
	}
	if !e.FieldID.IsZero() {
		ctx = append(ctx, "field="+e.FieldID.String())
	}
	if e.TempID != "" {
		ctx = append(ctx, "temp_id="+e.TempID)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	return b.String()
}

// RequiredFieldEmpty reports a missing required field on a new instance.
func RequiredFieldEmpty(instance, field UID, name string) *Error {
	return &Error{
		Code:       CodeRequiredFieldEmpty,
		Message:    fmt.Sprintf("required field %q is empty", name),
		InstanceID: instance,
		FieldID:    field,
	}
}

// CardinalityOutOfRange reports a slot count outside its effective bound.
func CardinalityOutOfRange(host, slot UID, name string, attempted int, bound SlotBound) *Error {
	return &Error{
		Code:       CodeCardinalityOutOfRange,
		Message:    fmt.Sprintf("slot %q would hold %d element(s), bound is %s", name, attempted, bound),
		InstanceID: host,
		SlotID:     slot,
		Attempted:  attempted,
		Bound:      &bound,
	}
}

// OutgoingElementWrongType reports a target whose operative the slot does not admit.
func OutgoingElementWrongType(host, slot, target, got UID, expected string) *Error {
	return &Error{
		Code:        CodeOutgoingElementWrongType,
		Message:     fmt.Sprintf("operative %s does not satisfy %s", got, expected),
		InstanceID:  host,
		SlotID:      slot,
		TargetID:    target,
		OperativeID: got,
		Expected:    expected,
	}
}

// OutgoingElementDoesNotExist reports a reference to an instance that is not live.
func OutgoingElementDoesNotExist(id UID) *Error {
	return &Error{
		Code:     CodeOutgoingElementDoesNotExist,
		Message:  fmt.Sprintf("instance %s does not exist", id),
		TargetID: id,
	}
}

// NonexistentTempID reports an unresolved temporary id.
func NonexistentTempID(tempID string) *Error {
	return &Error{
		Code:    CodeNonexistentTempID,
		Message: fmt.Sprintf("temporary id %q was never assigned", tempID),
		TempID:  tempID,
	}
}

// Errorf builds an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AggregateError carries every error found by one operation.
type AggregateError struct {
	Errors []*Error
}

// Error returns the first error plus a count of the rest.
func (a *AggregateError) Error() string {
	switch len(a.Errors) {
	case 0:
		return "no graph errors"
	case 1:
		return a.Errors[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", a.Errors[0].Error(), len(a.Errors)-1)
	}
}

// Unwrap exposes the atomic errors to errors.Is and errors.As.
func (a *AggregateError) Unwrap() []error {
	out := make([]error, len(a.Errors))
	for i, e := range a.Errors {
		out[i] = e
	}
	return out
}

// Aggregate wraps errs, or returns nil when there are none.
func Aggregate(errs []*Error) error {
	if len(errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: errs}
}

// AsErrors extracts the atomic errors from err, which may be an Error, an
// AggregateError, or either wrapped.
func AsErrors(err error) []*Error {
	if err == nil {
		return nil
	}
	var agg *AggregateError
	if errors.As(err, &agg) {
		return agg.Errors
	}
	var single *Error
	if errors.As(err, &single) {
		return []*Error{single}
	}
	return nil
}

// HasCode reports whether err carries an atomic error with the given code.
func HasCode(err error, code ErrorCode) bool {
	for _, e := range AsErrors(err) {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Codes lists the codes carried by err in order.
func Codes(err error) []ErrorCode {
	errs := AsErrors(err)
	out := make([]ErrorCode, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}
