package atomicops

import (
	"fmt"
)

// Validator enforces the atomic operations grammar against a parsed document
// and the registered resource schema. Operations are checked strictly in
// array order and the first faulting operation stops the whole document;
// existence of referenced resources is deliberately not checked here (see
// RefResolver).
type Validator struct {
	Schema *Schema // The resource-type registry.
}

// CheckedOperation is the structured result of validating one operation:
// the resolved resource metadata and decoded identifiers downstream phases
// need, so no resolution work is repeated.
type CheckedOperation struct {
	Index      int              // Position of the operation in the request array.
	Op         Op               // The operation code.
	Target     *Target          // The resolved ref, nil for operations without one.
	Resource   *ResourceContext // The context of the operated-on resource type.
	Single     *Resource        // The single payload object, nil when absent or null.
	Collection []*Resource      // The array payload; non-nil (possibly empty) only for to-many targets.
}

// Target is a validated, resolved operation ref.
type Target struct {
	Resource *ResourceContext // The resolved resource context of ref.type.
	Relation *Relation        // The resolved relationship, nil when the ref names none.
	ID       any              // The typed identity decoded from ref.id, nil when ref used a lid.
	LocalID  string           // The client-assigned local identifier from ref.lid.
}

// ValidateDocument walks the document's operations in order, validating each
// one. It returns the checked operations on success, or the first operation's
// fault. An empty document is rejected with the document-level fault.
func (v Validator) ValidateDocument(doc *Document) ([]*CheckedOperation, error) {
	if doc == nil || len(doc.Operations) == 0 {
		return nil, NewDocumentError("No operations found.")
	}

	checked := make([]*CheckedOperation, 0, len(doc.Operations))
	for index, op := range doc.Operations {
		result, err := v.ValidateOperation(op, index)
		if err != nil {
			return nil, err
		}
		checked = append(checked, result)
	}
	return checked, nil
}

// ValidateOperation validates a single operation located at the given index.
// Checks run top to bottom; the first violated check short-circuits the rest,
// so an operation with several problems reports only the first one.
func (v Validator) ValidateOperation(op *Operation, index int) (*CheckedOperation, error) {
	if op.Href != "" {
		return nil, newOperationError(index, "Usage of the 'href' element is not supported.", "")
	}

	if !op.Op.Valid() {
		return nil, newOperationError(index,
			"Request body includes unknown operation code.",
			fmt.Sprintf("Operation code '%s' is not supported.", op.Op))
	}

	if op.Op == OpRemove && op.Ref == nil {
		return nil, newOperationError(index, "The 'ref' element is required.", "")
	}

	if op.Ref != nil {
		return v.validateRefOperation(op, index)
	}

	return v.validateResourceOperation(op, index)
}

// validateRefOperation validates an operation that targets a resource or
// relationship through its ref.
func (v Validator) validateRefOperation(op *Operation, index int) (*CheckedOperation, error) {
	ref := op.Ref

	if op.Op == OpAdd && ref.Relationship == "" {
		return nil, newOperationError(index, "The 'ref.relationship' element is required.", "")
	}

	if ref.Type == "" {
		return nil, newOperationError(index, "The 'ref.type' element is required.", "")
	}

	resource, ok := v.Schema.Resolve(ref.Type)
	if !ok {
		return nil, unknownResourceType(index, ref.Type)
	}

	if err := exactlyOneIdentifier(index, "ref", ref.ID, ref.LocalID); err != nil {
		return nil, err
	}

	target := &Target{Resource: resource, LocalID: ref.LocalID}

	if ref.ID != "" {
		id, err := resource.ID.Decode(ref.ID)
		if err != nil {
			return nil, newOperationError(index, "Incompatible 'ref.id' value.", err.Error())
		}
		target.ID = id
	}

	if ref.Relationship != "" {
		return v.validateRelationshipTarget(op, index, target)
	}

	checked := &CheckedOperation{Index: index, Op: op.Op, Target: target, Resource: resource}

	if op.Op == OpRemove {
		// a remove with a ref needs no data; any payload present is ignored
		// by the grammar.
		return checked, nil
	}

	// update of a resource through its ref; the payload, when present, must
	// be a single object consistent with the ref.
	if op.Data == nil {
		return checked, nil
	}
	if op.Data.IsMany() {
		return nil, newOperationError(index, "Expected single data element for resource operation.", "")
	}

	single := op.Data.First()
	if single == nil {
		return nil, newOperationError(index, "The 'data' element is required.", "")
	}
	if err := v.validateRefDataConsistency(index, ref, single); err != nil {
		return nil, err
	}

	checked.Single = single
	return checked, nil
}

// validateRefDataConsistency checks that an update operation's data object
// identifies the same resource as its ref.
func (v Validator) validateRefDataConsistency(index int, ref *Ref, data *Resource) error {
	if data.Type == "" {
		return newOperationError(index, "The 'data.type' element is required.", "")
	}
	if data.Type != ref.Type {
		return newOperationError(index,
			"Resource type mismatch between 'ref.type' and 'data.type' element.",
			fmt.Sprintf("Expected resource of type '%s' in 'data.type', instead of '%s'.", ref.Type, data.Type))
	}
	if err := exactlyOneIdentifier(index, "data", data.ID, data.LocalID); err != nil {
		return err
	}
	if ref.ID != "" && data.ID != ref.ID {
		return newOperationError(index,
			"Resource ID mismatch between 'ref.id' and 'data.id' element.",
			fmt.Sprintf("Expected resource with ID '%s' in 'data.id', instead of '%s'.", ref.ID, data.ID))
	}
	if ref.LocalID != "" && data.LocalID != ref.LocalID {
		return newOperationError(index,
			"Resource local ID mismatch between 'ref.lid' and 'data.lid' element.",
			fmt.Sprintf("Expected resource with local ID '%s' in 'data.lid', instead of '%s'.", ref.LocalID, data.LocalID))
	}
	return nil
}

// validateRelationshipTarget validates an operation whose ref names a
// relationship on the targeted resource.
func (v Validator) validateRelationshipTarget(op *Operation, index int, target *Target) (*CheckedOperation, error) {
	ref := op.Ref
	resource := target.Resource

	relation, ok := resource.Relations[ref.Relationship]
	if !ok {
		return nil, newOperationError(index,
			"The referenced relationship does not exist.",
			fmt.Sprintf("Resource of type '%s' does not contain a relationship named '%s'.",
				resource.Name, ref.Relationship))
	}
	target.Relation = relation

	if relation.Kind == ToOne && op.Op != OpUpdate {
		return nil, newOperationError(index,
			"Only to-many relationships can be targeted through add or remove operations.",
			fmt.Sprintf("Relationship '%s' is a to-one relationship of resource type '%s'.",
				relation.Name, resource.Name))
	}

	checked := &CheckedOperation{Index: index, Op: op.Op, Target: target, Resource: resource}

	if relation.Kind == ToOne {
		if op.Data != nil && op.Data.IsMany() {
			return nil, newOperationError(index,
				"Expected single data element for to-one relationship.",
				fmt.Sprintf("Relationship '%s' is a to-one relationship of resource type '%s'.",
					relation.Name, resource.Name))
		}
		// a null data element clears the to-one relationship; nothing more
		// to check in that case.
		if single := dataFirst(op.Data); single != nil {
			if err := v.validateIdentifierObject(index, "data", single, relation); err != nil {
				return nil, err
			}
			checked.Single = single
		}
		return checked, nil
	}

	// to-many relationships always take an array, even an empty one.
	if op.Data == nil || !op.Data.IsMany() {
		return nil, newOperationError(index,
			"Expected data[] element for to-many relationship.",
			fmt.Sprintf("Relationship '%s' is a to-many relationship of resource type '%s'.",
				relation.Name, resource.Name))
	}

	items := op.Data.Items()
	for _, item := range items {
		if err := v.validateIdentifierObject(index, "data[]", item, relation); err != nil {
			return nil, err
		}
	}

	checked.Collection = items
	return checked, nil
}

// validateResourceOperation validates an add or update operation that carries
// its resource in the data element, without a ref.
func (v Validator) validateResourceOperation(op *Operation, index int) (*CheckedOperation, error) {
	single := dataFirst(op.Data)
	if op.Data != nil && op.Data.IsMany() {
		return nil, newOperationError(index, "Expected single data element for resource operation.", "")
	}
	if single == nil {
		return nil, newOperationError(index, "The 'data' element is required.", "")
	}

	if single.Type == "" {
		return nil, newOperationError(index, "The 'data.type' element is required.", "")
	}

	resource, ok := v.Schema.Resolve(single.Type)
	if !ok {
		return nil, unknownResourceType(index, single.Type)
	}

	if single.ID != "" && single.LocalID != "" {
		return nil, newOperationError(index, "The 'data.id' and 'data.lid' element are mutually exclusive.", "")
	}

	// an update must identify its target; an add may leave both out and let
	// the server assign the identity.
	if op.Op == OpUpdate && single.ID == "" && single.LocalID == "" {
		return nil, newOperationError(index, "The 'data.id' or 'data.lid' element is required.", "")
	}

	if single.ID != "" {
		if _, err := resource.ID.Decode(single.ID); err != nil {
			return nil, newOperationError(index, "Incompatible 'data.id' value.", err.Error())
		}
	}

	return &CheckedOperation{Index: index, Op: op.Op, Resource: resource, Single: single}, nil
}

// validateIdentifierObject checks one resource identifier object appearing in
// relationship data: its type must be declared, resolve in the registry, and
// be assignable to the relationship's right-hand type; exactly one of id and
// lid must be set; a present id must decode under the element type's codec.
func (v Validator) validateIdentifierObject(index int, label string, item *Resource, relation *Relation) error {
	if item.Type == "" {
		return newOperationError(index, fmt.Sprintf("The '%s.type' element is required.", label), "")
	}

	if err := exactlyOneIdentifier(index, label, item.ID, item.LocalID); err != nil {
		return err
	}

	resource, ok := v.Schema.Resolve(item.Type)
	if !ok {
		return unknownResourceType(index, item.Type)
	}

	if !v.Schema.AssignableTo(item.Type, relation.RightType) {
		return newOperationError(index,
			"Resource type mismatch between relationship and data element.",
			fmt.Sprintf("Type '%s' is incompatible with type '%s' of relationship '%s'.",
				item.Type, relation.RightType, relation.Name))
	}

	if item.ID != "" {
		if _, err := resource.ID.Decode(item.ID); err != nil {
			return newOperationError(index, fmt.Sprintf("Incompatible '%s.id' value.", label), err.Error())
		}
	}

	return nil
}

// exactlyOneIdentifier enforces that exactly one of the id and lid members is
// present on the labeled element.
func exactlyOneIdentifier(index int, label, id, lid string) error {
	if id != "" && lid != "" {
		return newOperationError(index,
			fmt.Sprintf("The '%s.id' and '%s.lid' element are mutually exclusive.", label, label), "")
	}
	if id == "" && lid == "" {
		return newOperationError(index,
			fmt.Sprintf("The '%s.id' or '%s.lid' element is required.", label, label), "")
	}
	return nil
}

// unknownResourceType is the fault raised whenever a type name fails to
// resolve in the registry, regardless of where the name appeared.
func unknownResourceType(index int, name string) *Error {
	return newOperationError(index,
		"Request body includes unknown resource type.",
		fmt.Sprintf("Resource type '%s' does not exist.", name))
}

// dataFirst returns the single resource held by a data node, or nil when the
// node is absent, null, or an array.
func dataFirst(data PrimaryData) *Resource {
	if data == nil || data.IsMany() {
		return nil
	}
	return data.First()
}
