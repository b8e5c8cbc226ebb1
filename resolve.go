package atomicops

import (
	"context"
	"fmt"
)

// ExistenceChecker answers whether referenced resources exist in durable
// storage. Implementations may batch however they like; ids arrive already
// decoded to the resource's typed identity.
type ExistenceChecker interface {
	// Exists reports the subset of ids that do NOT exist for the given
	// resource type. The returned slice preserves the order of the input.
	Exists(ctx context.Context, resourceType string, ids []any) (missing []any, err error)
}

// ExistenceCheckerFunc functions implement ExistenceChecker.
type ExistenceCheckerFunc func(ctx context.Context, resourceType string, ids []any) ([]any, error)

// Exists calls f(ctx, resourceType, ids).
func (f ExistenceCheckerFunc) Exists(ctx context.Context, resourceType string, ids []any) ([]any, error) {
	return f(ctx, resourceType, ids)
}

// RefResolver is the second, batched validation phase: it verifies that every
// syntactically valid reference in an already-accepted document points at a
// resource that actually exists. Unlike the fail-fast grammar phase, this
// phase collects all unresolved references and reports them together, one 404
// fault per missing id.
//
// Local identifiers are resolved within the document itself: a lid declared
// by an earlier add operation is known for the rest of the batch, and a lid
// referenced before (or without) its declaration faults.
type RefResolver struct {
	Schema  *Schema          // The resource-type registry.
	Checker ExistenceChecker // The storage lookup collaborator.
}

// lookup is one pending existence check, remembering which operation asked.
type lookup struct {
	resourceType string
	wireID       string
	id           any
	index        int
}

// ResolveExistence verifies every resource reference of the checked
// operations against storage. It must only run after ValidateDocument has
// accepted the document. The returned error, when non-nil, is an ErrorList
// aggregating one fault per unresolved reference; execution of the whole
// document must be aborted on any fault.
func (r RefResolver) ResolveExistence(ctx context.Context, ops []*CheckedOperation) error {
	pending := make([]lookup, 0)
	faults := ErrorList{}
	declared := make(map[string]struct{})

	for _, op := range ops {
		// data objects of an add operation declare their lid for the rest
		// of the document before any of the operation's own references are
		// considered resolved.
		if op.Op == OpAdd && op.Target == nil && op.Single != nil && op.Single.LocalID != "" {
			declared[localKey(op.Resource.Name, op.Single.LocalID)] = struct{}{}
		}

		if op.Target != nil {
			if op.Target.ID != nil {
				pending = append(pending, lookup{
					resourceType: op.Target.Resource.Name,
					wireID:       op.Target.Resource.ID.Encode(op.Target.ID),
					id:           op.Target.ID,
					index:        op.Index,
				})
			} else if fault := r.checkLocalID(declared, op.Target.Resource.Name, op.Target.LocalID, op.Index); fault != nil {
				faults = append(faults, fault)
			}
		} else if op.Op != OpAdd && op.Single != nil && op.Single.LocalID != "" {
			// a ref-less update identifies its target through the payload's
			// lid; that lid is a reference, not a declaration.
			if fault := r.checkLocalID(declared, op.Resource.Name, op.Single.LocalID, op.Index); fault != nil {
				faults = append(faults, fault)
			}
		}

		for _, item := range identifierItems(op) {
			right, ok := r.Schema.Resolve(item.Type)
			if !ok {
				// identifiers nested in resource payloads are vetted by the
				// binder, not the grammar phase; leave the fault to it.
				continue
			}
			if item.ID != "" {
				id, err := right.ID.Decode(item.ID)
				if err != nil {
					continue
				}
				pending = append(pending, lookup{
					resourceType: right.Name,
					wireID:       item.ID,
					id:           id,
					index:        op.Index,
				})
			} else if fault := r.checkLocalID(declared, right.Name, item.LocalID, op.Index); fault != nil {
				faults = append(faults, fault)
			}
		}
	}

	resolved, err := r.resolveBatches(ctx, pending)
	if err != nil {
		return err
	}
	faults = append(faults, resolved...)

	if len(faults) > 0 {
		return faults
	}
	return nil
}

// resolveBatches groups pending lookups by resource type and issues one
// storage query per type.
func (r RefResolver) resolveBatches(ctx context.Context, pending []lookup) (ErrorList, error) {
	byType := make(map[string][]lookup)
	order := make([]string, 0)
	for _, l := range pending {
		if _, seen := byType[l.resourceType]; !seen {
			order = append(order, l.resourceType)
		}
		byType[l.resourceType] = append(byType[l.resourceType], l)
	}

	faults := ErrorList{}
	for _, resourceType := range order {
		lookups := byType[resourceType]
		ids := make([]any, 0, len(lookups))
		for _, l := range lookups {
			ids = append(ids, l.id)
		}

		missing, err := r.Checker.Exists(ctx, resourceType, ids)
		if err != nil {
			return nil, atomicError("existence check for type '%s': %s", resourceType, err)
		}

		for _, id := range missing {
			for _, l := range lookups {
				if l.id == id {
					faults = append(faults, newNotFoundError(l.index,
						fmt.Sprintf("Resource of type '%s' with ID '%s' does not exist.",
							resourceType, l.wireID)))
				}
			}
		}
	}

	return faults, nil
}

// checkLocalID faults when a referenced lid was never declared earlier in the
// document.
func (r RefResolver) checkLocalID(declared map[string]struct{}, resourceType, lid string, index int) *Error {
	if lid == "" {
		return nil
	}
	if _, ok := declared[localKey(resourceType, lid)]; ok {
		return nil
	}
	return newOperationError(index,
		"Request body includes undefined local ID.",
		fmt.Sprintf("Local ID '%s' of resource type '%s' is not declared by an earlier operation.", lid, resourceType))
}

func localKey(resourceType, lid string) string {
	return resourceType + "\x00" + lid
}

// identifierItems returns the resource identifier objects an operation's
// payload references: the elements of a relationship array, the single
// identifier of a to-one replacement, or the identifiers nested in a resource
// payload's relationship members.
func identifierItems(op *CheckedOperation) []*Resource {
	if op.Target != nil && op.Target.Relation != nil {
		if op.Collection != nil {
			return op.Collection
		}
		if op.Single != nil {
			return []*Resource{op.Single}
		}
		return nil
	}

	if op.Single == nil {
		return nil
	}
	items := make([]*Resource, 0)
	for _, rel := range op.Single.Relationships {
		if rel != nil && rel.Data != nil {
			items = append(items, rel.Data.Items()...)
		}
	}
	return items
}
