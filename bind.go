package atomicops

import (
	"fmt"
	"net/http"
	"sort"
)

// TargetedFields records which attributes and relationships a request
// explicitly carried, so business logic downstream knows what to persist.
// The sets grow monotonically over the lifetime of one request (or one
// operation in the operations path) and never shrink.
type TargetedFields struct {
	attributes    map[string]struct{}
	relationships map[string]struct{}
}

// NewTargetedFields returns an empty tracker.
func NewTargetedFields() *TargetedFields {
	return &TargetedFields{
		attributes:    make(map[string]struct{}),
		relationships: make(map[string]struct{}),
	}
}

// TargetAttribute records an attribute as explicitly present in the request.
func (t *TargetedFields) TargetAttribute(name string) {
	t.attributes[name] = struct{}{}
}

// TargetRelationship records a relationship as explicitly present in the request.
func (t *TargetedFields) TargetRelationship(name string) {
	t.relationships[name] = struct{}{}
}

// HasAttribute returns true if the attribute was targeted.
func (t *TargetedFields) HasAttribute(name string) bool {
	_, ok := t.attributes[name]
	return ok
}

// HasRelationship returns true if the relationship was targeted.
func (t *TargetedFields) HasRelationship(name string) bool {
	_, ok := t.relationships[name]
	return ok
}

// Attributes returns the targeted attribute names in sorted order.
func (t *TargetedFields) Attributes() []string { return sortedKeys(t.attributes) }

// Relationships returns the targeted relationship names in sorted order.
func (t *TargetedFields) Relationships() []string { return sortedKeys(t.relationships) }

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// FieldKind tags a processed field as an attribute or a relationship.
type FieldKind int

const (
	FieldAttribute    FieldKind = iota // FieldAttribute marks attribute fields.
	FieldRelationship                  // FieldRelationship marks relationship fields.
)

// Field describes one field applied to a domain instance: a tagged variant
// holding the attribute or relationship metadata depending on Kind.
type Field struct {
	Kind FieldKind  // Which variant is populated.
	Attr *Attribute // The attribute metadata, set when Kind is FieldAttribute.
	Rel  *Relation  // The relationship metadata, set when Kind is FieldRelationship.
}

// Name returns the public name of the field.
func (f Field) Name() string {
	if f.Kind == FieldAttribute {
		return f.Attr.Name
	}
	return f.Rel.Name
}

// FieldHook is invoked once per successfully applied field, giving the
// surrounding layer a chance to reject the field by returning a fault. A
// rejected field aborts the bind; an accepted field is recorded as targeted.
type FieldHook interface {
	AfterFieldProcessed(field Field, resource any) error
}

// FieldHookFunc functions implement FieldHook.
type FieldHookFunc func(field Field, resource any) error

// AfterFieldProcessed calls f(field, resource).
func (f FieldHookFunc) AfterFieldProcessed(field Field, resource any) error {
	return f(field, resource)
}

// WriteGate is the default field hook: it enforces attribute write
// capabilities based on the request kind. Creating requests require
// AllowCreate; updating requests require AllowChange. Relationships pass
// through unchecked.
type WriteGate struct {
	Creating bool // True when the request creates resources (POST).
}

// AfterFieldProcessed rejects attributes the request kind may not write.
func (g WriteGate) AfterFieldProcessed(field Field, resource any) error {
	if field.Kind != FieldAttribute {
		return nil
	}
	if g.Creating && !field.Attr.AllowCreate {
		return newFieldError(http.StatusUnprocessableEntity,
			"Setting the initial value of the requested attribute is not allowed.",
			fmt.Sprintf("Setting the initial value of '%s' is not allowed.", field.Attr.Name))
	}
	if !g.Creating && !field.Attr.AllowChange {
		return newFieldError(http.StatusUnprocessableEntity,
			"Changing the value of the requested attribute is not allowed.",
			fmt.Sprintf("Changing the value of '%s' is not allowed.", field.Attr.Name))
	}
	return nil
}

// BindOptions select the rules that apply while instantiating one wire
// resource object.
type BindOptions struct {
	Creating         bool // True when the surrounding request creates the resource.
	ReadOnly         bool // True when the request cannot modify server state.
	OperationPayload bool // True when the object came from an operations document.
}

// Binder converts validated wire resource objects into domain instances. It
// allocates through the resource context's factory, applies attribute and
// relationship values through the declared setters, and reports every applied
// field to the hook and the targeted-field tracker.
type Binder struct {
	Schema *Schema   // The resource-type registry.
	Hook   FieldHook // Optional extra hook, invoked after the write gate.
}

// Bind instantiates a domain resource from the wire object. It returns the
// populated instance and the fields the request explicitly targeted.
func (b Binder) Bind(res *Resource, opts BindOptions) (any, *TargetedFields, error) {
	targets := NewTargetedFields()
	instance, err := b.BindInto(res, opts, targets)
	return instance, targets, err
}

// BindInto is like Bind but accumulates targeted fields into an existing
// tracker, for callers that scope one tracker across several payloads.
func (b Binder) BindInto(res *Resource, opts BindOptions, targets *TargetedFields) (any, error) {
	resource, ok := b.Schema.Resolve(res.Type)
	if !ok {
		return nil, newFieldError(http.StatusUnprocessableEntity,
			"Request body includes unknown resource type.",
			fmt.Sprintf("Resource type '%s' does not exist.", res.Type))
	}

	instance := resource.New()

	if res.ID != "" {
		id, err := resource.ID.Decode(res.ID)
		if err != nil {
			return nil, newFieldError(http.StatusUnprocessableEntity, "Incompatible 'id' value.", err.Error())
		}
		resource.SetID(instance, id)
	}

	if err := b.bindAttributes(resource, res, instance, opts, targets); err != nil {
		return nil, err
	}
	if err := b.bindRelationships(resource, res, instance, opts, targets); err != nil {
		return nil, err
	}

	// a plain mutating request must not smuggle the identity in as a
	// writable attribute; operation payloads identify resources through
	// ref/data instead, so the check does not apply there.
	if !opts.OperationPayload && !opts.ReadOnly && targets.HasAttribute("id") {
		return nil, newFieldError(http.StatusForbidden, "Resource ID is read-only.", "")
	}

	return instance, nil
}

func (b Binder) bindAttributes(resource *ResourceContext, res *Resource, instance any, opts BindOptions, targets *TargetedFields) error {
	for name, value := range res.Attributes {
		attr, ok := resource.Attributes[name]
		if !ok {
			return newFieldError(http.StatusUnprocessableEntity,
				"Unknown attribute found.",
				fmt.Sprintf("Attribute '%s' does not exist on resource type '%s'.", name, resource.Name))
		}

		if attr.Set != nil {
			if err := attr.Set(instance, value); err != nil {
				return newFieldError(http.StatusUnprocessableEntity,
					"Incompatible attribute value found.",
					fmt.Sprintf("Failed to convert attribute '%s': %s", name, err))
			}
		}

		field := Field{Kind: FieldAttribute, Attr: attr}
		if err := b.afterFieldProcessed(field, instance, opts); err != nil {
			return err
		}
		targets.TargetAttribute(name)
	}
	return nil
}

func (b Binder) bindRelationships(resource *ResourceContext, res *Resource, instance any, opts BindOptions, targets *TargetedFields) error {
	for name, value := range res.Relationships {
		relation, ok := resource.Relations[name]
		if !ok {
			return newFieldError(http.StatusUnprocessableEntity,
				"Unknown relationship found.",
				fmt.Sprintf("Relationship '%s' does not exist on resource type '%s'.", name, resource.Name))
		}

		refs, err := b.decodeRelationship(relation, value)
		if err != nil {
			return err
		}

		if relation.Set != nil {
			if err := relation.Set(instance, refs); err != nil {
				return newFieldError(http.StatusUnprocessableEntity,
					"Incompatible relationship value found.",
					fmt.Sprintf("Failed to apply relationship '%s': %s", name, err))
			}
		}

		field := Field{Kind: FieldRelationship, Rel: relation}
		if err := b.afterFieldProcessed(field, instance, opts); err != nil {
			return err
		}
		targets.TargetRelationship(name)
	}
	return nil
}

func (b Binder) afterFieldProcessed(field Field, instance any, opts BindOptions) error {
	gate := WriteGate{Creating: opts.Creating}
	if err := gate.AfterFieldProcessed(field, instance); err != nil {
		return err
	}
	if b.Hook != nil {
		return b.Hook.AfterFieldProcessed(field, instance)
	}
	return nil
}

// decodeRelationship converts a wire relationship value into resolved
// identifiers, enforcing the declared shape and right-hand type. A null
// to-one value yields an empty identifier list.
func (b Binder) decodeRelationship(relation *Relation, value *Relationship) ([]Identifier, error) {
	if value == nil || value.Data == nil {
		return nil, newFieldError(http.StatusUnprocessableEntity,
			"Missing relationship data element.",
			fmt.Sprintf("Relationship '%s' requires a 'data' element.", relation.Name))
	}

	if relation.Kind == ToOne && value.Data.IsMany() {
		return nil, newFieldError(http.StatusUnprocessableEntity,
			"Expected single data element for to-one relationship.",
			fmt.Sprintf("Relationship '%s' is a to-one relationship.", relation.Name))
	}
	if relation.Kind == ToMany && !value.Data.IsMany() {
		return nil, newFieldError(http.StatusUnprocessableEntity,
			"Expected data[] element for to-many relationship.",
			fmt.Sprintf("Relationship '%s' is a to-many relationship.", relation.Name))
	}

	items := value.Data.Items()
	refs := make([]Identifier, 0, len(items))
	for _, item := range items {
		if item.Type == "" {
			return nil, newFieldError(http.StatusUnprocessableEntity,
				"Missing resource type in relationship data.",
				fmt.Sprintf("Relationship '%s' contains a resource identifier without a type.", relation.Name))
		}

		right, ok := b.Schema.Resolve(item.Type)
		if !ok {
			return nil, newFieldError(http.StatusUnprocessableEntity,
				"Request body includes unknown resource type.",
				fmt.Sprintf("Resource type '%s' does not exist.", item.Type))
		}
		if !b.Schema.AssignableTo(item.Type, relation.RightType) {
			return nil, newFieldError(http.StatusUnprocessableEntity,
				"Resource type mismatch between relationship and data element.",
				fmt.Sprintf("Type '%s' is incompatible with type '%s' of relationship '%s'.",
					item.Type, relation.RightType, relation.Name))
		}

		ref := Identifier{Type: item.Type, LocalID: item.LocalID}
		if item.ID != "" {
			id, err := right.ID.Decode(item.ID)
			if err != nil {
				return nil, newFieldError(http.StatusUnprocessableEntity,
					"Incompatible 'id' value in relationship data.", err.Error())
			}
			ref.ID = id
		}
		refs = append(refs, ref)
	}

	return refs, nil
}
