// Package atomicops implements server-side parsing, validation, and
// deserialization of JSON:API atomic operation requests, as defined by the
// atomic operations extension. See https://jsonapi.org/ext/atomic for details.
//
// A request document contains an ordered list of add, update, and remove
// operations that the server executes as one all-or-nothing unit. This package
// covers the request side only: turning the raw body into a wire model,
// checking every operation against the extension grammar and the registered
// resource schema, and converting validated resource objects into domain
// instances. Persistence and response serialization are left to the caller.
package atomicops

import (
	"encoding/json"
	"errors"

	"github.com/henkedude/atomicops/internal/rawjson"
)

const (
	// MediaType is the JSON:API media type.
	MediaType = "application/vnd.api+json"

	// ExtensionURI identifies the atomic operations extension in content
	// negotiation, e.g. `application/vnd.api+json; ext="https://jsonapi.org/ext/atomic"`.
	ExtensionURI = "https://jsonapi.org/ext/atomic"

	// MemberOperations is the top-level document member holding the operations array.
	MemberOperations = "atomic:operations"
)

// Op is the operation code of a single atomic operation.
type Op string

const (
	OpAdd    Op = "add"    // OpAdd creates a resource or adds members to a to-many relationship.
	OpUpdate Op = "update" // OpUpdate updates a resource or replaces a relationship.
	OpRemove Op = "remove" // OpRemove deletes a resource or removes members from a to-many relationship.
)

// Valid returns true if the code is one of the operation codes defined by the
// atomic operations extension.
func (o Op) Valid() bool {
	switch o {
	case OpAdd, OpUpdate, OpRemove:
		return true
	}
	return false
}

// Meta contains non-standard information within a document node.
type Meta = map[string]any

// Document is the root envelope of an atomic operations request: an ordered
// sequence of operations executed as one logical unit.
//
// Operations is nil when the request document did not contain an
// "atomic:operations" member at all, and an empty non-nil slice when the
// member was present but empty. Both shapes are rejected by the parser.
type Document struct {
	Operations []*Operation // The ordered operations array.
	Meta       Meta         // Top-level metadata.
}

// MarshalJSON serializes the document as JSON.
func (d Document) MarshalJSON() ([]byte, error) {
	type out struct {
		Operations []*Operation `json:"atomic:operations"`
		Meta       Meta         `json:"meta,omitempty"`
	}
	ops := d.Operations
	if ops == nil {
		ops = []*Operation{}
	}
	return json.Marshal(out{Operations: ops, Meta: d.Meta})
}

// UnmarshalJSON deserializes the document from JSON, preserving the
// distinction between a missing and an empty operations array.
func (d *Document) UnmarshalJSON(data []byte) error {
	type in struct {
		Operations *json.RawMessage `json:"atomic:operations"`
		Meta       Meta             `json:"meta,omitempty"`
	}

	node := in{}
	if err := json.Unmarshal(data, &node); err != nil {
		return err
	}

	d.Meta = node.Meta
	d.Operations = nil

	if node.Operations == nil || rawjson.IsNull(*node.Operations) {
		// member absent (or explicitly null); leave Operations nil.
		return nil
	}

	ops := make([]*Operation, 0)
	if err := json.Unmarshal(*node.Operations, &ops); err != nil {
		return err
	}
	d.Operations = ops
	return nil
}

// Operation is one entry of the operations array. It is built once by the
// parser and treated as immutable afterwards.
type Operation struct {
	Op   Op          // The operation code: add, update, or remove.
	Href string      // Legacy target URI; always rejected by the validator.
	Ref  *Ref        // Reference to the targeted resource or relationship, if any.
	Data PrimaryData // The operation payload: nil when absent, One for object or null, Many for arrays.
	Meta Meta        // Non-standard information about the operation.
}

// MarshalJSON serializes the operation as JSON.
func (op Operation) MarshalJSON() ([]byte, error) {
	type out struct {
		Op   Op          `json:"op"`
		Href string      `json:"href,omitempty"`
		Ref  *Ref        `json:"ref,omitempty"`
		Data PrimaryData `json:"data,omitempty"`
		Meta Meta        `json:"meta,omitempty"`
	}
	return json.Marshal(out(op))
}

// UnmarshalJSON deserializes the operation from JSON. The "data" member is
// sniffed from the raw bytes so that the absent, null, single-object, and
// array shapes remain distinguishable downstream.
func (op *Operation) UnmarshalJSON(data []byte) error {
	type in struct {
		Op   Op               `json:"op"`
		Href string           `json:"href,omitempty"`
		Ref  *Ref             `json:"ref,omitempty"`
		Data *json.RawMessage `json:"data,omitempty"`
		Meta Meta             `json:"meta,omitempty"`
	}

	node := in{}
	errs := make([]error, 0)
	errs = append(errs, json.Unmarshal(data, &node))

	op.Op = node.Op
	op.Href = node.Href
	op.Ref = node.Ref
	op.Meta = node.Meta
	op.Data, errs = unmarshalData(data, node.Data, errs)

	return errors.Join(errs...)
}

// unmarshalData decodes a "data" member into its PrimaryData shape. The key
// must be inspected on the raw enclosing object: encoding/json leaves the raw
// pointer nil for both a missing member and an explicit null.
func unmarshalData(enclosing []byte, raw *json.RawMessage, errs []error) (PrimaryData, []error) {
	keys := make(map[string]json.RawMessage)
	errs = append(errs, json.Unmarshal(enclosing, &keys))
	_, present := keys["data"]

	switch {
	case present && (raw == nil || rawjson.IsNull(*raw)):
		// "data": null
		return One{}, errs
	case raw == nil:
		// member absent
		return nil, errs
	case rawjson.IsArray(*raw):
		many := Many{}
		errs = append(errs, json.Unmarshal(*raw, &many))
		return many, errs
	case rawjson.IsObject(*raw):
		one := One{}
		errs = append(errs, json.Unmarshal(*raw, &one))
		return one, errs
	default:
		errs = append(errs, atomicError("data member is not an object, array, or null"))
		return nil, errs
	}
}

// Ref identifies the target of an operation: a resource, or a relationship on
// a resource. Exactly one of ID and LocalID must be set; the validator
// enforces this.
type Ref struct {
	Type         string `json:"type,omitempty"`         // The public resource type name.
	ID           string `json:"id,omitempty"`           // The server-assigned resource identifier.
	LocalID      string `json:"lid,omitempty"`          // The client-assigned local identifier.
	Relationship string `json:"relationship,omitempty"` // The public relationship name, when targeting a relationship.
}

// Resource is a JSON:API resource object as it appears in an operation
// payload or a plain request document.
// See https://jsonapi.org/format/#document-resource-objects for details.
type Resource struct {
	Type          string                   // Type is the public resource type name.
	ID            string                   // ID is the server-assigned identifier.
	LocalID       string                   // LocalID is the client-assigned identifier, scoped to the document.
	Attributes    map[string]any           // Attributes are the resource's attribute values.
	Relationships map[string]*Relationship // Relationships are the resource's relationship values.
	Meta          Meta                     // Meta contains non-standard information about the resource.
}

// MarshalJSON serializes the resource as JSON.
func (r Resource) MarshalJSON() ([]byte, error) {
	type out struct {
		Type          string                   `json:"type"`
		ID            string                   `json:"id,omitempty"`
		LocalID       string                   `json:"lid,omitempty"`
		Attributes    map[string]any           `json:"attributes,omitempty"`
		Relationships map[string]*Relationship `json:"relationships,omitempty"`
		Meta          Meta                     `json:"meta,omitempty"`
	}
	return json.Marshal(out(r))
}

// UnmarshalJSON deserializes the resource from JSON.
func (r *Resource) UnmarshalJSON(data []byte) error {
	type in struct {
		Type          string                   `json:"type"`
		ID            string                   `json:"id,omitempty"`
		LocalID       string                   `json:"lid,omitempty"`
		Attributes    map[string]any           `json:"attributes,omitempty"`
		Relationships map[string]*Relationship `json:"relationships,omitempty"`
		Meta          Meta                     `json:"meta,omitempty"`
	}

	node := in{}
	err := json.Unmarshal(data, &node)

	r.Type = node.Type
	r.ID = node.ID
	r.LocalID = node.LocalID
	r.Attributes = node.Attributes
	r.Relationships = node.Relationships
	r.Meta = node.Meta

	return err
}

// Identity returns the identifier present on the resource: the server-assigned
// ID when set, the local ID otherwise.
func (r Resource) Identity() string {
	if r.ID != "" {
		return r.ID
	}
	return r.LocalID
}

// Relationship holds the data of one relationship member on a resource
// object. To-one relationships carry a One node (possibly null); to-many
// relationships carry a Many node.
type Relationship struct {
	Data PrimaryData `json:"data,omitempty"` // Resource identifiers associated with the relationship.
	Meta Meta        `json:"meta,omitempty"` // Non-standard information about the relationship.
}

// UnmarshalJSON deserializes the relationship from JSON, sniffing the data
// member's shape from the raw bytes.
func (rel *Relationship) UnmarshalJSON(data []byte) error {
	type in struct {
		Data *json.RawMessage `json:"data,omitempty"`
		Meta Meta             `json:"meta,omitempty"`
	}

	node := in{}
	errs := make([]error, 0)
	errs = append(errs, json.Unmarshal(data, &node))

	rel.Meta = node.Meta
	rel.Data, errs = unmarshalData(data, node.Data, errs)

	return errors.Join(errs...)
}

// PrimaryData is the payload of an operation or relationship. Since the data
// member can hold either a single resource object or an array of resource
// objects, PrimaryData has helper functions to both identify and iterate over
// said resources.
type PrimaryData interface {
	// Items returns the contained resources as a collection. A null One node
	// yields an empty slice.
	Items() []*Resource
	// IsMany returns true if the data member was a JSON array.
	IsMany() bool
	// First returns the single resource, or the first element of an array, or
	// nil when the node is null or empty.
	First() *Resource
}

// One is a data node holding a single resource object, or JSON null when
// Value is nil.
type One struct {
	Value *Resource `json:"-"` // Value is the single resource.
}

// IsMany returns false: the node holds at most one resource.
func (One) IsMany() bool { return false }

// IsNull returns true if the node was JSON null.
func (o One) IsNull() bool { return o.Value == nil }

// First returns the resource value (if present) or nil.
func (o One) First() *Resource { return o.Value }

// Items returns the underlying value in a collection.
func (o One) Items() []*Resource {
	if o.IsNull() {
		return nil
	}
	return []*Resource{o.Value}
}

// MarshalJSON serializes the node to JSON.
func (o One) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value)
}

// UnmarshalJSON deserializes the node from JSON.
func (o *One) UnmarshalJSON(data []byte) error {
	o.Value = &Resource{}
	return json.Unmarshal(data, o.Value)
}

// Many is a data node holding an array of resource objects. The array may be
// empty: an empty array is how a client clears a to-many relationship.
type Many struct {
	Value []*Resource `json:"-"` // Value is the collection of resources.
}

// IsMany returns true: the node was a JSON array.
func (Many) IsMany() bool { return true }

// First returns the first element, or nil for an empty array.
func (m Many) First() *Resource {
	if len(m.Value) == 0 {
		return nil
	}
	return m.Value[0]
}

// Items returns the underlying value collection.
func (m Many) Items() []*Resource { return m.Value }

// MarshalJSON serializes the node to JSON.
func (m Many) MarshalJSON() ([]byte, error) {
	if m.Value == nil {
		m.Value = []*Resource{}
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON deserializes the node from JSON.
func (m *Many) UnmarshalJSON(data []byte) error {
	m.Value = make([]*Resource, 0)
	return json.Unmarshal(data, &m.Value)
}
