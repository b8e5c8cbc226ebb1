package atomicops

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gonobo/validator"
	"github.com/google/uuid"
)

// Schema is the resource-type registry: a flat mapping from public type names
// to resource metadata. It is populated once at startup and read-only
// afterwards, so it is safe for concurrent use by request handlers.
type Schema struct {
	types map[string]*ResourceContext
}

// NewSchema returns a registry holding the provided resource contexts.
func NewSchema(contexts ...*ResourceContext) *Schema {
	s := &Schema{types: make(map[string]*ResourceContext)}
	for _, rc := range contexts {
		s.Register(rc)
	}
	return s
}

// Register adds a resource context to the registry, replacing any previous
// entry with the same public name.
func (s *Schema) Register(rc *ResourceContext) {
	s.types[rc.Name] = rc
}

// Resolve returns the resource context registered under the public name.
func (s *Schema) Resolve(name string) (*ResourceContext, bool) {
	rc, ok := s.types[name]
	return rc, ok
}

// AssignableTo reports whether a resource of the named type can appear where
// the target type is expected: either the same type, or a type that
// transitively declares target as its parent.
func (s *Schema) AssignableTo(name, target string) bool {
	for name != "" {
		if name == target {
			return true
		}
		rc, ok := s.types[name]
		if !ok {
			return false
		}
		name = rc.Parent
	}
	return false
}

// Check verifies the registry's internal consistency: every context must be
// complete, and every parent and relationship right-hand type must resolve to
// a registered type. Call it once at startup, after all types are registered.
func (s *Schema) Check() error {
	var err error
	for _, rc := range s.types {
		err = errors.Join(err, s.checkContext(rc))
	}
	return err
}

func (s *Schema) checkContext(rc *ResourceContext) error {
	_, parentKnown := s.types[rc.Parent]
	err := validator.Validate(
		validator.All(
			validator.Rule(rc.Name != "", "resource type name missing or empty"),
			validator.Rule(rc.ID != nil, "type '%s': identity codec missing", rc.Name),
			validator.Rule(rc.New != nil, "type '%s': instance factory missing", rc.Name),
			validator.Rule(rc.Parent == "" || parentKnown,
				"type '%s': parent type '%s' is not registered", rc.Name, rc.Parent),
		),
	)

	for name, relation := range rc.Relations {
		_, rightKnown := s.types[relation.RightType]
		err = errors.Join(err, validator.Validate(
			validator.Rule(rightKnown,
				"type '%s': relationship '%s' names unregistered type '%s'",
				rc.Name, name, relation.RightType),
		))
	}
	return err
}

// ResourceContext is the registered metadata of one resource type: its public
// name, identity codec, declared fields, and a factory for domain instances.
type ResourceContext struct {
	Name       string                 // Name is the public resource type name, e.g. "musicTracks".
	Parent     string                 // Parent is the public name of the base type, when the type derives from one.
	ID         IDCodec                // ID converts between wire identifiers and typed identity values.
	Attributes map[string]*Attribute  // Attributes are the declared attributes, keyed by public name.
	Relations  map[string]*Relation   // Relations are the declared relationships, keyed by public name.
	New        func() any             // New allocates a fresh domain instance.
	SetID      func(resource, id any) // SetID assigns the typed identity to a domain instance.
}

// Attribute is the declared metadata of one attribute field.
type Attribute struct {
	Name        string                          // The public attribute name.
	AllowCreate bool                            // Whether a creating request may set the attribute.
	AllowChange bool                            // Whether an updating request may change the attribute.
	Set         func(resource, value any) error // Set writes the wire value onto the domain instance.
}

// RelKind tags a relationship as to-one or to-many.
type RelKind int

const (
	ToOne  RelKind = iota // ToOne relationships hold at most one right-hand resource.
	ToMany                // ToMany relationships hold an ordered set of right-hand resources.
)

// String returns the kind's name as used in fault details.
func (k RelKind) String() string {
	if k == ToMany {
		return "to-many"
	}
	return "to-one"
}

// Relation is the declared metadata of one relationship field.
type Relation struct {
	Name      string                                      // The public relationship name.
	Kind      RelKind                                     // Whether the relationship is to-one or to-many.
	RightType string                                      // The public name of the right-hand resource type.
	Set       func(resource any, refs []Identifier) error // Set writes the resolved identifiers onto the domain instance.
}

// Identifier is one resolved resource identifier inside a relationship value.
// ID holds the typed identity (decoded by the right-hand type's codec) when
// the wire object carried an "id"; LocalID holds the client-assigned "lid"
// otherwise.
type Identifier struct {
	Type    string // The public resource type name from the wire object.
	ID      any    // The typed identity value, nil when the wire object used a lid.
	LocalID string // The client-assigned local identifier, empty when ID is set.
}

// IDCodec converts between stringified wire identifiers and the typed
// identity values used by the domain layer. Decode fails with a format error
// when the wire value cannot represent the identity type.
type IDCodec interface {
	// Decode converts a wire identifier into a typed identity value.
	Decode(s string) (any, error)
	// Encode converts a typed identity value into its wire form.
	Encode(id any) string
}

// StringID is an IDCodec for resources whose identity is an opaque string.
type StringID struct{}

// Decode returns the wire value unchanged.
func (StringID) Decode(s string) (any, error) { return s, nil }

// Encode returns the identity value unchanged.
func (StringID) Encode(id any) string { return id.(string) }

// Int64ID is an IDCodec for resources keyed by a 64-bit integer.
type Int64ID struct{}

// Decode parses the wire value as a base-10 integer.
func (Int64ID) Decode(s string) (any, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to convert '%s' to type 'int64'", s)
	}
	return id, nil
}

// Encode formats the identity value as a base-10 integer.
func (Int64ID) Encode(id any) string { return strconv.FormatInt(id.(int64), 10) }

// UUIDID is an IDCodec for resources keyed by a UUID.
type UUIDID struct{}

// Decode parses the wire value as an RFC 4122 UUID.
func (UUIDID) Decode(s string) (any, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("failed to convert '%s' to type 'uuid': %s", s, err)
	}
	return id, nil
}

// Encode formats the identity value in canonical UUID form.
func (UUIDID) Encode(id any) string { return id.(uuid.UUID).String() }
