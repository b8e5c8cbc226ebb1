package atomicops

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// BoundOperation is the final product of the request pipeline for one
// operation: the checked grammar result plus, for operations that carry a
// resource payload, the instantiated domain resource and the fields the
// client explicitly targeted.
type BoundOperation struct {
	*CheckedOperation
	Instance any             // The bound domain instance; nil for remove and relationship operations.
	Targets  *TargetedFields // The fields targeted by this operation.
}

// RequestDeserializer runs the full request pipeline: wire parsing, grammar
// validation, batched reference resolution, and resource instantiation. One
// instance is safe for concurrent use; all per-request state lives in the
// call.
type RequestDeserializer struct {
	Schema  *Schema            // The resource-type registry.
	Checker ExistenceChecker   // Optional storage lookup; reference resolution is skipped when nil.
	Hook    FieldHook          // Optional extra field hook, invoked after the write gate.
	Logger  logrus.FieldLogger // Defaults to the logrus standard logger.
}

// NewRequestDeserializer returns a deserializer for the given registry.
func NewRequestDeserializer(schema *Schema, options ...func(*RequestDeserializer)) *RequestDeserializer {
	d := &RequestDeserializer{
		Schema: schema,
		Logger: logrus.StandardLogger(),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// WithExistenceChecker enables the batched reference-resolution phase.
func WithExistenceChecker(checker ExistenceChecker) func(*RequestDeserializer) {
	return func(d *RequestDeserializer) { d.Checker = checker }
}

// WithFieldHook installs an extra hook invoked after every applied field.
func WithFieldHook(hook FieldHook) func(*RequestDeserializer) {
	return func(d *RequestDeserializer) { d.Hook = hook }
}

// WithLogger replaces the default logger.
func WithLogger(logger logrus.FieldLogger) func(*RequestDeserializer) {
	return func(d *RequestDeserializer) { d.Logger = logger }
}

// DeserializeOperations processes an atomic operations request body end to
// end. Grammar faults abort on the first bad operation; reference-resolution
// faults are aggregated and returned together. Each bound operation carries
// its own targeted-field record.
func (d *RequestDeserializer) DeserializeOperations(ctx context.Context, body io.Reader) ([]*BoundOperation, error) {
	doc, err := Parser{}.ParseOperations(body)
	if err != nil {
		return nil, err
	}
	d.Logger.WithField("operations", len(doc.Operations)).Debug("parsed atomic operations document")

	checked, err := Validator{Schema: d.Schema}.ValidateDocument(doc)
	if err != nil {
		return nil, err
	}

	if d.Checker != nil {
		if err := (RefResolver{Schema: d.Schema, Checker: d.Checker}).ResolveExistence(ctx, checked); err != nil {
			return nil, err
		}
	}

	binder := Binder{Schema: d.Schema, Hook: d.Hook}
	bound := make([]*BoundOperation, 0, len(checked))

	for _, op := range checked {
		result := &BoundOperation{CheckedOperation: op, Targets: NewTargetedFields()}

		if op.Target != nil && op.Target.Relation != nil {
			// relationship operations have no resource to instantiate; the
			// relationship itself is the targeted field.
			result.Targets.TargetRelationship(op.Target.Relation.Name)
		} else if op.Single != nil {
			instance, err := binder.BindInto(op.Single, BindOptions{
				Creating:         op.Op == OpAdd,
				OperationPayload: true,
			}, result.Targets)
			if err != nil {
				return nil, withOperationPointer(err, op.Index)
			}
			result.Instance = instance
		}

		bound = append(bound, result)
	}

	d.Logger.WithField("operations", len(bound)).Debug("atomic operations document accepted")
	return bound, nil
}

// DeserializeResource processes a plain (non-operations) request body: it
// parses the single resource document and instantiates the domain resource,
// applying the write gate selected by the request context. The returned
// tracker is scoped to the whole request.
func (d *RequestDeserializer) DeserializeResource(body io.Reader, rctx RequestContext) (any, *TargetedFields, error) {
	res, err := Parser{}.ParseResource(body)
	if err != nil {
		return nil, nil, err
	}

	binder := Binder{Schema: d.Schema, Hook: d.Hook}
	instance, targets, err := binder.Bind(res, BindOptions{
		Creating: rctx.Creating(),
		ReadOnly: rctx.ReadOnly,
	})
	if err != nil {
		return nil, nil, err
	}

	return instance, targets, nil
}

// withOperationPointer stamps the operation's pointer onto faults that were
// raised without one, so instantiation faults inside the operations path
// still locate the offending operation.
func withOperationPointer(err error, index int) error {
	var fault *Error
	if errors.As(err, &fault) && fault.Source == nil {
		fault.Source = &ErrorSource{Pointer: OperationPointer(index)}
	}
	return err
}
