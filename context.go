package atomicops

import (
	"context"
	"net/http"
)

// EndpointKind selects which request body shape the parser expects. The kind
// is decided by the routing layer from the matched endpoint, never inferred
// from the body itself.
type EndpointKind int

const (
	// EndpointResource is a plain JSON:API endpoint carrying a single
	// resource document.
	EndpointResource EndpointKind = iota
	// EndpointOperations is the atomic operations endpoint carrying an
	// "atomic:operations" document.
	EndpointOperations
)

// RequestContext carries the request facts the deserialization pipeline needs
// but must not derive itself: which endpoint kind is active, the HTTP method
// (which selects the create vs. update write gate), and whether the request
// is read-only.
type RequestContext struct {
	Endpoint EndpointKind // The active endpoint kind.
	Method   string       // The HTTP method of the request.
	ReadOnly bool         // True when the request cannot modify server state.
}

// Creating returns true when the request creates resources, enabling the
// allow-create branch of the attribute write gate.
func (c RequestContext) Creating() bool {
	return c.Method == http.MethodPost
}

type contextkey string

const requestContextKey contextkey = "atomicops_context"

// GetContext returns the request context stored in the parent context.
// Returns false if the context has not been set, or if the context is nil.
func GetContext(parent context.Context) (*RequestContext, bool) {
	value := parent.Value(requestContextKey)
	ctx, ok := value.(*RequestContext)
	ok = ok && ctx != nil
	return ctx, ok
}

// SetContext stores the request context in the parent context.
func SetContext(parent context.Context, value *RequestContext) context.Context {
	return context.WithValue(parent, requestContextKey, value)
}

// RequestWithContext sets the request context on the provided http request.
func RequestWithContext(r *http.Request, c *RequestContext) *http.Request {
	return r.WithContext(SetContext(r.Context(), c))
}
