// Package server exposes the atomicops request pipeline over HTTP. It owns
// routing, content negotiation, and fault serialization; persistence stays
// behind the Executor interface.
package server

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/henkedude/atomicops"
)

// Executor applies an accepted request against durable storage. The atomic
// operations contract is all-or-nothing: implementations must roll back the
// whole batch when any operation fails.
type Executor interface {
	// ExecuteOperations applies a validated, bound operations batch and
	// returns the resulting resources in operation order (nil entries for
	// operations without results).
	ExecuteOperations(ctx context.Context, ops []*atomicops.BoundOperation) ([]*atomicops.Resource, error)

	// ExecuteResource applies a plain create or update request and returns
	// the resulting resource.
	ExecuteResource(ctx context.Context, rctx atomicops.RequestContext, instance any, targets *atomicops.TargetedFields) (*atomicops.Resource, error)
}

// Server routes JSON:API requests to the deserialization pipeline and the
// executor.
type Server struct {
	deserializer *atomicops.RequestDeserializer
	executor     Executor
	logger       logrus.FieldLogger
	middleware   []mux.MiddlewareFunc
	router       *mux.Router
}

// Options configure a Server.
type Options func(*Server)

// WithLogger replaces the default logger.
func WithLogger(logger logrus.FieldLogger) Options {
	return func(s *Server) { s.logger = logger }
}

// WithMiddleware appends middleware to the router, outermost first.
func WithMiddleware(m mux.MiddlewareFunc) Options {
	return func(s *Server) { s.middleware = append(s.middleware, m) }
}

// New returns an http.Handler serving the atomic operations endpoint at
// POST /operations and the plain resource endpoints at POST /{type} and
// PATCH /{type}/{id}.
func New(deserializer *atomicops.RequestDeserializer, executor Executor, options ...Options) *Server {
	s := &Server{
		deserializer: deserializer,
		executor:     executor,
		logger:       logrus.StandardLogger(),
	}
	for _, option := range options {
		option(s)
	}

	router := mux.NewRouter()
	router.Use(s.middleware...)

	operations := router.Path("/operations").Methods(http.MethodPost).Subrouter()
	operations.Use(RequireMediaType(atomicops.ExtensionURI))
	operations.NewRoute().HandlerFunc(s.serveOperations)

	resources := router.PathPrefix("/").Subrouter()
	resources.Use(RequireMediaType())
	resources.Path("/{type}").Methods(http.MethodPost).HandlerFunc(s.serveResource)
	resources.Path("/{type}/{id}").Methods(http.MethodPatch).HandlerFunc(s.serveResource)

	s.router = router
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// serveOperations handles the atomic operations endpoint.
func (s *Server) serveOperations(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	rctx := &atomicops.RequestContext{
		Endpoint: atomicops.EndpointOperations,
		Method:   r.Method,
	}
	r = atomicops.RequestWithContext(r, rctx)

	bound, err := s.deserializer.DeserializeOperations(r.Context(), r.Body)
	if err != nil {
		s.logger.WithError(err).Debug("operations request rejected")
		WriteError(w, err)
		return
	}

	results, err := s.executor.ExecuteOperations(r.Context(), bound)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteResults(w, results)
}

// serveResource handles the plain create and update endpoints.
func (s *Server) serveResource(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	rctx := atomicops.RequestContext{
		Endpoint: atomicops.EndpointResource,
		Method:   r.Method,
	}
	r = atomicops.RequestWithContext(r, &rctx)

	instance, targets, err := s.deserializer.DeserializeResource(r.Body, rctx)
	if err != nil {
		s.logger.WithError(err).Debug("resource request rejected")
		WriteError(w, err)
		return
	}

	result, err := s.executor.ExecuteResource(r.Context(), rctx, instance, targets)
	if err != nil {
		WriteError(w, err)
		return
	}

	status := http.StatusOK
	if rctx.Creating() {
		status = http.StatusCreated
	}
	WriteResource(w, status, result)
}
