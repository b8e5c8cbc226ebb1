package atomicops

import (
	"io"

	jsoniter "github.com/json-iterator/go"
	pkgerrors "github.com/pkg/errors"
)

var jsoncodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Parser turns raw request bodies into the wire model. Which of the two
// entry points applies is decided by the caller from the request context's
// endpoint kind. Parsing has no side effects: it never touches storage or
// the targeted-field tracker.
type Parser struct{}

// ParseOperations decodes an atomic operations document. A body that is not
// valid JSON, lacks the "atomic:operations" member, or carries an empty
// operations array fails with the document-level fault: 400, no pointer.
func (Parser) ParseOperations(r io.Reader) (*Document, error) {
	doc := Document{}
	if err := jsoncodec.NewDecoder(r).Decode(&doc); err != nil {
		return nil, NewDocumentError(pkgerrors.Wrap(err, "invalid JSON:API document").Error())
	}

	if doc.Operations == nil {
		return nil, NewDocumentError("No operations found.")
	}
	if len(doc.Operations) == 0 {
		return nil, NewDocumentError("No operations found.")
	}

	return &doc, nil
}

// ParseResource decodes a plain JSON:API request document into its primary
// resource object. Missing or null primary data fails with the document-level
// fault.
func (Parser) ParseResource(r io.Reader) (*Resource, error) {
	type in struct {
		Data *Resource `json:"data"`
	}

	node := in{}
	if err := jsoncodec.NewDecoder(r).Decode(&node); err != nil {
		return nil, NewDocumentError(pkgerrors.Wrap(err, "invalid JSON:API document").Error())
	}

	if node.Data == nil {
		return nil, NewDocumentError("Missing 'data' element.")
	}

	return node.Data, nil
}
