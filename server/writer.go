package server

import (
	"encoding/json"
	"net/http"

	"github.com/henkedude/atomicops"
)

// WriteError serializes err as a JSON:API errors document. The response
// status is the highest status among the contained faults, so a batch of 404
// reference faults answers 404 while a mixed batch degrades to the most
// severe code.
func WriteError(w http.ResponseWriter, err error) {
	faults := atomicops.Errors(err)

	status := 0
	for _, fault := range faults {
		if code := fault.StatusCode(); code > status {
			status = code
		}
	}
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errdoc struct {
		Errors []*atomicops.Error `json:"errors"`
	}
	writeJSON(w, status, errdoc{Errors: faults})
}

// WriteResults serializes an atomic operations response envelope.
func WriteResults(w http.ResponseWriter, results []*atomicops.Resource) {
	if results == nil {
		results = []*atomicops.Resource{}
	}

	type result struct {
		Data *atomicops.Resource `json:"data"`
	}
	type resultdoc struct {
		Results []result `json:"atomic:results"`
	}

	doc := resultdoc{Results: make([]result, 0, len(results))}
	for _, res := range results {
		doc.Results = append(doc.Results, result{Data: res})
	}
	writeJSON(w, http.StatusOK, doc)
}

// WriteResource serializes a single-resource response document.
func WriteResource(w http.ResponseWriter, status int, res *atomicops.Resource) {
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	type resdoc struct {
		Data *atomicops.Resource `json:"data"`
	}
	writeJSON(w, status, resdoc{Data: res})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		http.Error(w, "failed to serialize response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", atomicops.MediaType)
	w.WriteHeader(status)
	w.Write(body)
}
