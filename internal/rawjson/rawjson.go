// Package rawjson inspects serialized JSON fragments without decoding them.
// The atomic operations grammar cares about the difference between a "data"
// member that is an object, an array, null, or absent entirely; these helpers
// answer that question from the raw bytes.
package rawjson

import (
	"bytes"
	"encoding/json"
)

// See RFC 7159, Section 2 for the definition of JSON whitespace.
const whitespace = " \t\r\n"

// IsObject returns true if the fragment is a JSON object.
func IsObject(data json.RawMessage) bool {
	return bytes.HasPrefix(trim(data), []byte("{"))
}

// IsArray returns true if the fragment is a JSON array.
func IsArray(data json.RawMessage) bool {
	return bytes.HasPrefix(trim(data), []byte("["))
}

// IsNull returns true if the fragment is the JSON null literal.
func IsNull(data json.RawMessage) bool {
	return bytes.Equal(trim(data), []byte("null"))
}

func trim(data json.RawMessage) []byte {
	return bytes.TrimLeft(data, whitespace)
}
