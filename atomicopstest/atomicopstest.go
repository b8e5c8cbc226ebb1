// Package atomicopstest provides helpers for testing code that produces or
// consumes atomic operation documents.
package atomicopstest

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/wI2L/jsondiff"
)

// AssertEqualJSON asserts that two JSON payloads are semantically equal.
// On mismatch the failure message renders the difference as an RFC 6902
// patch, which reads far better than two interleaved documents.
func AssertEqualJSON(t *testing.T, want, got string, msgAndArgs ...any) bool {
	t.Helper()

	patch, err := jsondiff.CompareJSON([]byte(want), []byte(got))
	if err != nil {
		t.Errorf("documents failed to compare: %s", err)
		return false
	}

	if len(patch) == 0 {
		return true
	}

	rendered, err := json.MarshalIndent(patch, "", "  ")
	if err != nil {
		rendered = []byte(patch.String())
	}
	t.Errorf("documents differ (want -> got):\n%s", rendered)
	return false
}

// Body wraps any JSON-serializable value as an io.Reader, for building
// httptest request payloads. The value is marshaled once, on the first
// call to Read.
type Body struct {
	Value any

	buf *bytes.Reader
}

// Read implements the io.Reader interface.
func (b *Body) Read(p []byte) (int, error) {
	if b.buf == nil {
		data, err := json.Marshal(b.Value)
		if err != nil {
			return 0, err
		}
		b.buf = bytes.NewReader(data)
	}
	return b.buf.Read(p)
}
