package atomicops_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/henkedude/atomicops"
)

func wireResource(t *testing.T, literal string) *atomicops.Resource {
	t.Helper()
	res := atomicops.Resource{}
	if err := json.Unmarshal([]byte(literal), &res); err != nil {
		t.Fatalf("invalid resource literal: %s", err)
	}
	return &res
}

func TestBind(t *testing.T) {
	binder := atomicops.Binder{Schema: testSchema()}

	t.Run("populates the instance and records targets", func(t *testing.T) {
		res := wireResource(t, `{
			"type": "musicTracks",
			"id": "track-1",
			"attributes": {"title": "Song", "genre": "jazz"},
			"relationships": {
				"performers": {"data": [{"type": "performers", "id": "p1"}, {"type": "vocalists", "id": "v1"}]}
			}
		}`)

		instance, targets, err := binder.Bind(res, atomicops.BindOptions{Creating: true, OperationPayload: true})
		assert.NoError(t, err)

		bound := instance.(*track)
		assert.Equal(t, "track-1", bound.ID)
		assert.Equal(t, "Song", bound.Title)
		assert.Equal(t, "jazz", bound.Genre)
		assert.Equal(t, []atomicops.Identifier{
			{Type: "performers", ID: "p1"},
			{Type: "vocalists", ID: "v1"},
		}, bound.Performers)

		assert.Equal(t, []string{"genre", "title"}, targets.Attributes())
		assert.Equal(t, []string{"performers"}, targets.Relationships())
		assert.True(t, targets.HasAttribute("title"))
		assert.False(t, targets.HasAttribute("name"))
	})

	t.Run("omitted fields are not targeted", func(t *testing.T) {
		res := wireResource(t, `{"type": "musicTracks", "attributes": {"title": "Song"}}`)

		_, targets, err := binder.Bind(res, atomicops.BindOptions{Creating: true, OperationPayload: true})
		assert.NoError(t, err)
		assert.Equal(t, []string{"title"}, targets.Attributes())
		assert.Empty(t, targets.Relationships())
	})

	t.Run("null to-one relationship yields no identifiers", func(t *testing.T) {
		res := wireResource(t, `{"type": "musicTracks", "relationships": {"lyric": {"data": null}}}`)

		instance, targets, err := binder.Bind(res, atomicops.BindOptions{Creating: true, OperationPayload: true})
		assert.NoError(t, err)
		assert.Empty(t, instance.(*track).Lyric)
		assert.True(t, targets.HasRelationship("lyric"))
	})

	t.Run("unknown attribute", func(t *testing.T) {
		res := wireResource(t, `{"type": "musicTracks", "attributes": {"doesNotExist": 1}}`)

		_, _, err := binder.Bind(res, atomicops.BindOptions{OperationPayload: true})
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "Unknown attribute found.", faults[0].Title)
			assert.Equal(t, "Attribute 'doesNotExist' does not exist on resource type 'musicTracks'.", faults[0].Detail)
			assert.Equal(t, "422", faults[0].Status)
		}
	})

	t.Run("unknown relationship", func(t *testing.T) {
		res := wireResource(t, `{"type": "musicTracks", "relationships": {"doesNotExist": {"data": null}}}`)

		_, _, err := binder.Bind(res, atomicops.BindOptions{OperationPayload: true})
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "Unknown relationship found.", faults[0].Title)
		}
	})

	t.Run("incompatible attribute value", func(t *testing.T) {
		res := wireResource(t, `{"type": "musicTracks", "attributes": {"title": 42}}`)

		_, _, err := binder.Bind(res, atomicops.BindOptions{Creating: true, OperationPayload: true})
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "Incompatible attribute value found.", faults[0].Title)
		}
	})

	t.Run("to-many relationship with single object", func(t *testing.T) {
		res := wireResource(t, `{"type": "musicTracks", "relationships": {"performers": {"data": {"type": "performers", "id": "p1"}}}}`)

		_, _, err := binder.Bind(res, atomicops.BindOptions{OperationPayload: true})
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "Expected data[] element for to-many relationship.", faults[0].Title)
		}
	})

	t.Run("relationship with mismatched right-hand type", func(t *testing.T) {
		res := wireResource(t, `{"type": "musicTracks", "relationships": {"performers": {"data": [{"type": "playlists", "id": "7"}]}}}`)

		_, _, err := binder.Bind(res, atomicops.BindOptions{OperationPayload: true})
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "Resource type mismatch between relationship and data element.", faults[0].Title)
		}
	})

	t.Run("relationship identifiers decode through the right-hand codec", func(t *testing.T) {
		res := wireResource(t, `{"type": "playlists", "relationships": {"tracks": {"data": [{"type": "musicTracks", "id": "track-9"}]}}}`)

		instance, _, err := binder.Bind(res, atomicops.BindOptions{OperationPayload: true})
		assert.NoError(t, err)
		assert.Equal(t, []atomicops.Identifier{{Type: "musicTracks", ID: "track-9"}}, instance.(*playlist).Tracks)
	})

	t.Run("relationship identifier with lid carries no decoded id", func(t *testing.T) {
		res := wireResource(t, `{"type": "musicTracks", "relationships": {"performers": {"data": [{"type": "performers", "lid": "local-p"}]}}}`)

		instance, _, err := binder.Bind(res, atomicops.BindOptions{OperationPayload: true})
		assert.NoError(t, err)
		assert.Equal(t, []atomicops.Identifier{{Type: "performers", LocalID: "local-p"}}, instance.(*track).Performers)
	})
}

func TestBindWriteGate(t *testing.T) {
	binder := atomicops.Binder{Schema: testSchema()}

	t.Run("create-only attribute rejected on update", func(t *testing.T) {
		res := wireResource(t, `{"type": "musicTracks", "id": "track-1", "attributes": {"genre": "jazz"}}`)

		_, _, err := binder.Bind(res, atomicops.BindOptions{Creating: false, OperationPayload: true})
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "Changing the value of the requested attribute is not allowed.", faults[0].Title)
			assert.Equal(t, "Changing the value of 'genre' is not allowed.", faults[0].Detail)
		}
	})

	t.Run("create-only attribute allowed on create", func(t *testing.T) {
		res := wireResource(t, `{"type": "musicTracks", "attributes": {"genre": "jazz"}}`)

		_, _, err := binder.Bind(res, atomicops.BindOptions{Creating: true, OperationPayload: true})
		assert.NoError(t, err)
	})

	t.Run("extra hook runs after the gate", func(t *testing.T) {
		var seen []string
		hooked := atomicops.Binder{
			Schema: testSchema(),
			Hook: atomicops.FieldHookFunc(func(field atomicops.Field, resource any) error {
				seen = append(seen, field.Name())
				return nil
			}),
		}

		res := wireResource(t, `{"type": "musicTracks", "attributes": {"title": "Song"}}`)
		_, _, err := hooked.Bind(res, atomicops.BindOptions{Creating: true, OperationPayload: true})
		assert.NoError(t, err)
		assert.Equal(t, []string{"title"}, seen)
	})
}

func TestBindReadOnlyID(t *testing.T) {
	binder := atomicops.Binder{Schema: testSchema()}

	// a plain request body carrying an "id" attribute tries to rewrite the
	// identity through the attribute channel.
	res := &atomicops.Resource{
		Type:       "musicTracks",
		Attributes: map[string]any{"id": "other"},
	}

	t.Run("forbidden on a plain mutating request", func(t *testing.T) {
		schema := testSchema()
		tracks, _ := schema.Resolve("musicTracks")
		tracks.Attributes["id"] = &atomicops.Attribute{Name: "id", AllowCreate: true, AllowChange: true}

		_, _, err := atomicops.Binder{Schema: schema}.Bind(res, atomicops.BindOptions{Creating: true})
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "403", faults[0].Status)
			assert.Equal(t, "Resource ID is read-only.", faults[0].Title)
		}
	})

	t.Run("unknown attribute when the schema does not declare id", func(t *testing.T) {
		_, _, err := binder.Bind(res, atomicops.BindOptions{Creating: true})
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "Unknown attribute found.", faults[0].Title)
		}
	})
}
