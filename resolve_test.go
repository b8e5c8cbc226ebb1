package atomicops_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/henkedude/atomicops"
)

// fakeChecker answers existence checks from a fixed set and records every
// query for batching assertions.
type fakeChecker struct {
	existing map[string]map[any]bool
	queries  []string
	err      error
}

func (f *fakeChecker) Exists(ctx context.Context, resourceType string, ids []any) ([]any, error) {
	f.queries = append(f.queries, resourceType)
	if f.err != nil {
		return nil, f.err
	}
	missing := make([]any, 0)
	for _, id := range ids {
		if !f.existing[resourceType][id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func checkedOps(t *testing.T, literals ...string) []*atomicops.CheckedOperation {
	t.Helper()
	validator := atomicops.Validator{Schema: testSchema()}
	ops := make([]*atomicops.CheckedOperation, 0, len(literals))
	for index, literal := range literals {
		checked, err := validator.ValidateOperation(operation(t, literal), index)
		if err != nil {
			t.Fatalf("operation %d does not pass validation: %s", index, err)
		}
		ops = append(ops, checked)
	}
	return ops
}

func TestResolveExistence(t *testing.T) {
	newResolver := func(checker atomicops.ExistenceChecker) atomicops.RefResolver {
		return atomicops.RefResolver{Schema: testSchema(), Checker: checker}
	}

	t.Run("all references resolve", func(t *testing.T) {
		checker := &fakeChecker{existing: map[string]map[any]bool{
			"musicTracks": {"track-1": true},
			"performers":  {"p1": true},
		}}

		ops := checkedOps(t,
			`{"op": "update", "ref": {"type": "musicTracks", "id": "track-1", "relationship": "performers"}, "data": [{"type": "performers", "id": "p1"}]}`,
		)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		assert.NoError(t, err)
	})

	t.Run("one fault per missing reference", func(t *testing.T) {
		checker := &fakeChecker{existing: map[string]map[any]bool{
			"musicTracks": {"track-1": true},
		}}

		ops := checkedOps(t,
			`{"op": "add", "ref": {"type": "musicTracks", "id": "track-1", "relationship": "performers"}, "data": [{"type": "performers", "id": "p1"}, {"type": "performers", "id": "p2"}]}`,
		)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 2) {
			for _, fault := range faults {
				assert.Equal(t, "404", fault.Status)
				assert.Equal(t, "The referenced resource does not exist.", fault.Title)
				assert.Equal(t, atomicops.OperationPointer(0), fault.Source.Pointer)
			}
			assert.Equal(t, "Resource of type 'performers' with ID 'p1' does not exist.", faults[0].Detail)
			assert.Equal(t, "Resource of type 'performers' with ID 'p2' does not exist.", faults[1].Detail)
		}
	})

	t.Run("lookups are batched per resource type", func(t *testing.T) {
		checker := &fakeChecker{existing: map[string]map[any]bool{
			"musicTracks": {"track-1": true, "track-2": true},
			"playlists":   {int64(42): true},
		}}

		ops := checkedOps(t,
			`{"op": "remove", "ref": {"type": "musicTracks", "id": "track-1"}}`,
			`{"op": "update", "ref": {"type": "playlists", "id": "42", "relationship": "tracks"}, "data": [{"type": "musicTracks", "id": "track-2"}]}`,
		)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		assert.NoError(t, err)
		assert.Equal(t, []string{"musicTracks", "playlists"}, checker.queries)
	})

	t.Run("typed identities reach the checker", func(t *testing.T) {
		var got []any
		checker := atomicops.ExistenceCheckerFunc(func(ctx context.Context, resourceType string, ids []any) ([]any, error) {
			got = ids
			return nil, nil
		})

		ops := checkedOps(t, `{"op": "remove", "ref": {"type": "playlists", "id": "42"}}`)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		assert.NoError(t, err)
		assert.Equal(t, []any{int64(42)}, got)
	})

	t.Run("lid declared by an earlier add resolves", func(t *testing.T) {
		checker := &fakeChecker{existing: map[string]map[any]bool{}}

		ops := checkedOps(t,
			`{"op": "add", "data": {"type": "performers", "lid": "local-p", "attributes": {"name": "Ella"}}}`,
			`{"op": "update", "ref": {"type": "performers", "lid": "local-p"}, "data": {"type": "performers", "lid": "local-p", "attributes": {"name": "Ella F."}}}`,
		)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		assert.NoError(t, err)
		assert.Empty(t, checker.queries, "local identifiers never hit storage")
	})

	t.Run("ref-less update through a declared payload lid resolves", func(t *testing.T) {
		checker := &fakeChecker{existing: map[string]map[any]bool{}}

		ops := checkedOps(t,
			`{"op": "add", "data": {"type": "musicTracks", "lid": "local-t", "attributes": {"title": "Song"}}}`,
			`{"op": "update", "data": {"type": "musicTracks", "lid": "local-t", "attributes": {"title": "Renamed"}}}`,
		)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		assert.NoError(t, err)
	})

	t.Run("ref-less update through an undeclared payload lid faults", func(t *testing.T) {
		checker := &fakeChecker{existing: map[string]map[any]bool{}}

		ops := checkedOps(t,
			`{"op": "update", "data": {"type": "musicTracks", "lid": "never-declared", "attributes": {"title": "Renamed"}}}`,
		)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "422", faults[0].Status)
			assert.Equal(t, "Local ID 'never-declared' of resource type 'musicTracks' is not declared by an earlier operation.", faults[0].Detail)
			assert.Equal(t, atomicops.OperationPointer(0), faults[0].Source.Pointer)
		}
	})

	t.Run("undefined lid faults", func(t *testing.T) {
		checker := &fakeChecker{existing: map[string]map[any]bool{}}

		ops := checkedOps(t,
			`{"op": "remove", "ref": {"type": "musicTracks", "lid": "never-declared"}}`,
		)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "422", faults[0].Status)
			assert.Contains(t, faults[0].Title, "Request body includes undefined local ID.")
			assert.Equal(t, "Local ID 'never-declared' of resource type 'musicTracks' is not declared by an earlier operation.", faults[0].Detail)
		}
	})

	t.Run("lid referenced before its declaration faults", func(t *testing.T) {
		checker := &fakeChecker{existing: map[string]map[any]bool{
			"musicTracks": {"track-1": true},
		}}

		ops := checkedOps(t,
			`{"op": "update", "ref": {"type": "musicTracks", "id": "track-1", "relationship": "performers"}, "data": [{"type": "performers", "lid": "local-p"}]}`,
			`{"op": "add", "data": {"type": "performers", "lid": "local-p"}}`,
		)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, atomicops.OperationPointer(0), faults[0].Source.Pointer)
		}
	})

	t.Run("lid declarations are scoped per resource type", func(t *testing.T) {
		checker := &fakeChecker{existing: map[string]map[any]bool{
			"musicTracks": {"track-1": true},
		}}

		ops := checkedOps(t,
			`{"op": "add", "data": {"type": "performers", "lid": "local-1"}}`,
			`{"op": "update", "ref": {"type": "musicTracks", "id": "track-1", "relationship": "lyric"}, "data": {"type": "lyrics", "lid": "local-1"}}`,
		)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "Local ID 'local-1' of resource type 'lyrics' is not declared by an earlier operation.", faults[0].Detail)
		}
	})

	t.Run("identifiers nested in a resource payload are checked", func(t *testing.T) {
		checker := &fakeChecker{existing: map[string]map[any]bool{
			"performers": {},
		}}

		ops := checkedOps(t,
			`{"op": "add", "data": {"type": "musicTracks", "relationships": {"performers": {"data": [{"type": "performers", "id": "ghost"}]}}}}`,
		)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		faults := atomicops.Errors(err)
		if assert.Len(t, faults, 1) {
			assert.Equal(t, "404", faults[0].Status)
			assert.Equal(t, "Resource of type 'performers' with ID 'ghost' does not exist.", faults[0].Detail)
		}
	})

	t.Run("checker failure aborts without faults", func(t *testing.T) {
		checker := &fakeChecker{err: assert.AnError}

		ops := checkedOps(t, `{"op": "remove", "ref": {"type": "musicTracks", "id": "track-1"}}`)

		err := newResolver(checker).ResolveExistence(context.Background(), ops)
		assert.Error(t, err)
		assert.ErrorIs(t, err, atomicops.ErrAtomic)
	})
}
