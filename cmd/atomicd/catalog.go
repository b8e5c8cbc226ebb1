package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/henkedude/atomicops"
)

// The demo schema models a small music catalog: tracks performed by
// performers, collected into playlists.

type MusicTrack struct {
	ID              uuid.UUID
	Title           string
	LengthInSeconds float64
	Genre           string
	Performers      []atomicops.Identifier
}

type Performer struct {
	ID       uuid.UUID
	Name     string
	BornAt   string
	IsActive bool
}

type Playlist struct {
	ID     int64
	Name   string
	Tracks []atomicops.Identifier
}

func stringAttr(assign func(resource any, s string)) func(resource, value any) error {
	return func(resource, value any) error {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		assign(resource, s)
		return nil
	}
}

func catalogSchema() *atomicops.Schema {
	return atomicops.NewSchema(
		&atomicops.ResourceContext{
			Name: "musicTracks",
			ID:   atomicops.UUIDID{},
			New:  func() any { return &MusicTrack{} },
			SetID: func(resource, id any) {
				resource.(*MusicTrack).ID = id.(uuid.UUID)
			},
			Attributes: map[string]*atomicops.Attribute{
				"title": {
					Name: "title", AllowCreate: true, AllowChange: true,
					Set: stringAttr(func(r any, s string) { r.(*MusicTrack).Title = s }),
				},
				"lengthInSeconds": {
					Name: "lengthInSeconds", AllowCreate: true, AllowChange: true,
					Set: func(resource, value any) error {
						f, ok := value.(float64)
						if !ok {
							return fmt.Errorf("expected number, got %T", value)
						}
						resource.(*MusicTrack).LengthInSeconds = f
						return nil
					},
				},
				"genre": {
					Name: "genre", AllowCreate: true, AllowChange: false,
					Set: stringAttr(func(r any, s string) { r.(*MusicTrack).Genre = s }),
				},
			},
			Relations: map[string]*atomicops.Relation{
				"performers": {
					Name: "performers", Kind: atomicops.ToMany, RightType: "performers",
					Set: func(resource any, refs []atomicops.Identifier) error {
						resource.(*MusicTrack).Performers = refs
						return nil
					},
				},
			},
		},
		&atomicops.ResourceContext{
			Name: "performers",
			ID:   atomicops.UUIDID{},
			New:  func() any { return &Performer{} },
			SetID: func(resource, id any) {
				resource.(*Performer).ID = id.(uuid.UUID)
			},
			Attributes: map[string]*atomicops.Attribute{
				"name": {
					Name: "name", AllowCreate: true, AllowChange: true,
					Set: stringAttr(func(r any, s string) { r.(*Performer).Name = s }),
				},
				"bornAt": {
					Name: "bornAt", AllowCreate: true, AllowChange: false,
					Set: stringAttr(func(r any, s string) { r.(*Performer).BornAt = s }),
				},
			},
			Relations: map[string]*atomicops.Relation{},
		},
		&atomicops.ResourceContext{
			Name: "playlists",
			ID:   atomicops.Int64ID{},
			New:  func() any { return &Playlist{} },
			SetID: func(resource, id any) {
				resource.(*Playlist).ID = id.(int64)
			},
			Attributes: map[string]*atomicops.Attribute{
				"name": {
					Name: "name", AllowCreate: true, AllowChange: true,
					Set: stringAttr(func(r any, s string) { r.(*Playlist).Name = s }),
				},
			},
			Relations: map[string]*atomicops.Relation{
				"tracks": {
					Name: "tracks", Kind: atomicops.ToMany, RightType: "musicTracks",
					Set: func(resource any, refs []atomicops.Identifier) error {
						resource.(*Playlist).Tracks = refs
						return nil
					},
				},
			},
		},
	)
}

// echoExecutor acknowledges accepted batches without persisting them. It
// stands in for the storage layer, which is outside this library's scope.
type echoExecutor struct{}

func (echoExecutor) ExecuteOperations(ctx context.Context, ops []*atomicops.BoundOperation) ([]*atomicops.Resource, error) {
	results := make([]*atomicops.Resource, len(ops))
	for i, op := range ops {
		results[i] = op.Single
	}
	return results, nil
}

func (echoExecutor) ExecuteResource(ctx context.Context, rctx atomicops.RequestContext, instance any, targets *atomicops.TargetedFields) (*atomicops.Resource, error) {
	return nil, nil
}
