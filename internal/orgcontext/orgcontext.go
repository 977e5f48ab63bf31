package orgcontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type orgKey struct{}
type actorKey struct{}

// Actor is the staff member performing an administrative action.
type Actor struct {
	ID   snowflake.ID
	Role string
}

func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	return context.WithValue(ctx, orgKey{}, orgID)
}

func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	id, ok := ctx.Value(orgKey{}).(snowflake.ID)
	return id, ok
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// ActorID returns the acting staff id, or nil when the call is not attributed
// (payment callbacks, scheduler sweeps).
func ActorID(ctx context.Context) *snowflake.ID {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == 0 {
		return nil
	}
	id := actor.ID
	return &id
}
