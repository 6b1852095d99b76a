package shared

import "context"

// Actor identifies the requesting team member. Authentication happens
// upstream; the gateway injects the identifiers this engine trusts.
type Actor struct {
	TeamID   int64
	MemberID int64
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The second return is
// false when no actor was injected.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
