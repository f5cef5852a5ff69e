package authorization

import (
	"context"
	"strconv"
	"strings"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleFinance Role = "finance"
	RoleAdmin   Role = "admin"
	RoleSystem  Role = "system"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleFinance:
		return RoleFinance, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleSystem:
		return RoleSystem, true
	}
	return "", false
}

// Actor is the caller of an operation as asserted by the gateway.
type Actor struct {
	UserID int64
	Role   Role
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: RoleSystem}

func (a Actor) IsSystem() bool { return a.Role == RoleSystem }

// IDString is the actor id as recorded in audit trails.
func (a Actor) IDString() string {
	if a.UserID <= 0 {
		return ""
	}
	return strconv.FormatInt(a.UserID, 10)
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
