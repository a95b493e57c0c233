package context

import (
	"context"
)

// UserContext contains authenticated staff user information.
type UserContext struct {
	UserID    string
	Email     string
	Roles     []string
	OrgIDs    []string // Organizations the user has access to
	IsAdmin   bool
	SessionID string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// HasRole checks if the user has a specific role.
func HasRole(ctx context.Context, role string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasOrgAccess checks if the user has access to an organization.
func HasOrgAccess(ctx context.Context, orgID string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	if u.IsAdmin {
		return true
	}
	for _, id := range u.OrgIDs {
		if id == orgID {
			return true
		}
	}
	return false
}
