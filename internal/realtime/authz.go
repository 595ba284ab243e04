package realtime

import (
	"context"
	"errors"

	"github.com/nexabase-io/nexabase/internal/permissions"
	"github.com/nexabase-io/nexabase/internal/schema"
)

// ResolverChecker adapts the schema registry and permission resolver to the
// PermissionChecker the bus needs.
type ResolverChecker struct {
	registry *schema.Registry
	resolver *permissions.Resolver
}

// NewResolverChecker creates the default permission checker
func NewResolverChecker(registry *schema.Registry, resolver *permissions.Resolver) *ResolverChecker {
	return &ResolverChecker{registry: registry, resolver: resolver}
}

// CanReadCollection resolves the collection by name and asks the resolver
// for the collection-scope read decision. Unknown collections deny.
func (c *ResolverChecker) CanReadCollection(ctx context.Context, userID int64, role, collectionName string) (bool, error) {
	col, err := c.registry.Get(ctx, collectionName)
	if err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return c.resolver.CanRead(ctx, userID, role, col.ID)
}
