package permissions

import (
	"context"
	"errors"
)

// Resolver computes effective permissions. It is a pure function of the
// caller's (id, role), the target, and the stored permission rows; handlers
// pass identity explicitly rather than reading it from request-scoped state.
type Resolver struct {
	repo *Repository
}

// NewResolver creates a permission resolver
func NewResolver(repo *Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Repo exposes the underlying repository for handlers that manage rows
func (r *Resolver) Repo() *Repository {
	return r.repo
}

// ResolveCollection merges the role-default row and the user override into
// the effective collection-scope decision. Admin bypasses resolution.
func (r *Resolver) ResolveCollection(ctx context.Context, userID int64, roleName string, collectionID int64) (PermissionSet, error) {
	if roleName == AdminRole {
		return All(), nil
	}

	result := None()

	role, err := r.repo.GetRole(ctx, roleName)
	if err != nil && !errors.Is(err, ErrRoleNotFound) {
		return None(), err
	}
	if role != nil {
		rolePerm, err := r.repo.GetCollectionPermission(ctx, collectionID, role.ID)
		if err != nil {
			return None(), err
		}
		if rolePerm != nil {
			result = rolePerm.PermissionSet
		}
	}

	override, err := r.repo.GetUserOverride(ctx, userID, collectionID)
	if err != nil {
		return None(), err
	}
	if override != nil {
		result = override.OverrideSet.Apply(result)
	}

	return result, nil
}

// ResolveRecord answers read/update/delete at record scope: an explicit
// record-level flag wins; an unset flag falls through to collection scope.
func (r *Resolver) ResolveRecord(ctx context.Context, userID int64, roleName string, collectionID, recordID int64, action Action) (bool, error) {
	if roleName == AdminRole {
		return true, nil
	}

	recordPerm, err := r.repo.GetRecordPermission(ctx, collectionID, recordID, userID)
	if err != nil {
		return false, err
	}
	if recordPerm != nil {
		var flag Tri
		switch action {
		case ActionRead:
			flag = recordPerm.Read
		case ActionUpdate:
			flag = recordPerm.Update
		case ActionDelete:
			flag = recordPerm.Delete
		}
		if flag != TriUnset {
			return flag == TriTrue, nil
		}
	}

	set, err := r.ResolveCollection(ctx, userID, roleName, collectionID)
	if err != nil {
		return false, err
	}
	return set.Allows(action), nil
}

// CanRead is the collection-scope read check used by the realtime bus when
// deciding whether to forward an event. Ownership is deliberately not
// consulted here.
func (r *Resolver) CanRead(ctx context.Context, userID int64, roleName string, collectionID int64) (bool, error) {
	set, err := r.ResolveCollection(ctx, userID, roleName, collectionID)
	if err != nil {
		return false, err
	}
	return set.Read, nil
}

// AccessibleCollections lists collection ids the caller can see: any role
// flag true or any true user override. Admin sees everything, signalled by
// (nil, true).
func (r *Resolver) AccessibleCollections(ctx context.Context, userID int64, roleName string) (ids []int64, all bool, err error) {
	if roleName == AdminRole {
		return nil, true, nil
	}
	ids, err = r.repo.AccessibleCollectionIDs(ctx, userID, roleName)
	return ids, false, err
}
