package permissions

import (
	"context"
	"errors"
	"fmt"

	"proctorboard/pkg/interfaces"
	"proctorboard/pkg/types"
)

// Capability names accepted by Require.
const (
	CapabilityView   = "view"
	CapabilityEdit   = "edit"
	CapabilityManage = "manage"
)

// Gate resolves effective capability sets for (user, session) pairs.
// Every mutating operation must pass Resolve then Require before any
// state change or broadcast.
type Gate struct {
	store interfaces.Store
}

// NewGate creates a permission gate backed by store.
func NewGate(store interfaces.Store) *Gate {
	return &Gate{store: store}
}

// Resolve returns the effective permission set for userID on sessionID.
// The owner always resolves to full permissions regardless of stored
// collaborator rows; a user with neither ownership nor a collaborator
// row fails with ErrForbidden.
func (g *Gate) Resolve(ctx context.Context, userID, sessionID string) (types.PermissionSet, error) {
	session, err := g.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return types.PermissionSet{}, types.ErrNotFound
		}
		return types.PermissionSet{}, fmt.Errorf("failed to resolve permissions: %w", err)
	}

	if session.OwnerID == userID {
		return types.FullPermissions(), nil
	}

	for _, collab := range session.Collaborators {
		if collab.UserID == userID {
			return collab.Permissions, nil
		}
	}

	return types.PermissionSet{}, types.ErrForbidden
}

// Require fails with ErrForbidden when the named capability is false on
// the resolved set. Unknown capability names are always forbidden.
func Require(perms types.PermissionSet, capability string) error {
	var granted bool
	switch capability {
	case CapabilityView:
		granted = perms.View
	case CapabilityEdit:
		granted = perms.Edit
	case CapabilityManage:
		granted = perms.Manage
	}
	if !granted {
		return types.ErrForbidden
	}
	return nil
}
