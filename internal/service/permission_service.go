package service

import (
	"context"

	"teamline-chat/internal/domain"
)

// PermissionService evaluates a permission key against a user's team roles.
// A team role grants a baseline permission set; a channel may override that
// baseline per role with an allow list and a deny list. Team owners always
// pass.
type PermissionService struct {
	roles domain.RoleRepository
}

// NewPermissionService creates a new permission service
func NewPermissionService(roles domain.RoleRepository) *PermissionService {
	return &PermissionService{roles: roles}
}

// HasPermission reports whether the user holds permission in the channel.
// Per assigned role, in order: owner allows; a channel-level allow wins over
// the baseline; a channel-level deny silences this role but the user's other
// roles are still consulted; otherwise the team baseline decides.
func (s *PermissionService) HasPermission(ctx context.Context, teamID, channelID, userID, permission string) (bool, error) {
	grants, err := s.roles.GrantsFor(ctx, teamID, channelID, userID, permission)
	if err != nil {
		return false, err
	}

	for _, grant := range grants {
		if grant.IsOwner {
			return true, nil
		}

		if grant.Override != nil {
			if grant.Override.Allowed {
				return true, nil
			}
			if grant.Override.Denied {
				continue
			}
		}

		if grant.TeamAllowed {
			return true, nil
		}
	}

	return false, nil
}
