package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"teamline-chat/internal/domain"
)

// grantsQuery joins each role assignment of a user with the team role's
// baseline permission set and, when one exists, the channel-level override,
// pre-evaluating all of them against a single permission key. The service
// layer only walks the resulting booleans.
const grantsQuery = `
	SELECT
		tr.id,
		tr.is_owner,
		$4 = ANY(tr.permissions) AS team_allowed,
		co.role_id IS NOT NULL AS has_override,
		COALESCE($4 = ANY(co.permissions), FALSE) AS override_allowed,
		COALESCE($4 = ANY(co.excluded_permissions), FALSE) AS override_denied
	FROM team_member_roles tmr
	JOIN team_roles tr ON tr.id = tmr.role_id
	LEFT JOIN channel_role_overrides co ON co.role_id = tmr.role_id AND co.channel_id = $2
	WHERE tmr.team_id = $1 AND tmr.user_id = $3
`

// RoleRepository implements domain.RoleRepository for PostgreSQL
type RoleRepository struct {
	db *sql.DB
}

// NewRoleRepository creates a new PostgreSQL role repository
func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// GrantsFor returns one entry per role the user holds in the team, each
// evaluated against permission for the given channel.
func (r *RoleRepository) GrantsFor(ctx context.Context, teamID, channelID, userID, permission string) ([]*domain.RoleGrant, error) {
	rows, err := r.db.QueryContext(ctx, grantsQuery, teamID, channelID, userID, permission)
	if err != nil {
		return nil, fmt.Errorf("failed to query role grants: %w", err)
	}
	defer rows.Close()

	grants := make([]*domain.RoleGrant, 0)
	for rows.Next() {
		grant := &domain.RoleGrant{}
		var hasOverride, overrideAllowed, overrideDenied bool

		err := rows.Scan(
			&grant.RoleID,
			&grant.IsOwner,
			&grant.TeamAllowed,
			&hasOverride,
			&overrideAllowed,
			&overrideDenied,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role grant: %w", err)
		}

		if hasOverride {
			grant.Override = &domain.ChannelOverride{
				Allowed: overrideAllowed,
				Denied:  overrideDenied,
			}
		}
		grants = append(grants, grant)
	}

	return grants, rows.Err()
}
