package domain

import "context"

// Permission keys evaluated before message operations.
const (
	PermMessagesView   = "messages.view"
	PermMessagesSend   = "messages.send"
	PermMessagesEdit   = "messages.edit"
	PermMessagesDelete = "messages.delete"
)

// ChannelOverride is a channel-level allow/deny evaluation of one permission
// key for one role.
type ChannelOverride struct {
	Allowed bool // key present in the override's allow list
	Denied  bool // key present in the override's deny list
}

// RoleGrant is one role a user holds within a team, pre-evaluated against a
// single permission key: the team-level baseline plus the channel-level
// override, when one exists for that role and channel.
type RoleGrant struct {
	RoleID      string
	IsOwner     bool
	TeamAllowed bool // key present in the team role's baseline set
	Override    *ChannelOverride
}

// RoleRepository defines the interface for role and permission data access.
type RoleRepository interface {
	// GrantsFor returns one entry per role the user holds in the team,
	// each evaluated against permission for the given channel.
	GrantsFor(ctx context.Context, teamID, channelID, userID, permission string) ([]*RoleGrant, error)
}
