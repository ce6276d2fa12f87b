package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrNotMember       = errors.New("user is not a member of this channel")
	ErrInvalidInput    = errors.New("invalid input")
)

// Channel is a message stream owned by a team.
type Channel struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// ChannelRepository defines the interface for channel data access
type ChannelRepository interface {
	Create(ctx context.Context, channel *Channel) error
	CreateWithMember(ctx context.Context, channel *Channel, userID string) error
	GetByID(ctx context.Context, id string) (*Channel, error)
	List(ctx context.Context, teamID string) ([]*Channel, error)
	AddMember(ctx context.Context, channelID, userID string) error
	IsMember(ctx context.Context, channelID, userID string) (bool, error)
}
