package service

import (
	"context"

	"teamline-chat/internal/domain"
)

// ChannelService manages channels and their membership.
type ChannelService struct {
	channelRepo domain.ChannelRepository
	messages    *MessageService
}

// NewChannelService creates a new channel service
func NewChannelService(channelRepo domain.ChannelRepository, messages *MessageService) *ChannelService {
	return &ChannelService{
		channelRepo: channelRepo,
		messages:    messages,
	}
}

// CreateChannel creates a channel with the creator as its first member.
func (s *ChannelService) CreateChannel(ctx context.Context, teamID, name, createdBy string) (*domain.Channel, error) {
	if len(name) == 0 || len(name) > 100 {
		return nil, domain.ErrInvalidInput
	}

	channel := &domain.Channel{
		TeamID:    teamID,
		Name:      name,
		CreatedBy: createdBy,
	}

	if err := s.channelRepo.CreateWithMember(ctx, channel, createdBy); err != nil {
		return nil, err
	}

	return channel, nil
}

// ListChannels lists a team's channels.
func (s *ChannelService) ListChannels(ctx context.Context, teamID string) ([]*domain.Channel, error) {
	return s.channelRepo.List(ctx, teamID)
}

// GetChannel retrieves a channel by id.
func (s *ChannelService) GetChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	return s.channelRepo.GetByID(ctx, channelID)
}

// JoinChannel adds a user to a channel and records the membership change as
// a system message in the channel's bucket log.
func (s *ChannelService) JoinChannel(ctx context.Context, channelID, userID string) error {
	if _, err := s.channelRepo.GetByID(ctx, channelID); err != nil {
		return err
	}

	if err := s.channelRepo.AddMember(ctx, channelID, userID); err != nil {
		return err
	}

	return s.messages.Post(ctx, &domain.Message{
		ChannelID: channelID,
		UserID:    userID,
		Type:      domain.MessageTypeSystem,
		Props: &domain.MessageProps{
			AddedUserIDs: []string{userID},
			AddedBy:      userID,
		},
	})
}

// IsMember checks whether a user belongs to a channel.
func (s *ChannelService) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	return s.channelRepo.IsMember(ctx, channelID, userID)
}
