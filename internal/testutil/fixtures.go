package testutil

import (
	"fmt"

	"teamline-chat/internal/domain"
)

// MessageID builds a deterministic 26-character id whose lexicographic order
// matches n, the same ordering property real ULIDs have.
func MessageID(n int) string {
	return fmt.Sprintf("%026d", n)
}

// TextMessage builds a live text message with an ordered id and a creation
// time derived from n.
func TextMessage(channelID, userID string, n int) domain.Message {
	return domain.Message{
		ID:        MessageID(n),
		ChannelID: channelID,
		UserID:    userID,
		Type:      domain.MessageTypeText,
		Text:      fmt.Sprintf("message %d", n),
		CreatedAt: int64(1000 + n),
	}
}

// BuildBucket assembles a bucket around the given messages, deriving the
// summary columns the same way the write path maintains them. Messages must
// already be in ascending id order.
func BuildBucket(id, channelID string, createdAt int64, messages ...domain.Message) *domain.Bucket {
	bucket := &domain.Bucket{
		ID:        id,
		ChannelID: channelID,
		Count:     len(messages),
		CreatedAt: createdAt,
		Messages:  messages,
	}
	if len(messages) > 0 {
		bucket.FirstMessageID = messages[0].ID
		bucket.LastMessageID = messages[len(messages)-1].ID
		bucket.LastMessageAt = messages[len(messages)-1].CreatedAt
	}
	return bucket
}
