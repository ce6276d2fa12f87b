package domain

import (
	"context"
	"errors"
)

var (
	ErrBucketNotFound  = errors.New("bucket not found")
	ErrMessageNotFound = errors.New("message not found")
)

// Direction selects which side of the anchor a retrieval walks.
type Direction string

const (
	// DirectionUp walks messages strictly older than the anchor, newest first.
	DirectionUp Direction = "up"
	// DirectionDown walks messages strictly newer than the anchor, oldest first.
	DirectionDown Direction = "down"
)

// Message types.
const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)

// MessageProps carries the payload of system messages, e.g. membership changes.
type MessageProps struct {
	AddedUserIDs   []string `json:"added_user_ids,omitempty"`
	AddedBy        string   `json:"added_by,omitempty"`
	RemovedUserIDs []string `json:"removed_user_ids,omitempty"`
	RemovedBy      string   `json:"removed_by,omitempty"`
}

// Message is a single chat message. IDs are ULIDs, so lexicographic order
// matches creation order. A message is soft-deleted by setting DeletedAt; it
// is never physically removed from its bucket and never changes buckets.
type Message struct {
	ID        string        `json:"id"`
	TempID    string        `json:"temp_id,omitempty"` // client correlation id, echo only
	ChannelID string        `json:"channel_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	Type      string        `json:"type,omitempty"`
	Text      string        `json:"text,omitempty"`
	Props     *MessageProps `json:"props,omitempty"`
	CreatedAt int64         `json:"created_at,omitempty"`
	UpdatedAt int64         `json:"updated_at,omitempty"` // 0 = never edited
	DeletedAt int64         `json:"deleted_at,omitempty"` // 0 = live
}

// Bucket is a contiguous batch of messages for one channel, plus denormalized
// summary fields that let retrieval prune whole buckets without scanning
// their contents. Messages inside a bucket are ordered by ascending id, and
// bucket id ranges partition the channel's message id space.
type Bucket struct {
	ID             string
	ChannelID      string
	Count          int
	FirstMessageID string
	LastMessageID  string
	LastMessageAt  int64
	CreatedAt      int64
	UpdatedAt      int64 // max mutation time of any contained message
	Messages       []Message
}

// Contains reports whether id falls inside the bucket's summary id range.
func (b *Bucket) Contains(id string) bool {
	return b.FirstMessageID <= id && id <= b.LastMessageID
}

// Delta is the result of an incremental sync: messages whose content changed
// after the watermark and messages soft-deleted after it. The two sets are
// disjoint; a message edited and later deleted appears only in Deleted.
type Delta struct {
	Updated []Message `json:"updated"`
	Deleted []Message `json:"deleted"`
}

// BucketRepository is the segment store consumed by the retrieval and sync
// engines and maintained by the write path.
type BucketRepository interface {
	// NextBucket returns the single next candidate bucket for a pagination
	// walk: for DirectionUp the most recently created bucket whose
	// FirstMessageID is below the anchor (any bucket when the anchor is
	// empty), for DirectionDown the oldest bucket whose id range extends
	// past the anchor. Returns ErrBucketNotFound when no candidate remains.
	NextBucket(ctx context.Context, channelID string, dir Direction, anchorID string) (*Bucket, error)

	// ChangedBuckets returns every bucket whose summary UpdatedAt exceeds
	// since. An empty slice means nothing changed.
	ChangedBuckets(ctx context.Context, channelID string, since int64) ([]*Bucket, error)

	// Append stores msg in the channel's newest bucket, creating a fresh
	// bucket when none exists or the newest one holds capacity messages,
	// and maintains the summary fields.
	Append(ctx context.Context, msg *Message, capacity int) error

	// GetMessage locates a message by id within the channel's buckets.
	GetMessage(ctx context.Context, channelID, messageID string) (*Message, error)

	// EditMessage rewrites the text of a live message and bumps the owning
	// bucket's UpdatedAt to now. Returns ErrMessageNotFound for unknown or
	// deleted messages.
	EditMessage(ctx context.Context, channelID, messageID, text string, now int64) (*Message, error)

	// SoftDeleteMessage flags a live message as deleted at now and bumps the
	// owning bucket's UpdatedAt.
	SoftDeleteMessage(ctx context.Context, channelID, messageID string, now int64) (*Message, error)
}
