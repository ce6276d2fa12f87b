package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"teamline-chat/internal/domain"
	"teamline-chat/internal/observability"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
)

const maxMessageLength = 4000

// Projections used internally by the sync facets and the lastMessageAt
// lookahead.
var (
	updatedFields   = domain.Fields{"text", "user_id", "props", "updated_at"}
	deletedFields   = domain.Fields{"deleted_at"}
	createdAtFields = domain.Fields{"created_at"}
)

// EventPublisher fans message lifecycle events out to other nodes. Event
// types are "message.created", "message.updated" and "message.deleted".
type EventPublisher interface {
	PublishMessageEvent(ctx context.Context, eventType string, msg *domain.Message) error
}

// RetrieveOptions parameterizes one pagination walk.
type RetrieveOptions struct {
	ChannelID string
	Direction domain.Direction // DirectionUp when empty
	AnchorID  string           // exclusive cursor; empty = start from the newest message
	MinimumID string           // absolute floor: only ids strictly greater qualify
	Limit     int              // must be > 0, capped by the caller
	Fields    domain.Fields    // optional attribute projection
}

// WindowOptions parameterizes a combined fetch: a pagination walk plus an
// optional delta sync since a watermark.
type WindowOptions struct {
	ChannelID string
	Direction domain.Direction
	AnchorID  string
	MinimumID string
	Since     int64 // watermark; 0 disables the sync part
	Limit     int
}

// Window is the full client-facing fetch result.
type Window struct {
	Messages []domain.Message  `json:"messages"`
	Updated  []domain.Message  `json:"updated"`
	Deleted  []domain.Message  `json:"deleted"`
	Users    []*domain.Profile `json:"users"`
	// LastMessageAt is the creation time of the message immediately
	// preceding the oldest returned one. Populated only when MinimumID was
	// supplied and at least one message matched.
	LastMessageAt *int64 `json:"last_message_at,omitempty"`
}

// MessageService owns the bucketed retrieval and sync engines and the write
// path that keeps bucket summaries consistent.
type MessageService struct {
	buckets        domain.BucketRepository
	users          domain.UserRepository
	publisher      EventPublisher
	bucketCapacity int
}

// NewMessageService creates a new message service. publisher may be nil when
// no realtime fan-out is wanted (e.g. in tests).
func NewMessageService(buckets domain.BucketRepository, users domain.UserRepository, publisher EventPublisher, bucketCapacity int) *MessageService {
	return &MessageService{
		buckets:        buckets,
		users:          users,
		publisher:      publisher,
		bucketCapacity: bucketCapacity,
	}
}

// Retrieve walks buckets one at a time and returns up to Limit live messages
// on the requested side of the anchor: newest first walking up, oldest first
// walking down. Bucket summaries are used as a coarse filter; the messages
// inside each candidate bucket are then filtered and ordered individually.
// Results are globally ordered because bucket id ranges do not overlap.
func (s *MessageService) Retrieve(ctx context.Context, opts RetrieveOptions) ([]domain.Message, error) {
	dir := opts.Direction
	if dir == "" || opts.AnchorID == "" {
		// Walking down without a cursor degenerates to the newest-first start.
		dir = domain.DirectionUp
	}

	anchor := opts.AnchorID
	messages := make([]domain.Message, 0, opts.Limit)
	scanned := 0

	// At least one bucket lookup is always attempted; callers must not pass
	// Limit <= 0.
	for {
		bucket, err := s.buckets.NextBucket(ctx, opts.ChannelID, dir, anchor)
		if errors.Is(err, domain.ErrBucketNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		scanned++

		taken := selectFromBucket(bucket, dir, anchor, opts.MinimumID, opts.Limit-len(messages))
		if opts.Fields != nil {
			for i := range taken {
				taken[i] = opts.Fields.Project(taken[i])
			}
		}
		messages = append(messages, taken...)

		if len(messages) >= opts.Limit {
			break
		}

		// Once an upward walk reaches a bucket whose whole range sits at or
		// below the floor, every older bucket does too.
		if opts.MinimumID != "" && dir == domain.DirectionUp && bucket.LastMessageID <= opts.MinimumID {
			break
		}

		if len(taken) > 0 {
			// The next iteration's boundary is the last id taken, which is
			// precise even though the bucket-level filter is coarse.
			anchor = taken[len(taken)-1].ID
		} else if dir == domain.DirectionUp {
			// Nothing qualified in this bucket; step the cursor to its
			// boundary so the walk cannot revisit it.
			anchor = bucket.FirstMessageID
		} else {
			anchor = bucket.LastMessageID
		}
	}

	observability.BucketsScanned.WithLabelValues(string(dir)).Observe(float64(scanned))
	observability.MessagesRetrieved.WithLabelValues(string(dir)).Add(float64(len(messages)))

	return messages, nil
}

// selectFromBucket applies the message-level fine filter: live messages
// strictly past the anchor in the walk's sense and strictly above the
// minimum floor, ordered by id in the walk's direction, at most limit.
func selectFromBucket(bucket *domain.Bucket, dir domain.Direction, anchorID, minimumID string, limit int) []domain.Message {
	out := make([]domain.Message, 0, limit)

	// Bucket messages are stored in ascending id order.
	for i := range bucket.Messages {
		msg := bucket.Messages[i]
		if dir == domain.DirectionUp {
			msg = bucket.Messages[len(bucket.Messages)-1-i]
		}

		if msg.DeletedAt != 0 {
			continue
		}
		if minimumID != "" && msg.ID <= minimumID {
			continue
		}
		if anchorID != "" {
			if dir == domain.DirectionUp && msg.ID >= anchorID {
				continue
			}
			if dir == domain.DirectionDown && msg.ID <= anchorID {
				continue
			}
		}

		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}

	return out
}

// ChangesSince returns every message whose content or deletion state changed
// after the watermark, split into disjoint updated and deleted sets. Buckets
// are pruned by their summary UpdatedAt first, then each contained message is
// classified individually. A nil result means no bucket changed at all; a
// non-nil result with empty sets means buckets changed but no message
// qualified.
func (s *MessageService) ChangesSince(ctx context.Context, channelID string, since int64) (*domain.Delta, error) {
	buckets, err := s.buckets.ChangedBuckets(ctx, channelID, since)
	if err != nil {
		return nil, err
	}
	if len(buckets) == 0 {
		observability.SyncRequestsTotal.WithLabelValues("unchanged").Inc()
		return nil, nil
	}

	delta := &domain.Delta{
		Updated: []domain.Message{},
		Deleted: []domain.Message{},
	}
	for _, bucket := range buckets {
		for _, msg := range bucket.Messages {
			switch {
			case msg.DeletedAt > since:
				delta.Deleted = append(delta.Deleted, deletedFields.Project(msg))
			case msg.DeletedAt != 0:
				// Deleted before the watermark; the client already knows.
			case msg.UpdatedAt > since:
				delta.Updated = append(delta.Updated, updatedFields.Project(msg))
			}
		}
	}

	observability.SyncRequestsTotal.WithLabelValues("changed").Inc()
	return delta, nil
}

// FetchWindow runs a pagination walk, the optional delta sync, the
// lastMessageAt lookahead and participant resolution, and merges everything
// into one client-facing result.
func (s *MessageService) FetchWindow(ctx context.Context, opts WindowOptions) (*Window, error) {
	messages, err := s.Retrieve(ctx, RetrieveOptions{
		ChannelID: opts.ChannelID,
		Direction: opts.Direction,
		AnchorID:  opts.AnchorID,
		MinimumID: opts.MinimumID,
		Limit:     opts.Limit,
	})
	if err != nil {
		return nil, err
	}

	window := &Window{
		Messages: messages,
		Updated:  []domain.Message{},
		Deleted:  []domain.Message{},
	}

	if opts.MinimumID != "" && len(messages) > 0 {
		oldest := messages[0].ID
		for _, msg := range messages[1:] {
			if msg.ID < oldest {
				oldest = msg.ID
			}
		}

		// One-message lookahead past the oldest returned id tells the client
		// when the preceding message was created, i.e. whether there is a gap
		// between its cached history and this window.
		lookahead, err := s.Retrieve(ctx, RetrieveOptions{
			ChannelID: opts.ChannelID,
			Direction: domain.DirectionUp,
			AnchorID:  oldest,
			Limit:     1,
			Fields:    createdAtFields,
		})
		if err != nil {
			return nil, err
		}
		if len(lookahead) > 0 {
			at := lookahead[0].CreatedAt
			window.LastMessageAt = &at
		}
	}

	if opts.Since > 0 {
		delta, err := s.ChangesSince(ctx, opts.ChannelID, opts.Since)
		if err != nil {
			return nil, err
		}
		if delta != nil {
			window.Updated = delta.Updated
			window.Deleted = delta.Deleted
		}
	}

	users, err := s.resolveParticipants(ctx, append(append([]domain.Message{}, messages...), window.Updated...))
	if err != nil {
		return nil, err
	}
	window.Users = users

	return window, nil
}

// resolveParticipants extracts every user id referenced by the given
// messages (author plus any system-action actors and targets) and resolves
// their display profiles in a single batch.
func (s *MessageService) resolveParticipants(ctx context.Context, messages []domain.Message) ([]*domain.Profile, error) {
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.UserID != "" {
			ids = append(ids, msg.UserID)
		}
		if props := msg.Props; props != nil {
			ids = append(ids, props.AddedUserIDs...)
			ids = append(ids, props.RemovedUserIDs...)
			if props.AddedBy != "" {
				ids = append(ids, props.AddedBy)
			}
			if props.RemovedBy != "" {
				ids = append(ids, props.RemovedBy)
			}
		}
	}

	return s.users.GetProfiles(ctx, lo.Uniq(ids))
}

// Post appends a new message to the channel's bucket log and publishes a
// created event. The message id and creation time are assigned here.
func (s *MessageService) Post(ctx context.Context, msg *domain.Message) error {
	if msg.Type == "" {
		msg.Type = domain.MessageTypeText
	}
	if msg.Type == domain.MessageTypeText && (len(msg.Text) == 0 || len(msg.Text) > maxMessageLength) {
		return domain.ErrInvalidInput
	}

	msg.ID = ulid.Make().String()
	msg.CreatedAt = time.Now().UnixMilli()

	if err := s.buckets.Append(ctx, msg, s.bucketCapacity); err != nil {
		return err
	}

	s.publish(ctx, "message.created", msg)
	return nil
}

// GetMessage returns a live message by id.
func (s *MessageService) GetMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	return s.buckets.GetMessage(ctx, channelID, messageID)
}

// Edit replaces the text of a live message and publishes an updated event.
func (s *MessageService) Edit(ctx context.Context, channelID, messageID, text string) (*domain.Message, error) {
	if len(text) == 0 || len(text) > maxMessageLength {
		return nil, domain.ErrInvalidInput
	}

	msg, err := s.buckets.EditMessage(ctx, channelID, messageID, text, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "message.updated", msg)
	return msg, nil
}

// Delete soft-deletes a message and publishes a deleted event. The message
// keeps its place in the bucket and surfaces through ChangesSince.
func (s *MessageService) Delete(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	msg, err := s.buckets.SoftDeleteMessage(ctx, channelID, messageID, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "message.deleted", msg)
	return msg, nil
}

// publish sends a lifecycle event; the write itself already succeeded, so
// fan-out failures are logged and swallowed.
func (s *MessageService) publish(ctx context.Context, eventType string, msg *domain.Message) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishMessageEvent(ctx, eventType, msg); err != nil {
		observability.FromContext(ctx).Warn("failed to publish message event",
			slog.String("event", eventType),
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()))
	}
}
