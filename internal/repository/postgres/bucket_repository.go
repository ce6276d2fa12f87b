package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"teamline-chat/internal/domain"

	"github.com/google/uuid"
)

// Bucket queries. Messages live inside the bucket row as a jsonb array in
// ascending id order; the surrounding summary columns exist so retrieval can
// prune whole buckets without decoding their contents.
const (
	nextBucketUpQuery = `
		SELECT id, channel_id, count, first_message_id, last_message_id, last_message_at, created_at, updated_at, messages
		FROM message_buckets
		WHERE channel_id = $1 AND ($2::text = '' OR first_message_id < $2)
		ORDER BY created_at DESC
		LIMIT 1
	`

	nextBucketDownQuery = `
		SELECT id, channel_id, count, first_message_id, last_message_id, last_message_at, created_at, updated_at, messages
		FROM message_buckets
		WHERE channel_id = $1 AND (first_message_id > $2 OR last_message_id > $2)
		ORDER BY created_at ASC
		LIMIT 1
	`

	changedBucketsQuery = `
		SELECT id, channel_id, count, first_message_id, last_message_id, last_message_at, created_at, updated_at, messages
		FROM message_buckets
		WHERE channel_id = $1 AND updated_at > $2
	`

	newestBucketForUpdateQuery = `
		SELECT id, channel_id, count, first_message_id, last_message_id, last_message_at, created_at, updated_at, messages
		FROM message_buckets
		WHERE channel_id = $1
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`

	containingBucketQuery = `
		SELECT id, channel_id, count, first_message_id, last_message_id, last_message_at, created_at, updated_at, messages
		FROM message_buckets
		WHERE channel_id = $1 AND first_message_id <= $2 AND last_message_id >= $2
	`

	containingBucketForUpdateQuery = containingBucketQuery + `
		FOR UPDATE
	`

	insertBucketQuery = `
		INSERT INTO message_buckets (id, channel_id, count, first_message_id, last_message_id, last_message_at, created_at, updated_at, messages)
		VALUES ($1, $2, 1, $3, $3, $4, $4, 0, $5::jsonb)
	`

	appendMessageQuery = `
		UPDATE message_buckets
		SET messages = messages || $2::jsonb, count = count + 1, last_message_id = $3, last_message_at = $4
		WHERE id = $1
	`

	rewriteMessagesQuery = `
		UPDATE message_buckets
		SET messages = $2::jsonb, updated_at = GREATEST(updated_at, $3)
		WHERE id = $1
	`
)

// BucketRepository implements domain.BucketRepository for PostgreSQL
type BucketRepository struct {
	db *sql.DB
	tx *TxManager
}

// NewBucketRepository creates a new PostgreSQL bucket repository
func NewBucketRepository(db *sql.DB) *BucketRepository {
	return &BucketRepository{db: db, tx: NewTxManager(db)}
}

// NextBucket returns the next candidate bucket for a pagination walk, one at
// a time: walking up it is the most recently created bucket starting below
// the anchor, walking down the oldest bucket whose id range extends past it.
func (r *BucketRepository) NextBucket(ctx context.Context, channelID string, dir domain.Direction, anchorID string) (*domain.Bucket, error) {
	query := nextBucketUpQuery
	if dir == domain.DirectionDown {
		query = nextBucketDownQuery
	}

	bucket, err := scanBucket(r.db.QueryRowContext(ctx, query, channelID, anchorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBucketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query next bucket: %w", err)
	}
	return bucket, nil
}

// ChangedBuckets returns every bucket whose summary updated_at exceeds since.
func (r *BucketRepository) ChangedBuckets(ctx context.Context, channelID string, since int64) ([]*domain.Bucket, error) {
	rows, err := r.db.QueryContext(ctx, changedBucketsQuery, channelID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed buckets: %w", err)
	}
	defer rows.Close()

	buckets := make([]*domain.Bucket, 0)
	for rows.Next() {
		bucket, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan changed bucket: %w", err)
		}
		buckets = append(buckets, bucket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changed buckets: %w", err)
	}

	return buckets, nil
}

// Append stores msg in the channel's newest bucket. A fresh bucket is created
// when the channel has none yet or the newest bucket already holds capacity
// messages. Summary fields are maintained in the same transaction.
func (r *BucketRepository) Append(ctx context.Context, msg *domain.Message, capacity int) error {
	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		bucket, err := scanBucket(tx.QueryRowContext(ctx, newestBucketForUpdateQuery, msg.ChannelID))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to lock newest bucket: %w", err)
		}

		raw, err := json.Marshal([]domain.Message{*msg})
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}

		if bucket == nil || bucket.Count >= capacity {
			_, err := tx.ExecContext(ctx, insertBucketQuery,
				uuid.New().String(),
				msg.ChannelID,
				msg.ID,
				msg.CreatedAt,
				string(raw),
			)
			if err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
			return nil
		}

		_, err = tx.ExecContext(ctx, appendMessageQuery,
			bucket.ID,
			string(raw),
			msg.ID,
			msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		return nil
	})
}

// GetMessage locates a live message by id within the channel's buckets.
func (r *BucketRepository) GetMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	bucket, err := scanBucket(r.db.QueryRowContext(ctx, containingBucketQuery, channelID, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query containing bucket: %w", err)
	}

	idx := indexOfMessage(bucket.Messages, messageID)
	if idx < 0 || bucket.Messages[idx].DeletedAt != 0 {
		return nil, domain.ErrMessageNotFound
	}

	msg := bucket.Messages[idx]
	return &msg, nil
}

// EditMessage rewrites the text of a live message in place and bumps the
// owning bucket's updated_at to now.
func (r *BucketRepository) EditMessage(ctx context.Context, channelID, messageID, text string, now int64) (*domain.Message, error) {
	return r.mutateMessage(ctx, channelID, messageID, now, func(m *domain.Message) {
		m.Text = text
		m.UpdatedAt = now
	})
}

// SoftDeleteMessage flags a live message as deleted at now and bumps the
// owning bucket's updated_at. The message stays in its bucket.
func (r *BucketRepository) SoftDeleteMessage(ctx context.Context, channelID, messageID string, now int64) (*domain.Message, error) {
	return r.mutateMessage(ctx, channelID, messageID, now, func(m *domain.Message) {
		m.DeletedAt = now
	})
}

// mutateMessage rewrites one message inside its containing bucket under a row
// lock, so concurrent writers never lose each other's changes.
func (r *BucketRepository) mutateMessage(ctx context.Context, channelID, messageID string, now int64, mutate func(*domain.Message)) (*domain.Message, error) {
	var out *domain.Message

	err := r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		bucket, err := scanBucket(tx.QueryRowContext(ctx, containingBucketForUpdateQuery, channelID, messageID))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrMessageNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock containing bucket: %w", err)
		}

		idx := indexOfMessage(bucket.Messages, messageID)
		if idx < 0 || bucket.Messages[idx].DeletedAt != 0 {
			return domain.ErrMessageNotFound
		}

		mutate(&bucket.Messages[idx])
		msg := bucket.Messages[idx]
		out = &msg

		raw, err := json.Marshal(bucket.Messages)
		if err != nil {
			return fmt.Errorf("failed to encode bucket messages: %w", err)
		}

		if _, err := tx.ExecContext(ctx, rewriteMessagesQuery, bucket.ID, string(raw), now); err != nil {
			return fmt.Errorf("failed to rewrite bucket messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func indexOfMessage(msgs []domain.Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBucket(row rowScanner) (*domain.Bucket, error) {
	bucket := &domain.Bucket{}
	var raw []byte

	err := row.Scan(
		&bucket.ID,
		&bucket.ChannelID,
		&bucket.Count,
		&bucket.FirstMessageID,
		&bucket.LastMessageID,
		&bucket.LastMessageAt,
		&bucket.CreatedAt,
		&bucket.UpdatedAt,
		&raw,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(raw, &bucket.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode bucket messages: %w", err)
	}
	return bucket, nil
}
