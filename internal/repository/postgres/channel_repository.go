package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"teamline-chat/internal/domain"
)

// ChannelRepository implements domain.ChannelRepository for PostgreSQL
type ChannelRepository struct {
	db *sql.DB
	tx *TxManager
}

// NewChannelRepository creates a new PostgreSQL channel repository
func NewChannelRepository(db *sql.DB) *ChannelRepository {
	return &ChannelRepository{db: db, tx: NewTxManager(db)}
}

// Create inserts a new channel into the database
func (r *ChannelRepository) Create(ctx context.Context, channel *domain.Channel) error {
	query := `
		INSERT INTO channels (team_id, name, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		channel.TeamID,
		channel.Name,
		channel.CreatedBy,
	).Scan(&channel.ID, &channel.CreatedAt)
}

// CreateWithMember creates a channel and adds the creator as its first member
// in a single transaction.
func (r *ChannelRepository) CreateWithMember(ctx context.Context, channel *domain.Channel, userID string) error {
	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO channels (team_id, name, created_by)
			VALUES ($1, $2, $3)
			RETURNING id, created_at
		`
		err := tx.QueryRowContext(ctx, query,
			channel.TeamID,
			channel.Name,
			channel.CreatedBy,
		).Scan(&channel.ID, &channel.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create channel: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO channel_members (channel_id, user_id)
			VALUES ($1, $2)
		`, channel.ID, userID)
		if err != nil {
			return fmt.Errorf("failed to add creator as member: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a channel by ID
func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	query := `
		SELECT id, team_id, name, created_at, created_by
		FROM channels
		WHERE id = $1
	`
	channel := &domain.Channel{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&channel.ID,
		&channel.TeamID,
		&channel.Name,
		&channel.CreatedAt,
		&channel.CreatedBy,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrChannelNotFound
	}
	return channel, err
}

// List retrieves all channels of a team
func (r *ChannelRepository) List(ctx context.Context, teamID string) ([]*domain.Channel, error) {
	query := `
		SELECT id, team_id, name, created_at, created_by
		FROM channels
		WHERE team_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := make([]*domain.Channel, 0)
	for rows.Next() {
		channel := &domain.Channel{}
		err := rows.Scan(
			&channel.ID,
			&channel.TeamID,
			&channel.Name,
			&channel.CreatedAt,
			&channel.CreatedBy,
		)
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}

	return channels, rows.Err()
}

// AddMember adds a user to a channel
func (r *ChannelRepository) AddMember(ctx context.Context, channelID, userID string) error {
	query := `
		INSERT INTO channel_members (channel_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, channelID, userID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return domain.ErrChannelNotFound
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// IsMember checks whether a user belongs to a channel
func (r *ChannelRepository) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM channel_members
			WHERE channel_id = $1 AND user_id = $2
		)
	`
	var isMember bool
	err := r.db.QueryRowContext(ctx, query, channelID, userID).Scan(&isMember)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return isMember, nil
}
