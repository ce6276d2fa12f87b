// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the teamline-chat application.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"teamline-chat/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockNotFound       = errors.New("mock: not found")
)

// MockBucketRepository implements domain.BucketRepository for testing.
// The in-memory behavior mirrors the SQL repository: buckets are selected by
// their summary columns only, one candidate per call, and message arrays are
// rewritten whole on mutation.
type MockBucketRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	NextBucketFunc        func(ctx context.Context, channelID string, dir domain.Direction, anchorID string) (*domain.Bucket, error)
	ChangedBucketsFunc    func(ctx context.Context, channelID string, since int64) ([]*domain.Bucket, error)
	AppendFunc            func(ctx context.Context, msg *domain.Message, capacity int) error
	GetMessageFunc        func(ctx context.Context, channelID, messageID string) (*domain.Message, error)
	EditMessageFunc       func(ctx context.Context, channelID, messageID, text string, now int64) (*domain.Message, error)
	SoftDeleteMessageFunc func(ctx context.Context, channelID, messageID string, now int64) (*domain.Message, error)

	// In-memory storage: buckets per channel in creation order
	Buckets map[string][]*domain.Bucket

	nextBucketID int
}

// NewMockBucketRepository creates a new MockBucketRepository with initialized maps
func NewMockBucketRepository() *MockBucketRepository {
	return &MockBucketRepository{
		Buckets: make(map[string][]*domain.Bucket),
	}
}

// Seed installs a pre-built bucket, keeping the slice in creation order.
func (m *MockBucketRepository) Seed(bucket *domain.Bucket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Buckets[bucket.ChannelID] = append(m.Buckets[bucket.ChannelID], bucket)
}

func (m *MockBucketRepository) NextBucket(ctx context.Context, channelID string, dir domain.Direction, anchorID string) (*domain.Bucket, error) {
	if m.NextBucketFunc != nil {
		return m.NextBucketFunc(ctx, channelID, dir, anchorID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	buckets := m.Buckets[channelID]

	if dir == domain.DirectionDown {
		// Oldest candidate holding anything past the anchor.
		for _, b := range buckets {
			if b.FirstMessageID > anchorID || b.LastMessageID > anchorID {
				return b, nil
			}
		}
		return nil, domain.ErrBucketNotFound
	}

	// Up: newest candidate strictly before the anchor.
	for i := len(buckets) - 1; i >= 0; i-- {
		b := buckets[i]
		if anchorID == "" || b.FirstMessageID < anchorID {
			return b, nil
		}
	}
	return nil, domain.ErrBucketNotFound
}

func (m *MockBucketRepository) ChangedBuckets(ctx context.Context, channelID string, since int64) ([]*domain.Bucket, error) {
	if m.ChangedBucketsFunc != nil {
		return m.ChangedBucketsFunc(ctx, channelID, since)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var changed []*domain.Bucket
	for _, b := range m.Buckets[channelID] {
		if b.UpdatedAt > since {
			changed = append(changed, b)
		}
	}
	return changed, nil
}

func (m *MockBucketRepository) Append(ctx context.Context, msg *domain.Message, capacity int) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, msg, capacity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	buckets := m.Buckets[msg.ChannelID]

	var newest *domain.Bucket
	if len(buckets) > 0 {
		newest = buckets[len(buckets)-1]
	}

	if newest == nil || newest.Count >= capacity {
		m.nextBucketID++
		newest = &domain.Bucket{
			ID:        fmt.Sprintf("bucket-%d", m.nextBucketID),
			ChannelID: msg.ChannelID,
			CreatedAt: msg.CreatedAt,
		}
		m.Buckets[msg.ChannelID] = append(buckets, newest)
	}

	newest.Messages = append(newest.Messages, *msg)
	newest.Count++
	if newest.FirstMessageID == "" {
		newest.FirstMessageID = msg.ID
	}
	newest.LastMessageID = msg.ID
	newest.LastMessageAt = msg.CreatedAt
	return nil
}

func (m *MockBucketRepository) GetMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	if m.GetMessageFunc != nil {
		return m.GetMessageFunc(ctx, channelID, messageID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg := m.findMessage(channelID, messageID)
	if msg == nil || msg.DeletedAt != 0 {
		return nil, domain.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

func (m *MockBucketRepository) EditMessage(ctx context.Context, channelID, messageID, text string, now int64) (*domain.Message, error) {
	if m.EditMessageFunc != nil {
		return m.EditMessageFunc(ctx, channelID, messageID, text, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, bucket := m.findMessageAndBucket(channelID, messageID)
	if msg == nil || msg.DeletedAt != 0 {
		return nil, domain.ErrMessageNotFound
	}
	msg.Text = text
	msg.UpdatedAt = now
	if now > bucket.UpdatedAt {
		bucket.UpdatedAt = now
	}
	copied := *msg
	return &copied, nil
}

func (m *MockBucketRepository) SoftDeleteMessage(ctx context.Context, channelID, messageID string, now int64) (*domain.Message, error) {
	if m.SoftDeleteMessageFunc != nil {
		return m.SoftDeleteMessageFunc(ctx, channelID, messageID, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, bucket := m.findMessageAndBucket(channelID, messageID)
	if msg == nil || msg.DeletedAt != 0 {
		return nil, domain.ErrMessageNotFound
	}
	msg.DeletedAt = now
	if now > bucket.UpdatedAt {
		bucket.UpdatedAt = now
	}
	copied := *msg
	return &copied, nil
}

func (m *MockBucketRepository) findMessage(channelID, messageID string) *domain.Message {
	msg, _ := m.findMessageAndBucket(channelID, messageID)
	return msg
}

func (m *MockBucketRepository) findMessageAndBucket(channelID, messageID string) (*domain.Message, *domain.Bucket) {
	for _, b := range m.Buckets[channelID] {
		if !b.Contains(messageID) {
			continue
		}
		for i := range b.Messages {
			if b.Messages[i].ID == messageID {
				return &b.Messages[i], b
			}
		}
	}
	return nil, nil
}

// MockChannelRepository implements domain.ChannelRepository for testing
type MockChannelRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc           func(ctx context.Context, channel *domain.Channel) error
	CreateWithMemberFunc func(ctx context.Context, channel *domain.Channel, userID string) error
	GetByIDFunc          func(ctx context.Context, id string) (*domain.Channel, error)
	ListFunc             func(ctx context.Context, teamID string) ([]*domain.Channel, error)
	AddMemberFunc        func(ctx context.Context, channelID, userID string) error
	IsMemberFunc         func(ctx context.Context, channelID, userID string) (bool, error)

	// In-memory storage
	Channels map[string]*domain.Channel
	Members  map[string]map[string]bool // channelID -> userID set
}

// NewMockChannelRepository creates a new MockChannelRepository with initialized maps
func NewMockChannelRepository() *MockChannelRepository {
	return &MockChannelRepository{
		Channels: make(map[string]*domain.Channel),
		Members:  make(map[string]map[string]bool),
	}
}

func (m *MockChannelRepository) Create(ctx context.Context, channel *domain.Channel) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, channel)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now()
	}
	m.Channels[channel.ID] = channel
	return nil
}

func (m *MockChannelRepository) CreateWithMember(ctx context.Context, channel *domain.Channel, userID string) error {
	if m.CreateWithMemberFunc != nil {
		return m.CreateWithMemberFunc(ctx, channel, userID)
	}
	if err := m.Create(ctx, channel); err != nil {
		return err
	}
	return m.AddMember(ctx, channel.ID, userID)
}

func (m *MockChannelRepository) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if channel, ok := m.Channels[id]; ok {
		return channel, nil
	}
	return nil, domain.ErrChannelNotFound
}

func (m *MockChannelRepository) List(ctx context.Context, teamID string) ([]*domain.Channel, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, teamID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var channels []*domain.Channel
	for _, c := range m.Channels {
		if c.TeamID == teamID {
			channels = append(channels, c)
		}
	}
	return channels, nil
}

func (m *MockChannelRepository) AddMember(ctx context.Context, channelID, userID string) error {
	if m.AddMemberFunc != nil {
		return m.AddMemberFunc(ctx, channelID, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Members[channelID] == nil {
		m.Members[channelID] = make(map[string]bool)
	}
	m.Members[channelID][userID] = true
	return nil
}

func (m *MockChannelRepository) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	if m.IsMemberFunc != nil {
		return m.IsMemberFunc(ctx, channelID, userID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.Members[channelID][userID], nil
}

// MockUserRepository implements domain.UserRepository for testing
type MockUserRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc        func(ctx context.Context, user *domain.User) error
	GetByIDFunc       func(ctx context.Context, id string) (*domain.User, error)
	GetByUsernameFunc func(ctx context.Context, username string) (*domain.User, error)
	GetByEmailFunc    func(ctx context.Context, email string) (*domain.User, error)
	GetProfilesFunc   func(ctx context.Context, ids []string) ([]*domain.Profile, error)

	// In-memory storage
	Users map[string]*domain.User
}

// NewMockUserRepository creates a new MockUserRepository with initialized maps
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[string]*domain.User),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.Users {
		if u.Username == user.Username {
			return domain.ErrUsernameExists
		}
		if u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}

	if user.ID == "" {
		user.ID = "user-" + user.Username
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetProfiles(ctx context.Context, ids []string) ([]*domain.Profile, error) {
	if m.GetProfilesFunc != nil {
		return m.GetProfilesFunc(ctx, ids)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var profiles []*domain.Profile
	for _, id := range ids {
		if user, ok := m.Users[id]; ok {
			profiles = append(profiles, &domain.Profile{
				ID:        user.ID,
				FirstName: user.FirstName,
				LastName:  user.LastName,
			})
		}
	}
	return profiles, nil
}

// MockSessionRepository implements domain.SessionRepository for testing
type MockSessionRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc          func(ctx context.Context, session *domain.Session) error
	GetByTokenFunc      func(ctx context.Context, token string) (*domain.Session, error)
	UpdateCSRFTokenFunc func(ctx context.Context, csrfToken, sessionToken string) error
	DeleteFunc          func(ctx context.Context, token string) error
	DeleteExpiredFunc   func(ctx context.Context) (int64, error)

	// In-memory storage keyed by token
	Sessions map[string]*domain.Session
}

// NewMockSessionRepository creates a new MockSessionRepository with initialized maps
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		Sessions: make(map[string]*domain.Session),
	}
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Sessions[session.Token] = session
	return nil
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.Sessions[token]
	if !ok || session.ExpiresAt.Before(time.Now()) {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (m *MockSessionRepository) UpdateCSRFToken(ctx context.Context, csrfToken, sessionToken string) error {
	if m.UpdateCSRFTokenFunc != nil {
		return m.UpdateCSRFTokenFunc(ctx, csrfToken, sessionToken)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.Sessions[sessionToken]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.CSRFToken = csrfToken
	return nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, token string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Sessions, token)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	now := time.Now()
	for token, session := range m.Sessions {
		if session.ExpiresAt.Before(now) {
			delete(m.Sessions, token)
			deleted++
		}
	}
	return deleted, nil
}

// MockRoleRepository implements domain.RoleRepository for testing
type MockRoleRepository struct {
	// Function override
	GrantsForFunc func(ctx context.Context, teamID, channelID, userID, permission string) ([]*domain.RoleGrant, error)

	// Grants returned when no override is set
	Grants []*domain.RoleGrant
}

func (m *MockRoleRepository) GrantsFor(ctx context.Context, teamID, channelID, userID, permission string) ([]*domain.RoleGrant, error) {
	if m.GrantsForFunc != nil {
		return m.GrantsForFunc(ctx, teamID, channelID, userID, permission)
	}
	return m.Grants, nil
}

// MockEventPublisher records published events for assertions.
type MockEventPublisher struct {
	mu sync.Mutex

	PublishMessageEventFunc func(ctx context.Context, eventType string, msg *domain.Message) error

	Events []PublishedEvent
}

// PublishedEvent is one recorded publish call.
type PublishedEvent struct {
	Type    string
	Message *domain.Message
}

func (m *MockEventPublisher) PublishMessageEvent(ctx context.Context, eventType string, msg *domain.Message) error {
	if m.PublishMessageEventFunc != nil {
		return m.PublishMessageEventFunc(ctx, eventType, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Events = append(m.Events, PublishedEvent{Type: eventType, Message: msg})
	return nil
}
