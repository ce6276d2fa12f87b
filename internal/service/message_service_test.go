package service

import (
	"context"
	"errors"
	"testing"

	"teamline-chat/internal/domain"
	"teamline-chat/internal/testutil"
)

const testChannelID = "chan-1"

// twoBucketRepo seeds the canonical layout used across retrieval tests:
// an older bucket with messages 0..19 and a newer one with messages 20..29.
func twoBucketRepo() *testutil.MockBucketRepository {
	repo := testutil.NewMockBucketRepository()

	older := make([]domain.Message, 0, 20)
	for n := 0; n < 20; n++ {
		older = append(older, testutil.TextMessage(testChannelID, "alice", n))
	}
	repo.Seed(testutil.BuildBucket("b1", testChannelID, 100, older...))

	newer := make([]domain.Message, 0, 10)
	for n := 20; n < 30; n++ {
		newer = append(newer, testutil.TextMessage(testChannelID, "bob", n))
	}
	repo.Seed(testutil.BuildBucket("b2", testChannelID, 200, newer...))

	return repo
}

func assertIDs(t *testing.T, messages []domain.Message, want ...int) {
	t.Helper()
	if len(messages) != len(want) {
		t.Fatalf("got %d messages, want %d", len(messages), len(want))
	}
	for i, n := range want {
		if messages[i].ID != testutil.MessageID(n) {
			t.Errorf("message[%d] = %s, want %s", i, messages[i].ID, testutil.MessageID(n))
		}
	}
}

func TestMessageService_Retrieve_NewestFirst(t *testing.T) {
	svc := NewMessageService(twoBucketRepo(), testutil.NewMockUserRepository(), nil, 100)

	messages, err := svc.Retrieve(context.Background(), RetrieveOptions{
		ChannelID: testChannelID,
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertIDs(t, messages, 29, 28, 27, 26, 25, 24, 23, 22, 21, 20)
}

func TestMessageService_Retrieve_SpansBuckets(t *testing.T) {
	svc := NewMessageService(twoBucketRepo(), testutil.NewMockUserRepository(), nil, 100)

	messages, err := svc.Retrieve(context.Background(), RetrieveOptions{
		ChannelID: testChannelID,
		Limit:     30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(messages) != 30 {
		t.Fatalf("got %d messages, want 30", len(messages))
	}
	// Newest first across the bucket boundary with no gap or overlap.
	for i, msg := range messages {
		if msg.ID != testutil.MessageID(29-i) {
			t.Errorf("message[%d] = %s, want %s", i, msg.ID, testutil.MessageID(29-i))
		}
	}
}

func TestMessageService_Retrieve_DownFromAnchor(t *testing.T) {
	svc := NewMessageService(twoBucketRepo(), testutil.NewMockUserRepository(), nil, 100)

	messages, err := svc.Retrieve(context.Background(), RetrieveOptions{
		ChannelID: testChannelID,
		Direction: domain.DirectionDown,
		AnchorID:  testutil.MessageID(9),
		Limit:     30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(messages) != 20 {
		t.Fatalf("got %d messages, want 20", len(messages))
	}
	// Oldest first, strictly after the anchor, across the bucket boundary.
	for i, msg := range messages {
		if msg.ID != testutil.MessageID(10+i) {
			t.Errorf("message[%d] = %s, want %s", i, msg.ID, testutil.MessageID(10+i))
		}
	}
}

func TestMessageService_Retrieve_DirectionalSymmetry(t *testing.T) {
	svc := NewMessageService(twoBucketRepo(), testutil.NewMockUserRepository(), nil, 100)
	ctx := context.Background()

	up, err := svc.Retrieve(ctx, RetrieveOptions{
		ChannelID: testChannelID,
		Direction: domain.DirectionUp,
		AnchorID:  testutil.MessageID(25),
		Limit:     5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, up, 24, 23, 22, 21, 20)

	down, err := svc.Retrieve(ctx, RetrieveOptions{
		ChannelID: testChannelID,
		Direction: domain.DirectionDown,
		AnchorID:  testutil.MessageID(19),
		Limit:     5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, down, 20, 21, 22, 23, 24)
}

func TestMessageService_Retrieve_EmptyDirectionDefaultsUp(t *testing.T) {
	svc := NewMessageService(twoBucketRepo(), testutil.NewMockUserRepository(), nil, 100)

	messages, err := svc.Retrieve(context.Background(), RetrieveOptions{
		ChannelID: testChannelID,
		Direction: domain.DirectionDown, // no anchor, so the walk starts from the top
		Limit:     3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertIDs(t, messages, 29, 28, 27)
}

func TestMessageService_Retrieve_MinimumFloor(t *testing.T) {
	svc := NewMessageService(twoBucketRepo(), testutil.NewMockUserRepository(), nil, 100)

	messages, err := svc.Retrieve(context.Background(), RetrieveOptions{
		ChannelID: testChannelID,
		MinimumID: testutil.MessageID(24),
		Limit:     30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The floor is exclusive and overrides the remaining limit.
	assertIDs(t, messages, 29, 28, 27, 26, 25)
}

func TestMessageService_Retrieve_MinimumFloorStopsWalk(t *testing.T) {
	inner := testutil.NewMockBucketRepository()
	for b := 0; b < 5; b++ {
		msgs := make([]domain.Message, 0, 4)
		for n := b * 4; n < (b+1)*4; n++ {
			msgs = append(msgs, testutil.TextMessage(testChannelID, "alice", n))
		}
		inner.Seed(testutil.BuildBucket("b"+testutil.MessageID(b), testChannelID, int64(100*(b+1)), msgs...))
	}

	calls := 0
	repo := testutil.NewMockBucketRepository()
	repo.NextBucketFunc = func(ctx context.Context, channelID string, dir domain.Direction, anchorID string) (*domain.Bucket, error) {
		calls++
		return inner.NextBucket(ctx, channelID, dir, anchorID)
	}

	svc := NewMessageService(repo, testutil.NewMockUserRepository(), nil, 100)

	messages, err := svc.Retrieve(context.Background(), RetrieveOptions{
		ChannelID: testChannelID,
		MinimumID: testutil.MessageID(17),
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertIDs(t, messages, 19, 18)

	// The walk must stop at the first bucket entirely at or below the floor
	// instead of scanning the remaining history.
	if calls > 3 {
		t.Errorf("walked %d buckets, want at most 3", calls)
	}
}

func TestMessageService_Retrieve_SkipsDeleted(t *testing.T) {
	repo := twoBucketRepo()
	if _, err := repo.SoftDeleteMessage(context.Background(), testChannelID, testutil.MessageID(28), 5000); err != nil {
		t.Fatalf("seed delete failed: %v", err)
	}
	svc := NewMessageService(repo, testutil.NewMockUserRepository(), nil, 100)

	messages, err := svc.Retrieve(context.Background(), RetrieveOptions{
		ChannelID: testChannelID,
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The deleted message is skipped and the limit is still filled, reaching
	// into the older bucket for the last slot.
	assertIDs(t, messages, 29, 27, 26, 25, 24, 23, 22, 21, 20, 19)
}

func TestMessageService_Retrieve_WalksPastFullyDeletedBucket(t *testing.T) {
	repo := testutil.NewMockBucketRepository()
	ctx := context.Background()

	live := make([]domain.Message, 0, 5)
	for n := 0; n < 5; n++ {
		live = append(live, testutil.TextMessage(testChannelID, "alice", n))
	}
	repo.Seed(testutil.BuildBucket("b1", testChannelID, 100, live...))

	tombstones := make([]domain.Message, 0, 5)
	for n := 5; n < 10; n++ {
		msg := testutil.TextMessage(testChannelID, "alice", n)
		msg.DeletedAt = 9000
		tombstones = append(tombstones, msg)
	}
	repo.Seed(testutil.BuildBucket("b2", testChannelID, 200, tombstones...))

	svc := NewMessageService(repo, testutil.NewMockUserRepository(), nil, 100)

	// The newest bucket yields nothing; the walk must still reach the older
	// bucket instead of stopping early.
	messages, err := svc.Retrieve(ctx, RetrieveOptions{
		ChannelID: testChannelID,
		Limit:     3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertIDs(t, messages, 4, 3, 2)
}

func TestMessageService_Retrieve_EmptyChannel(t *testing.T) {
	svc := NewMessageService(testutil.NewMockBucketRepository(), testutil.NewMockUserRepository(), nil, 100)

	messages, err := svc.Retrieve(context.Background(), RetrieveOptions{
		ChannelID: "no-such-channel",
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("got %d messages, want 0", len(messages))
	}
}

func TestMessageService_Retrieve_Projection(t *testing.T) {
	svc := NewMessageService(twoBucketRepo(), testutil.NewMockUserRepository(), nil, 100)

	messages, err := svc.Retrieve(context.Background(), RetrieveOptions{
		ChannelID: testChannelID,
		Limit:     1,
		Fields:    domain.Fields{"created_at"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}

	msg := messages[0]
	if msg.ID == "" || msg.CreatedAt == 0 {
		t.Errorf("projection must keep id and created_at, got %+v", msg)
	}
	if msg.Text != "" || msg.UserID != "" {
		t.Errorf("projection must drop unselected attributes, got %+v", msg)
	}
}

func TestMessageService_ChangesSince_NothingChanged(t *testing.T) {
	svc := NewMessageService(twoBucketRepo(), testutil.NewMockUserRepository(), nil, 100)

	delta, err := svc.ChangesSince(context.Background(), testChannelID, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta != nil {
		t.Errorf("expected nil delta when no bucket changed, got %+v", delta)
	}
}

func TestMessageService_ChangesSince_Classification(t *testing.T) {
	repo := twoBucketRepo()
	ctx := context.Background()

	// Deleted before the watermark: already known to the client.
	if _, err := repo.SoftDeleteMessage(ctx, testChannelID, testutil.MessageID(21), 400); err != nil {
		t.Fatalf("seed delete failed: %v", err)
	}
	// Edited after the watermark.
	if _, err := repo.EditMessage(ctx, testChannelID, testutil.MessageID(22), "revised", 600); err != nil {
		t.Fatalf("seed edit failed: %v", err)
	}
	// Edited then deleted after the watermark: must surface only as deleted.
	if _, err := repo.EditMessage(ctx, testChannelID, testutil.MessageID(23), "doomed", 650); err != nil {
		t.Fatalf("seed edit failed: %v", err)
	}
	if _, err := repo.SoftDeleteMessage(ctx, testChannelID, testutil.MessageID(23), 700); err != nil {
		t.Fatalf("seed delete failed: %v", err)
	}

	svc := NewMessageService(repo, testutil.NewMockUserRepository(), nil, 100)

	delta, err := svc.ChangesSince(ctx, testChannelID, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta == nil {
		t.Fatal("expected non-nil delta")
	}

	if len(delta.Updated) != 1 || delta.Updated[0].ID != testutil.MessageID(22) {
		t.Fatalf("updated = %+v, want only message 22", delta.Updated)
	}
	if delta.Updated[0].Text != "revised" || delta.Updated[0].UpdatedAt != 600 {
		t.Errorf("updated projection wrong: %+v", delta.Updated[0])
	}
	if delta.Updated[0].CreatedAt != 0 {
		t.Errorf("updated projection must drop created_at, got %+v", delta.Updated[0])
	}

	if len(delta.Deleted) != 1 || delta.Deleted[0].ID != testutil.MessageID(23) {
		t.Fatalf("deleted = %+v, want only message 23", delta.Deleted)
	}
	if delta.Deleted[0].DeletedAt != 700 {
		t.Errorf("deleted projection wrong: %+v", delta.Deleted[0])
	}
	if delta.Deleted[0].Text != "" {
		t.Errorf("deleted projection must drop text, got %+v", delta.Deleted[0])
	}
}

func TestMessageService_ChangesSince_BucketChangedButNoMessageQualifies(t *testing.T) {
	repo := twoBucketRepo()
	ctx := context.Background()

	if _, err := repo.SoftDeleteMessage(ctx, testChannelID, testutil.MessageID(20), 400); err != nil {
		t.Fatalf("seed delete failed: %v", err)
	}

	svc := NewMessageService(repo, testutil.NewMockUserRepository(), nil, 100)

	// The bucket summary says it changed at 400, but at watermark 450 every
	// contained change predates the client's knowledge.
	delta, err := svc.ChangesSince(ctx, testChannelID, 350)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta == nil {
		t.Fatal("expected non-nil delta for a changed bucket")
	}
	if len(delta.Deleted) != 1 {
		t.Fatalf("deleted = %+v, want one entry", delta.Deleted)
	}

	later, err := svc.ChangesSince(ctx, testChannelID, 450)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if later != nil {
		t.Errorf("expected nil delta past the bucket watermark, got %+v", later)
	}
}

func TestMessageService_FetchWindow_Lookahead(t *testing.T) {
	repo := twoBucketRepo()
	users := testutil.NewMockUserRepository()
	svc := NewMessageService(repo, users, nil, 100)

	window, err := svc.FetchWindow(context.Background(), WindowOptions{
		ChannelID: testChannelID,
		MinimumID: testutil.MessageID(24),
		Limit:     3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertIDs(t, window.Messages, 29, 28, 27)

	// The message preceding the oldest returned one is 26, created at 1026.
	if window.LastMessageAt == nil {
		t.Fatal("expected last_message_at to be populated")
	}
	if *window.LastMessageAt != 1026 {
		t.Errorf("last_message_at = %d, want 1026", *window.LastMessageAt)
	}
}

func TestMessageService_FetchWindow_NoLookaheadWithoutMinimum(t *testing.T) {
	svc := NewMessageService(twoBucketRepo(), testutil.NewMockUserRepository(), nil, 100)

	window, err := svc.FetchWindow(context.Background(), WindowOptions{
		ChannelID: testChannelID,
		Limit:     3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if window.LastMessageAt != nil {
		t.Errorf("expected nil last_message_at, got %d", *window.LastMessageAt)
	}
}

func TestMessageService_FetchWindow_MergesSync(t *testing.T) {
	repo := twoBucketRepo()
	ctx := context.Background()

	if _, err := repo.EditMessage(ctx, testChannelID, testutil.MessageID(3), "revised", 600); err != nil {
		t.Fatalf("seed edit failed: %v", err)
	}

	svc := NewMessageService(repo, testutil.NewMockUserRepository(), nil, 100)

	window, err := svc.FetchWindow(ctx, WindowOptions{
		ChannelID: testChannelID,
		Since:     500,
		Limit:     5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertIDs(t, window.Messages, 29, 28, 27, 26, 25)
	if len(window.Updated) != 1 || window.Updated[0].ID != testutil.MessageID(3) {
		t.Errorf("updated = %+v, want message 3", window.Updated)
	}
	if len(window.Deleted) != 0 {
		t.Errorf("deleted = %+v, want empty", window.Deleted)
	}
}

func TestMessageService_FetchWindow_ResolvesParticipants(t *testing.T) {
	repo := testutil.NewMockBucketRepository()
	ctx := context.Background()

	msgs := []domain.Message{
		testutil.TextMessage(testChannelID, "alice", 0),
		testutil.TextMessage(testChannelID, "alice", 1),
	}
	join := domain.Message{
		ID:        testutil.MessageID(2),
		ChannelID: testChannelID,
		UserID:    "bob",
		Type:      domain.MessageTypeSystem,
		Props: &domain.MessageProps{
			AddedUserIDs: []string{"carol"},
			AddedBy:      "bob",
		},
		CreatedAt: 1002,
	}
	repo.Seed(testutil.BuildBucket("b1", testChannelID, 100, msgs[0], msgs[1], join))

	users := testutil.NewMockUserRepository()
	users.Users["alice"] = &domain.User{ID: "alice", FirstName: "Alice", LastName: "Archer"}
	users.Users["bob"] = &domain.User{ID: "bob", FirstName: "Bob", LastName: "Binder"}
	users.Users["carol"] = &domain.User{ID: "carol", FirstName: "Carol", LastName: "Cutter"}

	svc := NewMessageService(repo, users, nil, 100)

	window, err := svc.FetchWindow(ctx, WindowOptions{
		ChannelID: testChannelID,
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(window.Users) != 3 {
		t.Fatalf("got %d profiles, want 3 (deduplicated)", len(window.Users))
	}
	seen := make(map[string]bool)
	for _, p := range window.Users {
		seen[p.ID] = true
	}
	for _, id := range []string{"alice", "bob", "carol"} {
		if !seen[id] {
			t.Errorf("missing profile for %s", id)
		}
	}
}

func TestMessageService_Post_RollsOverAtCapacity(t *testing.T) {
	repo := testutil.NewMockBucketRepository()
	publisher := &testutil.MockEventPublisher{}
	svc := NewMessageService(repo, testutil.NewMockUserRepository(), publisher, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := &domain.Message{ChannelID: testChannelID, UserID: "alice", Text: "hi"}
		if err := svc.Post(ctx, msg); err != nil {
			t.Fatalf("post %d failed: %v", i, err)
		}
		if msg.ID == "" || msg.CreatedAt == 0 {
			t.Errorf("post %d: id and created_at must be assigned, got %+v", i, msg)
		}
	}

	buckets := repo.Buckets[testChannelID]
	if len(buckets) != 2 {
		t.Fatalf("got %d buckets, want 2 after capacity rollover", len(buckets))
	}
	if buckets[0].Count != 2 || buckets[1].Count != 1 {
		t.Errorf("bucket counts = %d, %d, want 2, 1", buckets[0].Count, buckets[1].Count)
	}

	if len(publisher.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(publisher.Events))
	}
	for _, ev := range publisher.Events {
		if ev.Type != "message.created" {
			t.Errorf("event type = %s, want message.created", ev.Type)
		}
	}
}

func TestMessageService_Post_ValidatesText(t *testing.T) {
	svc := NewMessageService(testutil.NewMockBucketRepository(), testutil.NewMockUserRepository(), nil, 100)

	err := svc.Post(context.Background(), &domain.Message{ChannelID: testChannelID, UserID: "alice"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty text, got %v", err)
	}
}

func TestMessageService_EditAndDelete_PublishEvents(t *testing.T) {
	repo := twoBucketRepo()
	publisher := &testutil.MockEventPublisher{}
	svc := NewMessageService(repo, testutil.NewMockUserRepository(), publisher, 100)
	ctx := context.Background()

	edited, err := svc.Edit(ctx, testChannelID, testutil.MessageID(5), "revised")
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if edited.Text != "revised" || edited.UpdatedAt == 0 {
		t.Errorf("edit result wrong: %+v", edited)
	}

	deleted, err := svc.Delete(ctx, testChannelID, testutil.MessageID(6))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted.DeletedAt == 0 {
		t.Errorf("delete must set deleted_at: %+v", deleted)
	}

	if len(publisher.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(publisher.Events))
	}
	if publisher.Events[0].Type != "message.updated" || publisher.Events[1].Type != "message.deleted" {
		t.Errorf("event types = %s, %s", publisher.Events[0].Type, publisher.Events[1].Type)
	}
}

func TestMessageService_Edit_UnknownMessage(t *testing.T) {
	svc := NewMessageService(twoBucketRepo(), testutil.NewMockUserRepository(), nil, 100)

	_, err := svc.Edit(context.Background(), testChannelID, testutil.MessageID(99), "revised")
	if !errors.Is(err, domain.ErrMessageNotFound) {
		t.Errorf("expected ErrMessageNotFound, got %v", err)
	}
}
