package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/errcode"
)

func TestSendMessage_DeliversToRoomAndReceivers(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")

	// When u1 sends a text message
	info := f.send(t, "u1", "c1", "hi")

	// Then the response reflects the stored message
	req.NotEmpty(info.Id)
	req.Equal("u1", info.SenderId)
	req.Equal(entity.MessageTypeText, info.Type)
	req.False(info.DeletedForAll)
	req.Equal("name-u1", info.Sender.Name)

	// And exactly one new-message push targets the room plus u2
	pushes := f.pusher.events(constant.EventNewMessage)
	req.Len(pushes, 1)
	req.Equal("c1", pushes[0].Room)
	req.Equal([]string{"u2"}, pushes[0].Users)
	req.Equal(info, pushes[0].Data)
}

func TestSendMessage_RequiresParticipant(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")

	_, err := f.messages.SendMessage(f.ctx, "u3", &SendMessageRequest{ConversationId: "c1", Content: "hi"})
	req.ErrorIs(err, errcode.ErrNoPermission)
	req.Empty(f.pusher.events(constant.EventNewMessage))
}

func TestSendMessage_AcceptsEmptyContentAndDerivesType(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")

	empty := f.send(t, "u1", "c1", "")
	req.Equal(entity.MessageTypeText, empty.Type)

	img, err := f.messages.SendMessage(f.ctx, "u1", &SendMessageRequest{
		ConversationId: "c1",
		Attachment:     &entity.Attachment{Url: "https://cdn/x.png", Type: "image/png", Size: 10},
	})
	req.NoError(err)
	req.Equal(entity.MessageTypeImage, img.Type)

	pdf, err := f.messages.SendMessage(f.ctx, "u1", &SendMessageRequest{
		ConversationId: "c1",
		Attachment:     &entity.Attachment{Url: "https://cdn/x.pdf", Type: "application/pdf"},
	})
	req.NoError(err)
	req.Equal(entity.MessageTypeFile, pdf.Type)
}

func TestSendMessage_ReplyMustBeInConversation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")
	f.pair(t, "c2", "u1", "u3")
	other := f.send(t, "u1", "c2", "elsewhere")

	_, err := f.messages.SendMessage(f.ctx, "u1", &SendMessageRequest{ConversationId: "c1", ReplyToId: &other.Id})
	req.ErrorIs(err, errcode.ErrMessageNotFound)

	first := f.send(t, "u1", "c1", "first")
	reply, err := f.messages.SendMessage(f.ctx, "u2", &SendMessageRequest{ConversationId: "c1", Content: "re", ReplyToId: &first.Id})
	req.NoError(err)
	req.Equal(first.Id, *reply.ReplyToId)
}

func TestSendMessage_ConcurrentFirstContactCreatesOneRowPerDirection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")

	// Given no prior contacts, both sides send concurrently
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); f.send(t, "u1", "c1", "a") }()
		go func() { defer wg.Done(); f.send(t, "u2", "c1", "b") }()
	}
	wg.Wait()

	// Then each owner holds exactly one contact for the other side
	c2, err := f.store.Contacts().ListByOwner(f.ctx, "u2")
	req.NoError(err)
	req.Len(c2, 1)
	req.Equal("u1", c2[0].FriendId)

	c1, err := f.store.Contacts().ListByOwner(f.ctx, "u1")
	req.NoError(err)
	req.Len(c1, 1)
	req.Equal("u2", c1[0].FriendId)
}

func TestMarkRead_IsIdempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")
	f.send(t, "u1", "c1", "hi")

	res, err := f.messages.MarkRead(f.ctx, "u2", "c1")
	req.NoError(err)
	req.Equal(int64(1), res.Count)

	res, err = f.messages.MarkRead(f.ctx, "u2", "c1")
	req.NoError(err)
	req.Zero(res.Count)

	// only the first call notifies the room
	reads := f.pusher.events(constant.EventMessagesRead)
	req.Len(reads, 1)
	req.Equal(&MessagesReadEvent{ConversationId: "c1", UserId: "u2", Count: 1}, reads[0].Data)
}

func TestUnreadCounts_ExampleScenario(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")
	f.send(t, "u1", "c1", "hi")

	// u1's own message is never unread to u1
	counts, err := f.messages.GetUnreadCounts(f.ctx, "u1")
	req.NoError(err)
	req.Equal([]*entity.UnreadCount{{ConversationId: "c1", UnreadCount: 0}}, counts)

	counts, err = f.messages.GetUnreadCounts(f.ctx, "u2")
	req.NoError(err)
	req.Equal(int64(1), counts[0].UnreadCount)

	_, err = f.messages.MarkRead(f.ctx, "u2", "c1")
	req.NoError(err)
	counts, err = f.messages.GetUnreadCounts(f.ctx, "u2")
	req.NoError(err)
	req.Zero(counts[0].UnreadCount)
}

func TestDeleteForEveryone_IsIdempotentAndIrreversible(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")
	msg := f.send(t, "u1", "c1", "secret")

	// Only the sender may delete for everyone
	_, err := f.messages.DeleteForEveryone(f.ctx, "u2", msg.Id)
	req.ErrorIs(err, errcode.ErrNoPermission)

	first, err := f.messages.DeleteForEveryone(f.ctx, "u1", msg.Id)
	req.NoError(err)
	req.True(first.DeletedForAll)
	req.Equal(entity.MessageTypeSystem, first.Type)
	req.Equal(constant.DeletedForAllText, first.Content)

	second, err := f.messages.DeleteForEveryone(f.ctx, "u1", msg.Id)
	req.NoError(err)
	req.Equal(first.UpdatedAt, second.UpdatedAt)
	req.Len(f.pusher.events(constant.EventMessageUpdated), 1)

	for _, viewer := range []string{"u1", "u2"} {
		list, err := f.messages.GetMessages(f.ctx, viewer, "c1")
		req.NoError(err)
		req.Len(list, 1)
		req.Equal(constant.DeletedForAllText, list[0].Content)
		req.Equal(entity.MessageTypeSystem, list[0].Type)
	}
}

func TestDeleteForMe_IsPrivate(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")
	msg := f.send(t, "u1", "c1", "hello")

	// A non-participant cannot learn the message exists
	err := f.messages.DeleteForMe(f.ctx, "u3", msg.Id)
	req.ErrorIs(err, errcode.ErrMessageNotFound)

	req.NoError(f.messages.DeleteForMe(f.ctx, "u2", msg.Id))
	req.NoError(f.messages.DeleteForMe(f.ctx, "u2", msg.Id))

	mine, err := f.messages.GetMessages(f.ctx, "u2", "c1")
	req.NoError(err)
	req.Equal(constant.DeletedForMeText, mine[0].Content)

	theirs, err := f.messages.GetMessages(f.ctx, "u1", "c1")
	req.NoError(err)
	req.Equal("hello", theirs[0].Content)
	req.Equal(entity.MessageTypeText, theirs[0].Type)

	// the sender then deletes for everyone, which wins in u2's view
	_, err = f.messages.DeleteForEveryone(f.ctx, "u1", msg.Id)
	req.NoError(err)
	mine, err = f.messages.GetMessages(f.ctx, "u2", "c1")
	req.NoError(err)
	req.Equal(constant.DeletedForAllText, mine[0].Content)

	req.Len(f.pusher.events(constant.EventMessageUpdated), 1)
}

func TestGetMessages_RequiresParticipant(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")

	_, err := f.messages.GetMessages(f.ctx, "u3", "c1")
	req.ErrorIs(err, errcode.ErrNotParticipant)
}

// flakyMessages fails deletion writes transiently a fixed number of times, and message inserts when createErr is set
type flakyMessages struct {
	repository.MessageStore
	failures int
	calls    int

	createErr error
	creates   int
}

func (m *flakyMessages) Create(ctx context.Context, msg *entity.Message) error {
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	return m.MessageStore.Create(ctx, msg)
}

func (m *flakyMessages) UpsertDeletion(ctx context.Context, d *entity.MessageDeletion) error {
	m.calls++
	if m.calls <= m.failures {
		return repository.ErrTransient
	}
	return m.MessageStore.UpsertDeletion(ctx, d)
}

type flakyStore struct {
	repository.Store
	messages *flakyMessages
}

func (s *flakyStore) Messages() repository.MessageStore { return s.messages }

func TestDeleteForMe_RetriesTransientFailures(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")
	msg := f.send(t, "u1", "c1", "hello")

	flaky := &flakyMessages{MessageStore: f.store.Messages(), failures: 2}
	svc := NewMessageService(&flakyStore{Store: f.store, messages: flaky}, &config.ChatConfig{RetryAttempts: 3, RetryDelay: time.Millisecond})

	req.NoError(svc.DeleteForMe(f.ctx, "u2", msg.Id))
	req.Equal(3, flaky.calls)

	// Given more failures than attempts, the transient kind surfaces
	flaky.calls, flaky.failures = 0, 10
	err := svc.DeleteForMe(f.ctx, "u2", msg.Id)
	req.True(errors.Is(err, errcode.ErrStorageTransient))
}

func TestSendMessage_FailedInsertHasNoSideEffects(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")

	// Given a message store whose insert fails transiently
	flaky := &flakyMessages{MessageStore: f.store.Messages(), createErr: repository.ErrTransient}
	p := newRecordingPusher()
	svc := NewMessageService(&flakyStore{Store: f.store, messages: flaky}, &config.ChatConfig{RetryAttempts: 3, RetryDelay: time.Millisecond})
	svc.SetPusher(p)

	// When
	_, err := svc.SendMessage(f.ctx, "u1", &SendMessageRequest{ConversationId: "c1", Content: "hi"})

	// Then the send fails once, without a retry
	req.Error(err)
	req.Equal(1, flaky.creates)

	// and nothing else happened
	req.Empty(p.events(constant.EventNewMessage))
	exists, err := f.store.Contacts().Exists(f.ctx, "u2", "u1")
	req.NoError(err)
	req.False(exists)
	list, err := f.messages.GetMessages(f.ctx, "u2", "c1")
	req.NoError(err)
	req.Empty(list)
}

func TestUnreadCounts_AgreeWithMarkReadAfterDeleteForMe(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")

	// Given u2 hides an unread message for themselves
	msg := f.send(t, "u1", "c1", "hello")
	req.NoError(f.messages.DeleteForMe(f.ctx, "u2", msg.Id))

	// When
	counts, err := f.messages.GetUnreadCounts(f.ctx, "u2")
	req.NoError(err)
	read, err := f.messages.MarkRead(f.ctx, "u2", "c1")
	req.NoError(err)

	// Then the badge and the receipts count the same message
	req.Len(counts, 1)
	req.Equal(int64(1), counts[0].UnreadCount)
	req.Equal(counts[0].UnreadCount, read.Count)

	counts, err = f.messages.GetUnreadCounts(f.ctx, "u2")
	req.NoError(err)
	req.Zero(counts[0].UnreadCount)
}
