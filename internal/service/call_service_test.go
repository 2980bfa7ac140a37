package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/errcode"
)

func TestCall_ExampleScenario(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")

	// When u1 starts an audio call
	started, err := f.calls.StartCall(f.ctx, "u1", &StartCallRequest{ConversationId: "c1", CallType: entity.CallTypeAudio})
	req.NoError(err)
	callId := started.Call.Id
	req.Equal(entity.CallStatusRinging, started.Call.Status)
	req.Equal(entity.MessageTypeSystem, started.Message.Type)
	req.Equal("📞 Call started", started.Message.Content)
	req.Equal(callId, *started.Message.CallId)

	rings := f.pusher.events(constant.EventCallRing)
	req.Len(rings, 1)
	req.Equal("c1", rings[0].Room)
	req.Equal(callId, rings[0].Data.(*CallRingEvent).CallId)
	req.Len(f.pusher.events(constant.EventNewMessage), 1)
	req.Equal([]string{"u1"}, f.pusher.joins[constant.CallChannel(callId)])

	// u2 accepts
	accepted, err := f.calls.AcceptCall(f.ctx, "u2", callId)
	req.NoError(err)
	req.Equal(entity.CallStatusOngoing, accepted.Call.Status)
	req.NotNil(accepted.Call.StartedAt)
	req.Equal(started.Message.Id, accepted.Message.Id)
	req.Equal("📞 Call in progress", accepted.Message.Content)
	req.Equal("u2", accepted.Message.CallMeta.AcceptedBy)
	req.Equal([]string{"u1", "u2"}, f.pusher.joins[constant.CallChannel(callId)])

	// u1 ends
	ended, err := f.calls.EndCall(f.ctx, "u1", callId)
	req.NoError(err)
	req.Equal(entity.CallStatusEnded, ended.Call.Status)
	req.Equal("📞 Call ended", ended.Message.Content)
	req.Equal("u1", ended.Message.CallMeta.EndedBy)
	req.Equal([]string{constant.CallChannel(callId)}, f.pusher.gone)

	// a late accept is rejected and changes nothing
	_, err = f.calls.AcceptCall(f.ctx, "u2", callId)
	req.ErrorIs(err, errcode.ErrInvalidTransition)

	list, err := f.messages.GetMessages(f.ctx, "u2", "c1")
	req.NoError(err)
	req.Len(list, 1)
	req.Equal("📞 Call ended", list[0].Content)

	call, err := f.store.Calls().GetById(f.ctx, callId)
	req.NoError(err)
	req.Equal(entity.CallStatusEnded, call.Status)

	req.Len(f.pusher.events(constant.EventMessageUpdated), 2)
	req.Len(f.pusher.events(constant.EventCallAccepted), 1)
	req.Len(f.pusher.events(constant.EventCallEnded), 1)
}

func TestCall_TerminalStatesAreFinal(t *testing.T) {
	terminal := map[string]func(f *fixture, callId string) error{
		"rejected": func(f *fixture, callId string) error { _, err := f.calls.RejectCall(f.ctx, "u2", callId); return err },
		"missed":   func(f *fixture, callId string) error { _, err := f.calls.MissCall(f.ctx, "u1", callId); return err },
		"ended":    func(f *fixture, callId string) error { _, err := f.calls.EndCall(f.ctx, "u1", callId); return err },
	}

	for name, finish := range terminal {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			f.pair(t, "c1", "u1", "u2")
			started, err := f.calls.StartCall(f.ctx, "u1", &StartCallRequest{ConversationId: "c1", CallType: entity.CallTypeVideo})
			req.NoError(err)
			callId := started.Call.Id

			req.NoError(finish(f, callId))
			call, err := f.store.Calls().GetById(f.ctx, callId)
			req.NoError(err)
			final := call.Status
			req.True(final.IsTerminal())

			_, err = f.calls.AcceptCall(f.ctx, "u2", callId)
			req.ErrorIs(err, errcode.ErrInvalidTransition)
			_, err = f.calls.RejectCall(f.ctx, "u2", callId)
			req.ErrorIs(err, errcode.ErrInvalidTransition)
			_, err = f.calls.EndCall(f.ctx, "u1", callId)
			req.ErrorIs(err, errcode.ErrInvalidTransition)
			_, err = f.calls.MissCall(f.ctx, "u1", callId)
			req.ErrorIs(err, errcode.ErrInvalidTransition)

			call, err = f.store.Calls().GetById(f.ctx, callId)
			req.NoError(err)
			req.Equal(final, call.Status)
		})
	}
}

func TestCall_MissedRewritesAnchor(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")
	started, err := f.calls.StartCall(f.ctx, "u1", &StartCallRequest{ConversationId: "c1", CallType: entity.CallTypeVideo})
	req.NoError(err)

	missed, err := f.calls.MissCall(f.ctx, "u1", started.Call.Id)
	req.NoError(err)
	req.Equal("🎥 Missed call", missed.Message.Content)
	req.Equal(entity.CallStatusMissed, missed.Message.CallMeta.Status)
	req.NotZero(missed.Message.CallMeta.MissedAt)
	req.Len(f.pusher.events(constant.EventCallMissed), 1)
}

func TestCall_EndMarksParticipantLeft(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")
	started, err := f.calls.StartCall(f.ctx, "u1", &StartCallRequest{ConversationId: "c1", CallType: entity.CallTypeAudio})
	req.NoError(err)

	// the caller may end an outgoing ring
	_, err = f.calls.EndCall(f.ctx, "u1", started.Call.Id)
	req.NoError(err)

	members := f.store.CallParticipants(started.Call.Id)
	req.Len(members, 1)
	req.Equal("u1", members[0].UserId)
	req.NotNil(members[0].LeftAt)
}

func TestCall_MissingAnchorStillTransitions(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")
	started, err := f.calls.StartCall(f.ctx, "u1", &StartCallRequest{ConversationId: "c1", CallType: entity.CallTypeAudio})
	req.NoError(err)

	// Given the anchor was deleted for everyone by the caller
	_, err = f.messages.DeleteForEveryone(f.ctx, "u1", started.Message.Id)
	req.NoError(err)
	before := len(f.pusher.events(constant.EventMessageUpdated))

	res, err := f.calls.AcceptCall(f.ctx, "u2", started.Call.Id)
	req.NoError(err)
	req.Equal(entity.CallStatusOngoing, res.Call.Status)
	req.Nil(res.Message)
	req.Len(f.pusher.events(constant.EventMessageUpdated), before)
	req.Len(f.pusher.events(constant.EventCallAccepted), 1)
}

func TestCall_Validation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")

	_, err := f.calls.StartCall(f.ctx, "u1", &StartCallRequest{ConversationId: "c1", CallType: "HOLOGRAM"})
	req.ErrorIs(err, errcode.ErrInvalidParam)

	_, err = f.calls.StartCall(f.ctx, "u3", &StartCallRequest{ConversationId: "c1", CallType: entity.CallTypeAudio})
	req.ErrorIs(err, errcode.ErrNotParticipant)

	_, err = f.calls.AcceptCall(f.ctx, "u2", "missing")
	req.ErrorIs(err, errcode.ErrCallNotFound)

	started, err := f.calls.StartCall(f.ctx, "u1", &StartCallRequest{ConversationId: "c1", CallType: entity.CallTypeAudio})
	req.NoError(err)
	_, err = f.calls.AcceptCall(f.ctx, "u3", started.Call.Id)
	req.ErrorIs(err, errcode.ErrNotParticipant)
}

// brokenCalls fails every call transition write
type brokenCalls struct {
	repository.CallStore
	transitions *int
}

func (c *brokenCalls) Transition(context.Context, string, entity.CallStatus, *int64, *int64) (bool, error) {
	*c.transitions++
	return false, repository.ErrTransient
}

// brokenCallStore serves brokenCalls inside and outside transactions
type brokenCallStore struct {
	repository.Store
	calls *brokenCalls
}

func (s *brokenCallStore) Calls() repository.CallStore { return s.calls }

func (s *brokenCallStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(&brokenCallStore{Store: tx, calls: &brokenCalls{CallStore: tx.Calls(), transitions: s.calls.transitions}})
	})
}

func TestCall_FailedTransitionHasNoSideEffects(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.pair(t, "c1", "u1", "u2")
	started, err := f.calls.StartCall(f.ctx, "u1", &StartCallRequest{ConversationId: "c1", CallType: entity.CallTypeVideo})
	req.NoError(err)
	callId := started.Call.Id

	// Given a store whose call writes fail
	var transitions int
	store := &brokenCallStore{Store: f.store, calls: &brokenCalls{CallStore: f.store.Calls(), transitions: &transitions}}
	p := newRecordingPusher()
	svc := NewCallService(store)
	svc.SetPusher(p)

	// When
	_, err = svc.AcceptCall(f.ctx, "u2", callId)

	// Then the write is attempted once and nothing is broadcast or joined
	req.Error(err)
	req.NotErrorIs(err, errcode.ErrInvalidTransition)
	req.Equal(1, transitions)
	req.Empty(p.events(constant.EventMessageUpdated))
	req.Empty(p.events(constant.EventCallAccepted))
	req.Empty(p.joins)

	// and the call and its anchor are unchanged
	call, err := f.store.Calls().GetById(f.ctx, callId)
	req.NoError(err)
	req.Equal(entity.CallStatusRinging, call.Status)
	list, err := f.messages.GetMessages(f.ctx, "u1", "c1")
	req.NoError(err)
	req.Len(list, 1)
	req.Equal(started.Message.Content, list[0].Content)
}
