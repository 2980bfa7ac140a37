package entity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/pkg/constant"
)

func TestGenPairKey_IsOrderIndependent(t *testing.T) {
	req := require.New(t)
	req.Equal("a_1:b_2", GenPairKey("b_2", "a_1"))
	req.Equal(GenPairKey("x", "y"), GenPairKey("y", "x"))
}

func TestDeriveMessageType(t *testing.T) {
	req := require.New(t)
	req.Equal(MessageTypeText, DeriveMessageType(nil))
	req.Equal(MessageTypeText, DeriveMessageType(&Attachment{}))
	req.Equal(MessageTypeImage, DeriveMessageType(&Attachment{Type: "image/png"}))
	req.Equal(MessageTypeFile, DeriveMessageType(&Attachment{Type: "application/pdf"}))
}

func TestCallStatus_Transitions(t *testing.T) {
	req := require.New(t)

	req.True(CallStatusRinging.CanTransition(CallStatusOngoing))
	req.True(CallStatusRinging.CanTransition(CallStatusMissed))
	req.True(CallStatusRinging.CanTransition(CallStatusEnded))
	req.True(CallStatusOngoing.CanTransition(CallStatusEnded))
	req.True(CallStatusOngoing.CanTransition(CallStatusRejected))
	req.False(CallStatusOngoing.CanTransition(CallStatusOngoing))
	req.False(CallStatusOngoing.CanTransition(CallStatusMissed))

	for _, terminal := range []CallStatus{CallStatusEnded, CallStatusRejected, CallStatusMissed} {
		req.True(terminal.IsTerminal())
		for _, to := range []CallStatus{CallStatusOngoing, CallStatusRejected, CallStatusEnded, CallStatusMissed} {
			req.False(terminal.CanTransition(to), "%s -> %s", terminal, to)
		}
	}
}

func TestCallText(t *testing.T) {
	req := require.New(t)
	req.Equal("📞 Call started", CallText(CallTypeAudio, CallStatusRinging))
	req.Equal("🎥 Missed call", CallText(CallTypeVideo, CallStatusMissed))
}

func TestViewerMessage_HidesDeletedContent(t *testing.T) {
	req := require.New(t)
	base := Message{
		Id:         "m1",
		Type:       MessageTypeImage,
		Content:    "look",
		Attachment: &Attachment{Url: "u", Type: "image/png"},
	}

	// Given a personal deletion only
	info := (&ViewerMessage{Message: base, DeletedForMe: true}).ToViewerInfo(nil)
	req.Equal(constant.DeletedForMeText, info.Content)
	req.Equal(MessageTypeSystem, info.Type)
	req.Nil(info.Attachment)

	// Given both deletions, delete-for-everyone text wins
	both := base
	both.DeletedForAll = true
	info = (&ViewerMessage{Message: both, DeletedForMe: true}).ToViewerInfo(nil)
	req.Equal(constant.DeletedForAllText, info.Content)

	// Given no deletion the original is returned
	info = (&ViewerMessage{Message: base}).ToViewerInfo(nil)
	req.Equal("look", info.Content)
	req.Equal(MessageTypeImage, info.Type)
}
