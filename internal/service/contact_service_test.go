package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/pkg/errcode"
)

type stubPresence map[string]entity.Presence

func (s stubPresence) Lookup(_ context.Context, userId string) (entity.Presence, bool) {
	p, ok := s[userId]
	return p, ok
}

func TestAddContact(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	_, err := f.contacts.AddContact(f.ctx, "u1", "nobody")
	req.ErrorIs(err, errcode.ErrUserNotFound)

	_, err = f.contacts.AddContact(f.ctx, "u1", "u1")
	req.ErrorIs(err, errcode.ErrInvalidParam)

	info, err := f.contacts.AddContact(f.ctx, "u1", "u2")
	req.NoError(err)
	req.Equal("u2", info.Friend.Id)

	_, err = f.contacts.AddContact(f.ctx, "u1", "u2")
	req.ErrorIs(err, errcode.ErrConflict)
}

func TestListContacts_UsesLivePresence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.contacts.SetPresenceReader(stubPresence{"u2": {UserId: "u2", Online: true}})

	_, err := f.contacts.AddContact(f.ctx, "u1", "u2")
	req.NoError(err)
	_, err = f.contacts.AddContact(f.ctx, "u1", "u3")
	req.NoError(err)

	list, err := f.contacts.ListContacts(f.ctx, "u1")
	req.NoError(err)
	req.Len(list, 2)

	online := map[string]bool{}
	for _, c := range list {
		online[c.Friend.Id] = c.Presence.Online
	}
	req.True(online["u2"])
	req.False(online["u3"])
}

func TestGetPresence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	svc := NewUserService(f.store.Users())

	_, err := svc.GetPresence(f.ctx, "ghost")
	req.ErrorIs(err, errcode.ErrUserNotFound)

	lastSeen := int64(42)
	req.NoError(f.store.Users().UpdatePresence(f.ctx, "u1", false, &lastSeen, 1))
	p, err := svc.GetPresence(f.ctx, "u1")
	req.NoError(err)
	req.False(p.Online)
	req.Equal(int64(42), *p.LastSeenAt)

	svc.SetPresenceReader(stubPresence{"u1": {UserId: "u1", Online: true}})
	p, err = svc.GetPresence(f.ctx, "u1")
	req.NoError(err)
	req.True(p.Online)
}
