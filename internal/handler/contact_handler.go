package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/middleware"
	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/response"
)

// ContactHandler handles address book requests
type ContactHandler struct {
	contactService *service.ContactService
}

// NewContactHandler creates a new ContactHandler
func NewContactHandler(contactService *service.ContactService) *ContactHandler {
	return &ContactHandler{contactService: contactService}
}

// AddContact handles add contact request
func (h *ContactHandler) AddContact(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req FriendRequest
	if err := c.BindAndValidate(&req); err != nil || req.FriendId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	contact, err := h.contactService.AddContact(ctx, userId, req.FriendId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, contact)
}

// ListContacts handles list contacts request
func (h *ContactHandler) ListContacts(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	contacts, err := h.contactService.ListContacts(ctx, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, contacts)
}
