package errcode

import (
	"errors"
	"fmt"
)

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// Is matches errors by code so wrapped copies still compare equal to the sentinel
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// From extracts a business error, or returns nil when err is not one
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, "success")

	// Common errors (1xxx)
	ErrInvalidParam     = New(1001, "invalid parameter")
	ErrInternalServer   = New(1002, "internal server error")
	ErrUnauthorized     = New(1003, "unauthorized")
	ErrForbidden        = New(1004, "forbidden")
	ErrNotFound         = New(1005, "not found")
	ErrTooManyRequests  = New(1006, "too many requests")
	ErrNoPermission     = New(1007, "no permission to access this resource")
	ErrConflict         = New(1008, "resource already exists")
	ErrStorageTransient = New(1009, "storage temporarily unavailable")

	// Auth errors (2xxx)
	ErrTokenInvalid  = New(2001, "token invalid")
	ErrTokenExpired  = New(2002, "token expired")
	ErrTokenMissing  = New(2003, "token missing")
	ErrTokenMismatch = New(2004, "token user mismatch")
	ErrUserNotFound  = New(2006, "user not found")

	// Conversation and contact errors (3xxx)
	ErrConvNotFound     = New(3001, "conversation not found")
	ErrContactExists    = New(1008, "contact already exists")
	ErrSelfTarget       = New(1001, "cannot target yourself")
	ErrGroupTooSmall    = New(1001, "group must contain at least 1 member besides you")
	ErrCreateConvFailed = New(3007, "conversation create failed")

	// Permission variants share ErrNoPermission's code so errors.Is matches the kind
	ErrNotParticipant = New(1007, "you are not part of this conversation")
	ErrNotContact     = New(1007, "you can only chat with your contacts")
	ErrNotSender      = New(1007, "you can delete only your own message")

	// Message errors (4xxx)
	ErrMessageNotFound = New(4001, "message not found")
	ErrSendFailed      = New(4005, "message send failed")
	ErrPullFailed      = New(4006, "message pull failed")

	// Call errors (6xxx)
	ErrCallNotFound      = New(6001, "call not found")
	ErrInvalidTransition = New(6002, "invalid call state transition")

	// WebSocket errors (5xxx)
	ErrConnOverLimit   = New(5001, "connection over max limit")
	ErrConnClosed      = New(5002, "connection closed")
	ErrInvalidProtocol = New(5003, "invalid protocol")
	ErrPushFailed      = New(5004, "push message failed")
)
