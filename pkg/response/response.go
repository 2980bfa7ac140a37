package response

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/pkg/errcode"
)

// Response is the envelope of every REST reply. Business failures keep HTTP 200 and carry a non-zero code.
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// Success sends a success response
func Success(ctx context.Context, c *app.RequestContext, data any) {
	c.JSON(consts.StatusOK, Response{
		Code: errcode.ErrSuccess.Code,
		Msg:  errcode.ErrSuccess.Msg,
		Data: data,
	})
}

// Error sends err as a business error. Anything that is not an errcode is reported as internal.
func Error(ctx context.Context, c *app.RequestContext, err error) {
	e := errcode.From(err)
	if e == nil {
		log.CtxError(ctx, "unexpected error: path=%s, error=%v", c.Path(), err)
		e = errcode.ErrInternalServer
	}
	ErrorWithCode(ctx, c, e)
}

// ErrorWithCode sends a specific business error
func ErrorWithCode(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	c.JSON(consts.StatusOK, Response{
		Code: e.Code,
		Msg:  e.Msg,
	})
}
