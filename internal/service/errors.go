package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/errcode"
)

// storageErr converts a storage failure into the business error returned to callers
func storageErr(ctx context.Context, op string, err error, fallback *errcode.Error) error {
	if e := errcode.From(err); e != nil {
		return e
	}
	if repository.IsTransient(err) {
		log.CtxWarn(ctx, "%s: transient storage failure: %v", op, err)
		return errcode.ErrStorageTransient
	}
	log.CtxError(ctx, "%s failed: %v", op, err)
	return fallback
}
