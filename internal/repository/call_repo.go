package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/parley/internal/entity"
)

// CallRepo is the repository for call operations
type CallRepo struct {
	db *gorm.DB
}

// NewCallRepo creates a new CallRepo
func NewCallRepo(db *gorm.DB) *CallRepo {
	return &CallRepo{db: db}
}

// Create creates a new call
func (r *CallRepo) Create(ctx context.Context, call *entity.Call) error {
	if call.CreatedAt == 0 {
		call.CreatedAt = entity.NowUnixMilli()
	}
	return translate(r.db.WithContext(ctx).Create(call).Error)
}

// GetById gets call by Id
func (r *CallRepo) GetById(ctx context.Context, id string) (*entity.Call, error) {
	var call entity.Call
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&call).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &call, nil
}

// Transition is a conditional update guarded by the valid source states of `to`
func (r *CallRepo) Transition(ctx context.Context, callId string, to entity.CallStatus, startedAt, endedAt *int64) (bool, error) {
	sources := entity.TransitionSources(to)
	if len(sources) == 0 {
		return false, nil
	}

	updates := map[string]interface{}{"status": to}
	if startedAt != nil {
		updates["started_at"] = *startedAt
	}
	if endedAt != nil {
		updates["ended_at"] = *endedAt
	}

	res := r.db.WithContext(ctx).
		Model(&entity.Call{}).
		Where("id = ? AND status IN ?", callId, sources).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AddParticipant inserts a call participant or rejoins a previous one
func (r *CallRepo) AddParticipant(ctx context.Context, p *entity.CallParticipant) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "call_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"joined_at": p.JoinedAt,
				"left_at":   gorm.Expr("NULL"),
			}),
		}).
		Create(p).Error
}

// MarkParticipantLeft stamps left_at on the user's open participation, if any
func (r *CallRepo) MarkParticipantLeft(ctx context.Context, callId, userId string, now int64) error {
	return r.db.WithContext(ctx).
		Model(&entity.CallParticipant{}).
		Where("call_id = ? AND user_id = ? AND left_at IS NULL", callId, userId).
		Update("left_at", now).Error
}
