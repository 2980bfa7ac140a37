package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mbeoliero/parley/internal/entity"
)

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create creates a conversation with its participants in one transaction
func (r *ConversationRepo) Create(ctx context.Context, conv *entity.Conversation, participants []*entity.Participant) error {
	if conv.CreatedAt == 0 {
		conv.CreatedAt = entity.NowUnixMilli()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, p := range participants {
			p.ConversationId = conv.Id
			if p.JoinedAt == 0 {
				p.JoinedAt = conv.CreatedAt
			}
		}
		if len(participants) == 0 {
			return nil
		}
		return tx.Create(&participants).Error
	})
	return translate(err)
}

// GetById gets conversation by Id
func (r *ConversationRepo) GetById(ctx context.Context, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &conv, nil
}

// GetByIds gets conversations by Ids, newest first
func (r *ConversationRepo) GetByIds(ctx context.Context, ids []string) ([]*entity.Conversation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at DESC").Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// GetByPairKey gets the non-group conversation of a user pair
func (r *ConversationRepo) GetByPairKey(ctx context.Context, pairKey string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&conv).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &conv, nil
}

// GetParticipant gets a participant row
func (r *ConversationRepo) GetParticipant(ctx context.Context, conversationId, userId string) (*entity.Participant, error) {
	var p entity.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		First(&p).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &p, nil
}

// ListParticipants gets the participants of the given conversations ordered by join time
func (r *ConversationRepo) ListParticipants(ctx context.Context, conversationIds []string) ([]*entity.Participant, error) {
	if len(conversationIds) == 0 {
		return nil, nil
	}
	var participants []*entity.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id IN ?", conversationIds).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

// ListConversationIds gets the ids of every conversation the user participates in
func (r *ConversationRepo) ListConversationIds(ctx context.Context, userId string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.Participant{}).
		Where("user_id = ?", userId).
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
