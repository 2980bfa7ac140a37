package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/parley/internal/entity"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create creates a new message
func (r *MessageRepo) Create(ctx context.Context, msg *entity.Message) error {
	if msg.CreatedAt == 0 {
		msg.CreatedAt = entity.NowUnixMilli()
	}
	msg.UpdatedAt = msg.CreatedAt
	return translate(r.db.WithContext(ctx).Create(msg).Error)
}

// GetById gets message by Id
func (r *MessageRepo) GetById(ctx context.Context, id string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &msg, nil
}

// GetForParticipant gets a message joined with the caller's participant row
func (r *MessageRepo) GetForParticipant(ctx context.Context, userId, messageId string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).
		Table("messages AS m").
		Select("m.*").
		Joins("JOIN participants p ON p.conversation_id = m.conversation_id AND p.user_id = ?", userId).
		Where("m.id = ?", messageId).
		Take(&msg).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &msg, nil
}

// ListForViewer gets a conversation's messages oldest first with the viewer's deletion flag
func (r *MessageRepo) ListForViewer(ctx context.Context, viewerId, conversationId string) ([]*entity.ViewerMessage, error) {
	var messages []*entity.ViewerMessage
	err := r.db.WithContext(ctx).
		Table("messages AS m").
		Select("m.*, EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id = ?) AS deleted_for_me", viewerId).
		Where("m.conversation_id = ?", conversationId).
		Order("m.created_at ASC, m.id ASC").
		Scan(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ListUnreadIds gets ids of other-authored messages the reader has no receipt for
func (r *MessageRepo) ListUnreadIds(ctx context.Context, readerId, conversationId string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Table("messages AS m").
		Where("m.conversation_id = ? AND m.sender_id <> ?", conversationId, readerId).
		Where("NOT EXISTS (SELECT 1 FROM message_receipts rc WHERE rc.message_id = m.id AND rc.user_id = ?)", readerId).
		Order("m.created_at ASC").
		Pluck("m.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateReceipts inserts receipts and skips the ones that already exist
func (r *MessageRepo) CreateReceipts(ctx context.Context, receipts []*entity.MessageReceipt) (int64, error) {
	if len(receipts) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipts)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// CountUnread counts unread messages per conversation at query time
func (r *MessageRepo) CountUnread(ctx context.Context, readerId string, conversationIds []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(conversationIds))
	if len(conversationIds) == 0 {
		return counts, nil
	}

	var rows []entity.UnreadCount
	err := r.db.WithContext(ctx).
		Table("messages AS m").
		Select("m.conversation_id AS conversation_id, COUNT(*) AS unread_count").
		Where("m.conversation_id IN ? AND m.sender_id <> ?", conversationIds, readerId).
		Where("NOT EXISTS (SELECT 1 FROM message_receipts rc WHERE rc.message_id = m.id AND rc.user_id = ?)", readerId).
		Group("m.conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.ConversationId] = row.UnreadCount
	}
	return counts, nil
}

// MarkDeletedForAll conditionally rewrites the message into its deleted form
func (r *MessageRepo) MarkDeletedForAll(ctx context.Context, senderId, messageId string, now int64) (bool, error) {
	deleted := entity.Message{}
	deleted.MarkDeletedForAll(now)

	res := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("id = ? AND sender_id = ? AND deleted_for_all = ?", messageId, senderId, false).
		Select("deleted_for_all", "type", "content", "attachment", "call_meta", "updated_at").
		Updates(&deleted)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertDeletion records a delete-for-me, doing nothing if it already exists
func (r *MessageRepo) UpsertDeletion(ctx context.Context, deletion *entity.MessageDeletion) error {
	if deletion.CreatedAt == 0 {
		deletion.CreatedAt = entity.NowUnixMilli()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(deletion).Error
}

// GetCallAnchor gets the SYSTEM message mirroring a call
func (r *MessageRepo) GetCallAnchor(ctx context.Context, callId string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).
		Where("call_id = ? AND type = ?", callId, entity.MessageTypeSystem).
		First(&msg).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &msg, nil
}

// UpdateCallAnchor rewrites the anchor content and call metadata in place
func (r *MessageRepo) UpdateCallAnchor(ctx context.Context, messageId, content string, meta *entity.CallMeta, now int64) error {
	return r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("id = ? AND deleted_for_all = ?", messageId, false).
		Select("content", "call_meta", "updated_at").
		Updates(&entity.Message{Content: content, CallMeta: meta, UpdatedAt: now}).Error
}
