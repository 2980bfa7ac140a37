package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/parley/internal/entity"
)

// ContactRepo is the repository for contact operations
type ContactRepo struct {
	db *gorm.DB
}

// NewContactRepo creates a new ContactRepo
func NewContactRepo(db *gorm.DB) *ContactRepo {
	return &ContactRepo{db: db}
}

// Create creates one contact
func (r *ContactRepo) Create(ctx context.Context, contact *entity.Contact) error {
	if contact.CreatedAt == 0 {
		contact.CreatedAt = entity.NowUnixMilli()
	}
	return translate(r.db.WithContext(ctx).Create(contact).Error)
}

// CreateIgnoreDuplicates bulk inserts contacts, leaving existing pairs untouched
func (r *ContactRepo) CreateIgnoreDuplicates(ctx context.Context, contacts []*entity.Contact) (int64, error) {
	if len(contacts) == 0 {
		return 0, nil
	}
	now := entity.NowUnixMilli()
	for _, c := range contacts {
		if c.CreatedAt == 0 {
			c.CreatedAt = now
		}
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "friend_id"}},
			DoNothing: true,
		}).
		Create(&contacts)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ListOwnersHavingFriend gets which owners already hold friendId as a contact
func (r *ContactRepo) ListOwnersHavingFriend(ctx context.Context, ownerIds []string, friendId string) ([]string, error) {
	if len(ownerIds) == 0 {
		return nil, nil
	}
	var owners []string
	err := r.db.WithContext(ctx).
		Model(&entity.Contact{}).
		Where("owner_id IN ? AND friend_id = ?", ownerIds, friendId).
		Pluck("owner_id", &owners).Error
	if err != nil {
		return nil, err
	}
	return owners, nil
}

// Exists checks if owner has friend as a contact
func (r *ContactRepo) Exists(ctx context.Context, ownerId, friendId string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Contact{}).
		Where("owner_id = ? AND friend_id = ?", ownerId, friendId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByOwner gets every contact of owner, newest first
func (r *ContactRepo) ListByOwner(ctx context.Context, ownerId string) ([]*entity.Contact, error) {
	var contacts []*entity.Contact
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerId).
		Order("created_at DESC").
		Find(&contacts).Error
	if err != nil {
		return nil, err
	}
	return contacts, nil
}
