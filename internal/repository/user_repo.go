package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mbeoliero/parley/internal/entity"
)

// UserRepo is the repository for user operations
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo creates a new UserRepo
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create creates a new user
func (r *UserRepo) Create(ctx context.Context, user *entity.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

// GetById gets user by Id
func (r *UserRepo) GetById(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &user, nil
}

// GetByIds gets users by Ids
func (r *UserRepo) GetByIds(ctx context.Context, ids []string) ([]*entity.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []*entity.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UpdatePresence writes presence only when version is newer, so a late write never overwrites a newer state
func (r *UserRepo) UpdatePresence(ctx context.Context, userId string, online bool, lastSeenAt *int64, version int64) error {
	return r.db.WithContext(ctx).
		Model(&entity.User{}).
		Where("id = ? AND presence_version < ?", userId, version).
		Updates(map[string]interface{}{
			"is_online":        online,
			"last_seen_at":     lastSeenAt,
			"presence_version": version,
		}).Error
}
