package account

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateUser(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) CountByField(ctx context.Context, field, value string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&User{}).Where(field+" = ?", value).Count(&n).Error
	return n, err
}

// FindByLogin matches either the username or the email.
func (r *Repo) FindByLogin(ctx context.Context, login string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, login).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindByEmailAndUsername(ctx context.Context, email, username string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).
		Where("email = ? AND username = ?", email, username).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) GetUser(ctx context.Context, id uint64) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) UpdatePasswordHash(ctx context.Context, id uint64, hash string) error {
	return r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("password_hash", hash).Error
}

// WithTx runs fn against a repo bound to one transaction.
func (r *Repo) WithTx(ctx context.Context, fn func(tx *Repo) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{db: tx})
	})
}

func (r *Repo) GetSettings(ctx context.Context, userID uint64) (*Settings, error) {
	var s Settings
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSettings keys on user_id; the row id of s is ignored.
func (r *Repo) UpsertSettings(ctx context.Context, s *Settings) error {
	row := *s
	row.ID = 0
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"push_notifications", "notification_permission", "language", "theme", "updated_at"}),
		}).
		Create(&row).Error
}
