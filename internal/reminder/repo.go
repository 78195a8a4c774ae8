package reminder

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, rem *Reminder) error {
	return r.db.WithContext(ctx).Create(rem).Error
}

func (r *Repo) Get(ctx context.Context, userID, id uint64) (*Reminder, error) {
	var rem Reminder
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&rem).Error; err != nil {
		return nil, err
	}
	return &rem, nil
}

// ListActive returns the user's active reminders ordered by clock time.
func (r *Repo) ListActive(ctx context.Context, userID uint64) ([]Reminder, error) {
	var out []Reminder
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("time ASC").
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveUserIDs lists every user that owns at least one active reminder.
func (r *Repo) ActiveUserIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	if err := r.db.WithContext(ctx).
		Model(&Reminder{}).
		Where("is_active = ?", true).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Repo) Deactivate(ctx context.Context, userID, id uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Reminder{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// ClaimFire records a fire at now, but only if no one else fired rem since
// it was read (fire_count unchanged). A once reminder is deactivated in the
// same update. won is false when the row was already claimed.
func (r *Repo) ClaimFire(ctx context.Context, rem *Reminder, now time.Time, next *time.Time) (won bool, err error) {
	updates := map[string]any{
		"last_sent":  now,
		"fire_count": gorm.Expr("fire_count + 1"),
	}
	if rem.RepeatType == RepeatOnce {
		updates["is_active"] = false
	} else {
		updates["next_reminder_time"] = next
	}

	res := r.db.WithContext(ctx).
		Model(&Reminder{}).
		Where("id = ? AND is_active = ? AND fire_count = ?", rem.ID, true, rem.FireCount).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
