package reminder

import "time"

type RepeatType string

const (
	RepeatDaily  RepeatType = "daily"
	RepeatWeekly RepeatType = "weekly"
	RepeatOnce   RepeatType = "once"
)

func (t RepeatType) Valid() bool {
	switch t {
	case RepeatDaily, RepeatWeekly, RepeatOnce:
		return true
	}
	return false
}

// Reminder is a scheduled medicine notification. Weekday uses time.Weekday
// numbering (Sunday=0) and is set only for weekly reminders. FireCount is
// bumped on every fire and guards the conditional update.
type Reminder struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           uint64     `gorm:"not null;index:idx_reminder_user_active,priority:1" json:"user_id"`
	UserEmail        string     `gorm:"type:varchar(255)" json:"user_email"`
	MedicineName     string     `gorm:"type:varchar(255);not null" json:"medicine_name"`
	Time             string     `gorm:"type:varchar(5);not null" json:"time"`
	RepeatType       RepeatType `gorm:"type:varchar(16);not null" json:"repeat_type"`
	Weekday          *int       `json:"weekday,omitempty"`
	StartDate        *string    `gorm:"type:varchar(10)" json:"start_date,omitempty"`
	EndDate          *string    `gorm:"type:varchar(10)" json:"end_date,omitempty"`
	Notes            string     `gorm:"type:text" json:"notes,omitempty"`
	IsActive         bool       `gorm:"not null;index:idx_reminder_user_active,priority:2" json:"is_active"`
	LastSent         *time.Time `json:"last_sent,omitempty"`
	NextReminderTime *time.Time `json:"next_reminder_time,omitempty"`
	FireCount        int64      `gorm:"not null;default:0" json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Reminder) TableName() string { return "medicine_reminders" }

type CreateInput struct {
	MedicineName string     `json:"medicine_name"`
	Time         string     `json:"time"`
	RepeatType   RepeatType `json:"repeat_type"`
	Weekday      *int       `json:"weekday,omitempty"`
	StartDate    *string    `json:"start_date,omitempty"`
	EndDate      *string    `json:"end_date,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}
