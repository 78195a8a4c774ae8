package account

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UID          string    `gorm:"type:char(36);uniqueIndex;not null" json:"uid"`
	Username     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Role         Role      `gorm:"type:varchar(16);not null" json:"role"`
	Status       Status    `gorm:"type:varchar(16);not null" json:"status"`
	PinCode      *string   `gorm:"type:varchar(6)" json:"-"`
	FullName     string    `gorm:"type:varchar(128)" json:"full_name,omitempty"`
	Phone        string    `gorm:"type:varchar(32)" json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "user_credentials" }

type Settings struct {
	ID                     uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID                 uint64    `gorm:"not null;uniqueIndex" json:"-"`
	PushNotifications      bool      `gorm:"not null" json:"push_notifications"`
	NotificationPermission string    `gorm:"type:varchar(16);not null" json:"notification_permission"`
	Language               string    `gorm:"type:varchar(8);not null" json:"language"`
	Theme                  string    `gorm:"type:varchar(16);not null" json:"theme"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (Settings) TableName() string { return "user_settings" }

func defaultSettings(userID uint64) Settings {
	return Settings{
		UserID:                 userID,
		NotificationPermission: "default",
		Language:               "en",
		Theme:                  "light",
	}
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	PinCode  string `json:"pin_code,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// SettingsPatch changes only the fields that are set.
type SettingsPatch struct {
	PushNotifications      *bool   `json:"push_notifications,omitempty"`
	NotificationPermission *string `json:"notification_permission,omitempty"`
	Language               *string `json:"language,omitempty"`
	Theme                  *string `json:"theme,omitempty"`
}
