package health

import "time"

// Profile is the per-user health profile; one row per user.
type Profile struct {
	ID            uint64        `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID        uint64        `gorm:"not null;uniqueIndex" json:"user_id"`
	Age           int           `gorm:"not null" json:"age"`
	HeightCm      float64       `gorm:"not null" json:"height_cm"`
	WeightKg      float64       `gorm:"not null" json:"weight_kg"`
	ActivityLevel ActivityLevel `gorm:"type:varchar(16);not null" json:"activity_level"`
	Gender        Gender        `gorm:"type:varchar(16);not null" json:"gender"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (Profile) TableName() string { return "health_profiles" }

type ProfileInput struct {
	Age           int           `json:"age"`
	HeightCm      float64       `json:"height_cm"`
	WeightKg      float64       `json:"weight_kg"`
	ActivityLevel ActivityLevel `json:"activity_level"`
	Gender        Gender        `json:"gender"`
}

// Overview is what the profile page shows.
type Overview struct {
	Profile    *Profile   `json:"profile"`
	BMI        BMIResult  `json:"bmi"`
	Suggestion Suggestion `json:"suggestion"`
}
