package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/healthyai/internal/common"
	"gorm.io/gorm"
)

type Service struct {
	repo *Repo
	loc  *time.Location
	now  func() time.Time
}

func NewService(repo *Repo, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, loc: loc, now: time.Now}
}

// Create validates in and stores an active reminder with its first
// next_reminder_time.
func (s *Service) Create(ctx context.Context, userID uint64, email string, in CreateInput) (*Reminder, error) {
	if userID == 0 {
		return nil, common.ErrUnauthenticated
	}
	rem, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	rem.UserID = userID
	rem.UserEmail = email
	rem.IsActive = true

	next, err := initialNext(rem, s.now().In(s.loc))
	if err != nil {
		return nil, err
	}
	rem.NextReminderTime = next

	if err := s.repo.Create(ctx, rem); err != nil {
		return nil, fmt.Errorf("%w: create reminder: %v", common.ErrTransientIO, err)
	}
	return rem, nil
}

func (s *Service) validate(in CreateInput) (*Reminder, error) {
	name := strings.TrimSpace(in.MedicineName)
	if name == "" {
		return nil, fmt.Errorf("%w: medicine_name is required", common.ErrValidation)
	}
	if _, _, err := ParseClock(in.Time); err != nil {
		return nil, err
	}
	repeat := RepeatType(strings.ToLower(strings.TrimSpace(string(in.RepeatType))))
	if repeat == "" {
		repeat = RepeatDaily
	}
	if !repeat.Valid() {
		return nil, fmt.Errorf("%w: repeat_type must be daily, weekly or once", common.ErrValidation)
	}

	rem := &Reminder{
		MedicineName: name,
		Time:         strings.TrimSpace(in.Time),
		RepeatType:   repeat,
		Notes:        strings.TrimSpace(in.Notes),
	}

	if repeat == RepeatWeekly {
		if in.Weekday == nil {
			return nil, fmt.Errorf("%w: weekly reminders need a weekday", common.ErrValidation)
		}
		if *in.Weekday < 0 || *in.Weekday > 6 {
			return nil, fmt.Errorf("%w: weekday must be 0-6 (Sunday=0)", common.ErrValidation)
		}
		wd := *in.Weekday
		rem.Weekday = &wd
	}

	var start, end time.Time
	if d := trimmed(in.StartDate); d != "" {
		t, err := parseDate(d, s.loc)
		if err != nil {
			return nil, err
		}
		start = t
		rem.StartDate = &d
	}
	if d := trimmed(in.EndDate); d != "" {
		t, err := parseDate(d, s.loc)
		if err != nil {
			return nil, err
		}
		end = t
		rem.EndDate = &d
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, fmt.Errorf("%w: end_date is before start_date", common.ErrValidation)
	}
	return rem, nil
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// List returns the user's active reminders.
func (s *Service) List(ctx context.Context, userID uint64) ([]Reminder, error) {
	if userID == 0 {
		return nil, common.ErrUnauthenticated
	}
	out, err := s.repo.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list reminders: %v", common.ErrTransientIO, err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, userID, id uint64) (*Reminder, error) {
	rem, err := s.repo.Get(ctx, userID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get reminder: %v", common.ErrTransientIO, err)
	}
	return rem, nil
}

// Deactivate is what deleting a reminder does; the row is kept.
func (s *Service) Deactivate(ctx context.Context, userID, id uint64) error {
	if userID == 0 {
		return common.ErrUnauthenticated
	}
	n, err := s.repo.Deactivate(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("%w: deactivate reminder: %v", common.ErrTransientIO, err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
