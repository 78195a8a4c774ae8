package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/healthyai/internal/common"
	"github.com/suPer8Hu/healthyai/internal/logger"
)

// Permission is what the client platform reported for notifications.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

type Notification struct {
	ID         string    `json:"id"`
	UserID     uint64    `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	ReminderID uint64    `json:"reminder_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Prefs are the two switches that decide whether a notification is shown.
type Prefs struct {
	Permission Permission
	Push       bool
}

func (p Prefs) Allowed() bool {
	return p.Permission == PermissionGranted && p.Push
}

type PrefsSource interface {
	NotificationPrefs(ctx context.Context, userID uint64) (Prefs, error)
}

// ErrSuppressed is returned by Gate when the user's settings block delivery.
var ErrSuppressed = errors.New("notify: suppressed by user settings")

// Gate forwards to Next only when the user allows notifications. Missing
// settings count as not allowed.
type Gate struct {
	Prefs PrefsSource
	Next  Notifier
}

func (g *Gate) Notify(ctx context.Context, n Notification) error {
	prefs, err := g.Prefs.NotificationPrefs(ctx, n.UserID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("notify: load prefs: %w", err)
	}
	if !prefs.Allowed() {
		return ErrSuppressed
	}
	return g.Next.Notify(ctx, n)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	logger.L.Info("notification", "id", n.ID, "user_id", n.UserID, "title", n.Title, "body", n.Body)
	return nil
}
