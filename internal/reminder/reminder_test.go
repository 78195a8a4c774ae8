package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/healthyai/internal/common"
	"github.com/suPer8Hu/healthyai/internal/notify"
	"gorm.io/gorm"
)

// 2025-01-01 is a Wednesday.
func at(hh, mm int) time.Time {
	return time.Date(2025, 1, 1, hh, mm, 0, 0, time.UTC)
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&Reminder{}))
	return db
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func newPoller(t *testing.T, clock *time.Time) (*Poller, *Repo, *recordingNotifier) {
	t.Helper()
	repo := NewRepo(openTestDB(t))
	rec := &recordingNotifier{}
	p := &Poller{
		Repo:     repo,
		Notifier: rec,
		Location: time.UTC,
		Now:      func() time.Time { return *clock },
	}
	return p, repo, rec
}

func seed(t *testing.T, repo *Repo, r Reminder) *Reminder {
	t.Helper()
	if r.UserID == 0 {
		r.UserID = 1
	}
	if r.MedicineName == "" {
		r.MedicineName = "Aspirin"
	}
	r.IsActive = true
	require.NoError(t, repo.Create(context.Background(), &r))
	return &r
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("08:05")
	require.NoError(t, err)
	assert.Equal(t, 8, h)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"8:05", "24:00", "12:60", "ab:cd", "", "12-30"} {
		_, _, err := ParseClock(bad)
		assert.ErrorIs(t, err, common.ErrValidation, bad)
	}
}

func TestIsDue_Window(t *testing.T) {
	r := &Reminder{Time: "08:00", RepeatType: RepeatDaily, IsActive: true}

	assert.True(t, IsDue(r, at(8, 3)))
	assert.True(t, IsDue(r, at(7, 55)))
	assert.True(t, IsDue(r, at(8, 5)))
	assert.False(t, IsDue(r, at(8, 6)))
	assert.False(t, IsDue(r, at(8, 10)))

	sent := at(8, 3)
	r.LastSent = &sent
	assert.False(t, IsDue(r, at(8, 4)), "must not re-fire inside the resend guard")
}

func TestIsDue_WeeklyOnlyOnItsWeekday(t *testing.T) {
	r := &Reminder{Time: "09:00", RepeatType: RepeatWeekly, Weekday: intPtr(int(time.Wednesday)), IsActive: true}
	assert.True(t, IsDue(r, at(9, 2)))

	thursday := at(9, 2).AddDate(0, 0, 1)
	assert.False(t, IsDue(r, thursday))
}

func TestIsDue_DateBounds(t *testing.T) {
	r := &Reminder{Time: "08:00", RepeatType: RepeatDaily, IsActive: true, EndDate: strPtr("2024-12-31")}
	assert.False(t, IsDue(r, at(8, 0)))

	r.EndDate = nil
	r.StartDate = strPtr("2025-01-02")
	assert.False(t, IsDue(r, at(8, 0)))

	r.StartDate = strPtr("2025-01-01")
	assert.True(t, IsDue(r, at(8, 0)))
}

func TestNextOccurrence(t *testing.T) {
	daily := &Reminder{Time: "08:00", RepeatType: RepeatDaily}
	next, err := NextOccurrence(daily, at(8, 3))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC), *next)

	next, err = NextOccurrence(daily, at(7, 56))
	require.NoError(t, err)
	assert.Equal(t, at(8, 0), *next)

	weekly := &Reminder{Time: "09:00", RepeatType: RepeatWeekly, Weekday: intPtr(int(time.Wednesday))}
	next, err = NextOccurrence(weekly, at(9, 10))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC), *next, "same weekday already past rolls a full week")

	weekly.Weekday = intPtr(int(time.Friday))
	next, err = NextOccurrence(weekly, at(9, 10))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC), *next)

	once := &Reminder{Time: "09:00", RepeatType: RepeatOnce}
	next, err = NextOccurrence(once, at(9, 0))
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestPoller_DailyFiresOncePerWindow(t *testing.T) {
	clock := at(8, 3)
	p, repo, rec := newPoller(t, &clock)
	r := seed(t, repo, Reminder{Time: "08:00", RepeatType: RepeatDaily, UserEmail: "a@example.com"})
	ctx := context.Background()

	rep, err := p.CheckUser(ctx, r.UserID)
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, OutcomeFired, rep.Results[0].Outcome)
	assert.Equal(t, StateScheduled, rep.Results[0].Final)
	require.Equal(t, 1, rec.count())
	assert.Contains(t, rec.sent[0].Body, "Aspirin (08:00)")
	assert.Equal(t, "a@example.com", rec.sent[0].Email)

	stored, err := repo.Get(ctx, r.UserID, r.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastSent)
	require.NotNil(t, stored.NextReminderTime)
	assert.True(t, stored.NextReminderTime.Equal(time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)))

	clock = at(8, 4)
	rep, err = p.CheckUser(ctx, r.UserID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, rep.Results[0].Outcome)
	assert.Equal(t, 1, rec.count())
}

func TestPoller_DoesNotFireOutsideWindow(t *testing.T) {
	clock := at(8, 10)
	p, repo, rec := newPoller(t, &clock)
	r := seed(t, repo, Reminder{Time: "08:00", RepeatType: RepeatDaily})

	_, err := p.CheckUser(context.Background(), r.UserID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.count())
}

func TestPoller_OnceIsDeactivatedAfterFiring(t *testing.T) {
	clock := at(12, 0)
	p, repo, rec := newPoller(t, &clock)
	r := seed(t, repo, Reminder{Time: "12:00", RepeatType: RepeatOnce})
	ctx := context.Background()

	rep, err := p.CheckUser(ctx, r.UserID)
	require.NoError(t, err)
	assert.Equal(t, StateDeactivated, rep.Results[0].Final)
	assert.Equal(t, 1, rec.count())

	active, err := repo.ListActive(ctx, r.UserID)
	require.NoError(t, err)
	assert.Empty(t, active)

	stored, err := repo.Get(ctx, r.UserID, r.ID)
	require.NoError(t, err, "once reminders are kept, not deleted")
	assert.False(t, stored.IsActive)

	clock = at(12, 1).Add(10 * time.Minute)
	rep, err = p.CheckUser(ctx, r.UserID)
	require.NoError(t, err)
	assert.Empty(t, rep.Results)
}

func TestClaimFire_OnlyOneWinner(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	r := seed(t, repo, Reminder{Time: "08:00", RepeatType: RepeatDaily})
	ctx := context.Background()

	stale := *r
	next := at(8, 0).AddDate(0, 0, 1)

	won, err := repo.ClaimFire(ctx, r, at(8, 1), &next)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.ClaimFire(ctx, &stale, at(8, 1), &next)
	require.NoError(t, err)
	assert.False(t, won, "a second poller holding the same read must lose")
}

func TestPoller_LostClaimDoesNotNotify(t *testing.T) {
	clock := at(8, 0)
	p, repo, rec := newPoller(t, &clock)
	r := seed(t, repo, Reminder{Time: "08:00", RepeatType: RepeatDaily})
	ctx := context.Background()

	// Another instance fires between our read and our claim.
	stale := *r
	next := at(8, 0).AddDate(0, 0, 1)
	won, err := repo.ClaimFire(ctx, r, at(8, 0), &next)
	require.NoError(t, err)
	require.True(t, won)

	res := p.check(ctx, &stale, clock)
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeLost, res.Outcome)
	assert.Equal(t, StateScheduled, res.Final)
	assert.Equal(t, 0, rec.count())
}

type prefsFunc func(ctx context.Context, userID uint64) (notify.Prefs, error)

func (f prefsFunc) NotificationPrefs(ctx context.Context, userID uint64) (notify.Prefs, error) {
	return f(ctx, userID)
}

func TestPoller_SuppressedStillAdvancesState(t *testing.T) {
	clock := at(8, 0)
	p, repo, rec := newPoller(t, &clock)
	p.Notifier = &notify.Gate{
		Prefs: prefsFunc(func(context.Context, uint64) (notify.Prefs, error) {
			return notify.Prefs{Permission: notify.PermissionGranted, Push: false}, nil
		}),
		Next: rec,
	}
	r := seed(t, repo, Reminder{Time: "08:00", RepeatType: RepeatDaily})
	ctx := context.Background()

	rep, err := p.CheckUser(ctx, r.UserID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, rep.Results[0].Outcome)
	assert.Equal(t, 0, rec.count())

	stored, err := repo.Get(ctx, r.UserID, r.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastSent)
}

func TestPoller_IsolatesFailures(t *testing.T) {
	clock := at(8, 0)
	p, repo, rec := newPoller(t, &clock)
	seed(t, repo, Reminder{Time: "08:00", RepeatType: RepeatType("monthly")})
	good := seed(t, repo, Reminder{Time: "08:00", RepeatType: RepeatDaily, MedicineName: "Vitamin D"})

	rep, err := p.CheckUser(context.Background(), good.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed())
	assert.Equal(t, 1, rep.Count(OutcomeFired))
	require.Equal(t, 1, rec.count())
	assert.Contains(t, rec.sent[0].Body, "Vitamin D")
}

func TestPoller_NotifyErrorDoesNotFailCheck(t *testing.T) {
	clock := at(8, 0)
	p, repo, rec := newPoller(t, &clock)
	rec.err = errors.New("smtp down")
	r := seed(t, repo, Reminder{Time: "08:00", RepeatType: RepeatDaily})

	rep, err := p.CheckUser(context.Background(), r.UserID)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Failed())
	assert.Equal(t, OutcomeFired, rep.Results[0].Outcome)
}

type fixedLeader bool

func (l fixedLeader) Acquire(context.Context) (bool, error) { return bool(l), nil }

func TestPoller_RunChecksImmediately(t *testing.T) {
	clock := at(8, 0)
	p, repo, rec := newPoller(t, &clock)
	p.Interval = time.Hour
	seed(t, repo, Reminder{Time: "08:00", RepeatType: RepeatDaily})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestPoller_SkipsPassWithoutLease(t *testing.T) {
	clock := at(8, 0)
	p, repo, rec := newPoller(t, &clock)
	p.Leader = fixedLeader(false)
	seed(t, repo, Reminder{Time: "08:00", RepeatType: RepeatDaily})

	p.tick(context.Background())
	assert.Equal(t, 0, rec.count())

	p.Leader = fixedLeader(true)
	p.tick(context.Background())
	assert.Equal(t, 1, rec.count())
}

func TestService_CreateValidates(t *testing.T) {
	svc := NewService(NewRepo(openTestDB(t)), time.UTC)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, "", CreateInput{MedicineName: "A", Time: "08:00", RepeatType: RepeatWeekly})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Create(ctx, 1, "", CreateInput{MedicineName: "A", Time: "8am"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Create(ctx, 1, "", CreateInput{MedicineName: "A", Time: "08:00", StartDate: strPtr("2025-02-01"), EndDate: strPtr("2025-01-01")})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Create(ctx, 0, "", CreateInput{MedicineName: "A", Time: "08:00"})
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestService_CreateComputesInitialNext(t *testing.T) {
	svc := NewService(NewRepo(openTestDB(t)), time.UTC)
	svc.now = func() time.Time { return at(9, 0) }
	ctx := context.Background()

	later, err := svc.Create(ctx, 1, "a@example.com", CreateInput{MedicineName: "A", Time: "10:00"})
	require.NoError(t, err)
	assert.True(t, later.IsActive)
	assert.Equal(t, RepeatDaily, later.RepeatType)
	assert.True(t, later.NextReminderTime.Equal(at(10, 0)))

	earlier, err := svc.Create(ctx, 1, "a@example.com", CreateInput{MedicineName: "B", Time: "08:00", RepeatType: RepeatOnce})
	require.NoError(t, err)
	assert.True(t, earlier.NextReminderTime.Equal(at(8, 0).AddDate(0, 0, 1)))
}

func TestService_DeactivateHidesReminder(t *testing.T) {
	svc := NewService(NewRepo(openTestDB(t)), time.UTC)
	ctx := context.Background()

	r, err := svc.Create(ctx, 1, "", CreateInput{MedicineName: "A", Time: "08:00"})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, 1, r.ID))
	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, svc.Deactivate(ctx, 2, r.ID), common.ErrNotFound)
	_, err = svc.Get(ctx, 1, 999)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestService_CreatedJustAfterClockStillFiresToday(t *testing.T) {
	clock := at(8, 2)
	p, repo, rec := newPoller(t, &clock)
	svc := NewService(repo, time.UTC)
	svc.now = func() time.Time { return clock }
	ctx := context.Background()

	users := map[uint64]RepeatType{1: RepeatDaily, 2: RepeatOnce}
	for uid, repeat := range users {
		r, err := svc.Create(ctx, uid, "", CreateInput{MedicineName: "A", Time: "08:00", RepeatType: repeat})
		require.NoError(t, err)
		assert.True(t, r.NextReminderTime.Equal(at(8, 0)), repeat)
	}

	clock = at(8, 3)
	for uid, repeat := range users {
		rep, err := p.CheckUser(ctx, uid)
		require.NoError(t, err)
		require.Len(t, rep.Results, 1)
		assert.Equal(t, OutcomeFired, rep.Results[0].Outcome, repeat)
	}
	assert.Equal(t, 2, rec.count())
}

func TestService_CreatedAfterWindowWaitsForTomorrow(t *testing.T) {
	svc := NewService(NewRepo(openTestDB(t)), time.UTC)
	svc.now = func() time.Time { return at(8, 6) }

	r, err := svc.Create(context.Background(), 1, "", CreateInput{MedicineName: "A", Time: "08:00"})
	require.NoError(t, err)
	assert.True(t, r.NextReminderTime.Equal(at(8, 0).AddDate(0, 0, 1)))
}

func TestPoller_EarlyFireDoesNotRepeatLaterInWindow(t *testing.T) {
	clock := at(7, 55)
	p, repo, rec := newPoller(t, &clock)
	r := seed(t, repo, Reminder{Time: "08:00", RepeatType: RepeatDaily})
	ctx := context.Background()

	_, err := p.CheckUser(ctx, r.UserID)
	require.NoError(t, err)
	require.Equal(t, 1, rec.count())

	stored, err := repo.Get(ctx, r.UserID, r.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextReminderTime.Equal(at(8, 0).AddDate(0, 0, 1)))

	for _, mm := range []int{1, 2, 5} {
		clock = at(8, mm)
		_, err = p.CheckUser(ctx, r.UserID)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, rec.count())
}
