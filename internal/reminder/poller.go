package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/healthyai/internal/logger"
	"github.com/suPer8Hu/healthyai/internal/notify"
)

// Leader reports whether this process may run the current pass.
type Leader interface {
	Acquire(ctx context.Context) (bool, error)
}

type Outcome string

const (
	OutcomeIdle       Outcome = "idle"
	OutcomeFired      Outcome = "fired"
	OutcomeSuppressed Outcome = "suppressed" // fired, but the user's settings blocked the notification
	OutcomeLost       Outcome = "lost"       // fired by someone else first
)

type CheckResult struct {
	ReminderID uint64
	Outcome    Outcome
	Final      State
	Err        error
}

type PassReport struct {
	Users   int
	Results []CheckResult
}

func (r PassReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil && res.Outcome == o {
			n++
		}
	}
	return n
}

func (r PassReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Poller runs the due check. Notifier is expected to be gated on user
// settings; state is persisted whether or not the notification goes out.
type Poller struct {
	Repo     *Repo
	Notifier notify.Notifier
	Leader   Leader
	Interval time.Duration
	Location *time.Location
	Now      func() time.Time
}

func (p *Poller) now() time.Time {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc)
}

// Run checks once immediately, then every Interval until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	p.tick(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if p.Leader != nil {
		ok, err := p.Leader.Acquire(ctx)
		if err != nil {
			logger.L.Warn("reminder: lease check failed, skipping pass", "err", err)
			return
		}
		if !ok {
			logger.L.Debug("reminder: another poller holds the lease")
			return
		}
	}

	start := time.Now()
	rep, err := p.CheckAll(ctx)
	if err != nil {
		logger.L.Error("reminder: pass failed", "err", err)
		return
	}
	logger.L.Info("reminder: pass done",
		"users", rep.Users,
		"checked", len(rep.Results),
		"fired", rep.Count(OutcomeFired),
		"suppressed", rep.Count(OutcomeSuppressed),
		"lost", rep.Count(OutcomeLost),
		"failed", rep.Failed(),
		"cost", time.Since(start),
	)
}

// CheckAll runs CheckUser for every user with an active reminder.
func (p *Poller) CheckAll(ctx context.Context) (PassReport, error) {
	ids, err := p.Repo.ActiveUserIDs(ctx)
	if err != nil {
		return PassReport{}, fmt.Errorf("list users: %w", err)
	}
	rep := PassReport{Users: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		one, err := p.CheckUser(ctx, id)
		if err != nil {
			logger.L.Warn("reminder: user check failed", "user_id", id, "err", err)
			continue
		}
		rep.Results = append(rep.Results, one.Results...)
	}
	return rep, nil
}

// CheckUser evaluates every active reminder of one user at the same instant.
// A failure on one reminder is recorded and the rest still run.
func (p *Poller) CheckUser(ctx context.Context, userID uint64) (PassReport, error) {
	rems, err := p.Repo.ListActive(ctx, userID)
	if err != nil {
		return PassReport{}, fmt.Errorf("list reminders: %w", err)
	}
	now := p.now()
	rep := PassReport{Users: 1, Results: make([]CheckResult, 0, len(rems))}
	for i := range rems {
		res := p.check(ctx, &rems[i], now)
		if res.Err != nil {
			logger.L.Warn("reminder: check failed", "reminder_id", res.ReminderID, "user_id", userID, "err", res.Err)
		}
		rep.Results = append(rep.Results, res)
	}
	return rep, nil
}

func (p *Poller) check(ctx context.Context, r *Reminder, now time.Time) (res CheckResult) {
	res = CheckResult{ReminderID: r.ID, Outcome: OutcomeIdle}
	lc := newLifecycle(r)
	defer func() { res.Final = State(lc.MustState()) }()

	if !IsDue(r, now) {
		return res
	}
	if err := lc.FireCtx(ctx, TriggerWindowOpened); err != nil {
		res.Err = err
		return res
	}

	next, err := advanceAfterFire(r, now)
	if err != nil {
		_ = lc.FireCtx(ctx, TriggerLost)
		res.Err = err
		return res
	}

	won, err := p.Repo.ClaimFire(ctx, r, now, next)
	if err != nil {
		_ = lc.FireCtx(ctx, TriggerLost)
		res.Err = fmt.Errorf("claim: %w", err)
		return res
	}
	if !won {
		_ = lc.FireCtx(ctx, TriggerLost)
		res.Outcome = OutcomeLost
		return res
	}
	if err := lc.FireCtx(ctx, TriggerClaimed); err != nil {
		res.Err = err
		return res
	}

	res.Outcome = OutcomeFired
	if p.Notifier != nil {
		if err := p.Notifier.Notify(ctx, buildNotification(r, now)); err != nil {
			if errors.Is(err, notify.ErrSuppressed) {
				res.Outcome = OutcomeSuppressed
			} else {
				logger.L.Warn("reminder: notify failed", "reminder_id", r.ID, "err", err)
			}
		}
	}

	if err := lc.FireCtx(ctx, TriggerSettled); err != nil {
		res.Err = err
	}
	return res
}

func buildNotification(r *Reminder, now time.Time) notify.Notification {
	body := fmt.Sprintf("Time to take your medicine: %s (%s)", r.MedicineName, r.Time)
	if r.Notes != "" {
		body += "\n" + r.Notes
	}
	return notify.Notification{
		UserID:     r.UserID,
		Email:      r.UserEmail,
		Title:      "Medicine reminder",
		Body:       body,
		ReminderID: r.ID,
		CreatedAt:  now,
	}
}
