// Package matcher drains discovery tasks and fans them out into per-user
// scheduled deliveries according to each user's preferences.
package matcher

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Stratov/yadi-lp-bot/internal/catalog"
	"github.com/AI-Stratov/yadi-lp-bot/internal/model"
	"github.com/AI-Stratov/yadi-lp-bot/internal/storage"
)

const defaultBatchSize = 100

// UserDirectory enumerates users with their notification preferences. The
// matcher only ever reads from it.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]model.User, error)
}

// Matcher consumes the discovery queue on an interval.
type Matcher struct {
	store     storage.Storage
	users     UserDirectory
	log       *slog.Logger
	tick      time.Duration
	batchSize int
	running   atomic.Bool
}

// New creates a Matcher processing the queue every tick.
func New(store storage.Storage, users UserDirectory, log *slog.Logger, tick time.Duration) *Matcher {
	return &Matcher{
		store:     store,
		users:     users,
		log:       log,
		tick:      tick,
		batchSize: defaultBatchSize,
	}
}

// Run starts the queue-processing loop, blocking until ctx is cancelled.
func (m *Matcher) Run(ctx context.Context) {
	m.ProcessQueue(ctx)

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProcessQueue(ctx)
		}
	}
}

// ProcessQueue drains one batch of discovery tasks and returns the number of
// per-user deliveries created. Concurrent invocations are rejected.
func (m *Matcher) ProcessQueue(ctx context.Context) int {
	if !m.running.CompareAndSwap(false, true) {
		m.log.Warn("queue processing already running, skipping")
		return 0
	}
	defer m.running.Store(false)

	tasks, err := m.store.PopTasks(ctx, m.batchSize)
	if err != nil {
		m.log.Error("pop tasks", "error", err)
		return 0
	}
	if len(tasks) == 0 {
		return 0
	}

	users, err := m.users.ListUsers(ctx)
	if err != nil {
		m.log.Error("list users", "error", err)
		return 0
	}

	created := 0
	for i := range tasks {
		task := &tasks[i]
		for j := range users {
			user := &users[j]
			if !ShouldNotify(user, task) {
				continue
			}

			now := time.Now()
			fresh, err := m.store.RecordDedupKey(ctx, user.TgID, task.DedupKey(), now)
			if err != nil {
				m.log.Error("record dedup key", "user_id", user.TgID, "error", err)
				continue
			}
			if !fresh {
				continue
			}

			d := model.ScheduledDelivery{
				ID:          uuid.NewString(),
				UserID:      user.TgID,
				Task:        *task,
				CreatedAt:   now,
				ScheduledAt: SendTime(user, now),
				Status:      model.StatusPending,
			}
			if err := m.store.SaveDelivery(ctx, &d); err != nil {
				m.log.Error("save delivery", "user_id", user.TgID, "error", err)
				continue
			}
			created++
		}
	}

	if created > 0 {
		m.log.Info("scheduled deliveries", "count", created, "tasks", len(tasks))
	}
	return created
}

// ShouldNotify applies the matching rules in order, short-circuiting on the
// first failing one. The dedup rule is applied separately by the caller
// because it also marks the key.
func ShouldNotify(u *model.User, task *model.DiscoveryTask) bool {
	if !u.NotificationsEnabled {
		return false
	}
	if u.Course == "" {
		return false
	}
	if !matchesGroup(u, task) {
		return false
	}
	if !matchesCourse(u, task) {
		return false
	}
	if _, excluded := u.ExcludedSubjects[task.SubjectCode]; excluded {
		return false
	}
	return true
}

// matchesGroup enforces the group restriction:
// an unresolved group-shaped segment rejects outright (never guess);
// no group at all means course-wide material and passes;
// a resolved group requires exact equality with the user's group.
func matchesGroup(u *model.User, task *model.DiscoveryTask) bool {
	if task.GroupRaw != "" && task.Group == "" {
		return false
	}
	if task.Group == "" {
		return true
	}
	return u.Group != "" && u.Group == task.Group
}

// matchesCourse requires a resolved subject that is registered for the
// user's course. A course with no registered subjects rejects everything
// rather than risking misdelivery.
func matchesCourse(u *model.User, task *model.DiscoveryTask) bool {
	if task.SubjectCode == "" {
		return false
	}
	subjects := catalog.SubjectsForCourse(u.Course)
	if len(subjects) == 0 {
		return false
	}
	return slices.Contains(subjects, task.SubjectCode)
}

// SendTime computes when a delivery for this user should go out, relative to
// now. Windows do not span midnight; a start after the end behaves as an
// already-elapsed window today.
func SendTime(u *model.User, now time.Time) time.Time {
	switch u.Mode {
	case model.ModeAtTime:
		if u.SendTime == nil {
			return now
		}
		scheduled := u.SendTime.On(now)
		if !scheduled.After(now) {
			scheduled = scheduled.AddDate(0, 0, 1)
		}
		return scheduled

	case model.ModeInWindow:
		if u.WindowStart == nil || u.WindowEnd == nil {
			return now
		}
		start := u.WindowStart.On(now)
		end := u.WindowEnd.On(now)
		if !now.Before(start) && now.Before(end) {
			return now
		}
		if now.Before(start) {
			return start
		}
		return start.AddDate(0, 0, 1)

	default: // ASAP or unset
		return now
	}
}
