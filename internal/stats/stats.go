// Package stats builds a read-only observability snapshot of the pipeline.
package stats

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/AI-Stratov/yadi-lp-bot/internal/storage"
)

// Snapshot is a point-in-time view of users, queue and disk state.
type Snapshot struct {
	UsersTotal   int
	UsersEnabled int
	ByCourse     map[string]int
	ByGroup      map[string]int
	TopExcluded  map[string]int

	QueueLen       int
	ScheduledTotal int
	LastCheckpoint *time.Time

	DiskGroups     map[string]int
	DiskCommon     int
	DiskComputedAt *time.Time
}

// Service aggregates statistics from the shared store.
type Service struct {
	store storage.Storage
	root  string
	log   *slog.Logger
}

// New creates a stats Service for the watched root.
func New(store storage.Storage, root string, log *slog.Logger) *Service {
	return &Service{store: store, root: root, log: log}
}

// Build assembles a snapshot. Store hiccups on individual metrics degrade
// to zero values so the snapshot is always available.
func (s *Service) Build(ctx context.Context) (*Snapshot, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		UsersTotal:  len(users),
		ByCourse:    map[string]int{},
		ByGroup:     map[string]int{},
		TopExcluded: map[string]int{},
	}

	excluded := map[string]int{}
	for i := range users {
		u := &users[i]
		if u.NotificationsEnabled {
			snap.UsersEnabled++
		}
		if u.Course != "" {
			snap.ByCourse[u.Course]++
		}
		if u.Group != "" {
			snap.ByGroup[u.Group]++
		}
		for subj := range u.ExcludedSubjects {
			excluded[subj]++
		}
	}
	snap.TopExcluded = topN(excluded, 10)

	if n, err := s.store.QueueLen(ctx); err != nil {
		s.log.Error("queue length", "error", err)
	} else {
		snap.QueueLen = n
	}
	if n, err := s.store.ScheduledTotal(ctx); err != nil {
		s.log.Error("scheduled total", "error", err)
	} else {
		snap.ScheduledTotal = n
	}
	if cp, err := s.store.Checkpoint(ctx, s.root); err != nil {
		s.log.Error("checkpoint", "error", err)
	} else {
		snap.LastCheckpoint = cp
	}
	if gc, err := s.store.GroupCounts(ctx, s.root); err != nil {
		s.log.Error("group counts", "error", err)
	} else if gc != nil {
		snap.DiskGroups = gc.Groups
		snap.DiskCommon = gc.Common
		computedAt := gc.ComputedAt
		snap.DiskComputedAt = &computedAt
	}

	return snap, nil
}

func topN(counts map[string]int, n int) map[string]int {
	type kv struct {
		k string
		v int
	}
	sorted := make([]kv, 0, len(counts))
	for k, v := range counts {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].v != sorted[j].v {
			return sorted[i].v > sorted[j].v
		}
		return sorted[i].k < sorted[j].k
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	top := make(map[string]int, len(sorted))
	for _, e := range sorted {
		top[e.k] = e.v
	}
	return top
}
