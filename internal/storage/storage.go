// Package storage defines the persistence interface and its implementations.
// Every cross-loop coordination primitive (batch pop, due pop, dedup record)
// is atomic at the store level, so several process instances can safely share
// one database.
package storage

import (
	"context"
	"time"

	"github.com/AI-Stratov/yadi-lp-bot/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	// Discovery task FIFO.
	PushTasks(ctx context.Context, tasks []model.DiscoveryTask) error
	PopTasks(ctx context.Context, limit int) ([]model.DiscoveryTask, error)
	QueueLen(ctx context.Context) (int, error)

	// Per-user schedule of pending deliveries, ordered by scheduled time.
	SaveDelivery(ctx context.Context, d *model.ScheduledDelivery) error
	PopDue(ctx context.Context, before time.Time, limit int) ([]model.ScheduledDelivery, error)
	ScheduledTotal(ctx context.Context) (int, error)

	// Per-user dedup keys. RecordDedupKey returns true when the key was not
	// yet recorded (and records it); false means a duplicate.
	RecordDedupKey(ctx context.Context, userID int64, key string, now time.Time) (bool, error)

	// Terminal delivery outcomes, retained for a bounded window.
	SetDeliveryStatus(ctx context.Context, rec model.StatusRecord) error
	DeliveryStatus(ctx context.Context, deliveryID string) (*model.StatusRecord, error)

	// Per-root crawl checkpoint.
	Checkpoint(ctx context.Context, root string) (*time.Time, error)
	SetCheckpoint(ctx context.Context, root string, t time.Time) error

	// Short-TTL per-group file counts for statistics.
	SetGroupCounts(ctx context.Context, root string, gc model.GroupCounts, ttl time.Duration) error
	GroupCounts(ctx context.Context, root string) (*model.GroupCounts, error)

	// User directory. The notification core only reads; writes exist for
	// the profile collaborator and tests.
	ListUsers(ctx context.Context) ([]model.User, error)
	UpsertUser(ctx context.Context, u *model.User) error

	// PruneExpired drops dedup keys and status records past retention.
	PruneExpired(ctx context.Context, now time.Time) error

	Close() error
}
