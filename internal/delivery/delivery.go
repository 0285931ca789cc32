// Package delivery dispatches due scheduled deliveries to users.
package delivery

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AI-Stratov/yadi-lp-bot/internal/bot"
	"github.com/AI-Stratov/yadi-lp-bot/internal/model"
	"github.com/AI-Stratov/yadi-lp-bot/internal/storage"
)

const defaultBatchSize = 100

// Sender delivers a rendered notification to a user.
type Sender interface {
	Send(userID int64, text string) error
}

// Loop periodically flushes due deliveries to the sender.
type Loop struct {
	store     storage.Storage
	sender    Sender
	log       *slog.Logger
	tick      time.Duration
	batchSize int
	sendPause time.Duration
	running   atomic.Bool
}

// New creates a delivery Loop flushing every tick.
func New(store storage.Storage, sender Sender, log *slog.Logger, tick time.Duration) *Loop {
	return &Loop{
		store:     store,
		sender:    sender,
		log:       log,
		tick:      tick,
		batchSize: defaultBatchSize,
		// Rate limit: ~20 messages/sec max for Telegram
		sendPause: 50 * time.Millisecond,
	}
}

// Run starts the delivery loop, blocking until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.FlushDue(ctx)

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.FlushDue(ctx)
		}
	}
}

// FlushDue pops every delivery scheduled at or before now and dispatches it.
// A failed send is terminal: the entry leaves the schedule either way and
// only the status record tells the outcome apart. Returns sent and failed
// counts.
func (l *Loop) FlushDue(ctx context.Context) (int, int) {
	if !l.running.CompareAndSwap(false, true) {
		l.log.Warn("delivery flush already running, skipping")
		return 0, 0
	}
	defer l.running.Store(false)

	now := time.Now()
	due, err := l.store.PopDue(ctx, now, l.batchSize)
	if err != nil {
		l.log.Error("pop due deliveries", "error", err)
		return 0, 0
	}

	sent, failed := 0, 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		d := &due[i]

		rec := model.StatusRecord{
			DeliveryID: d.ID,
			UserID:     d.UserID,
			UpdatedAt:  time.Now(),
		}
		if err := l.sender.Send(d.UserID, bot.FormatNotification(&d.Task)); err != nil {
			l.log.Error("send notification", "user_id", d.UserID, "delivery_id", d.ID, "error", err)
			rec.Status = model.StatusFailed
			rec.Error = err.Error()
			failed++
		} else {
			rec.Status = model.StatusSent
			sent++
		}

		if err := l.store.SetDeliveryStatus(ctx, rec); err != nil {
			l.log.Error("record delivery status", "delivery_id", d.ID, "error", err)
		}

		time.Sleep(l.sendPause)
	}

	if err := l.store.PruneExpired(ctx, now); err != nil {
		l.log.Error("prune expired records", "error", err)
	}

	if sent > 0 || failed > 0 {
		l.log.Info("flushed deliveries", "sent", sent, "failed", failed)
	}
	return sent, failed
}
