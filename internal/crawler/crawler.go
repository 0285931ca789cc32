// Package crawler walks the watched disk on an interval and turns newly
// appeared files into discovery tasks.
package crawler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AI-Stratov/yadi-lp-bot/internal/disk"
	"github.com/AI-Stratov/yadi-lp-bot/internal/model"
	"github.com/AI-Stratov/yadi-lp-bot/internal/pathmeta"
	"github.com/AI-Stratov/yadi-lp-bot/internal/storage"
)

// Lister provides directory listings of the watched root.
type Lister interface {
	FetchDirectory(ctx context.Context, path string) ([]disk.Entry, error)
	Root() string
}

// Crawler periodically scans the disk for new files.
type Crawler struct {
	store    storage.Storage
	disk     Lister
	log      *slog.Logger
	tick     time.Duration
	cacheTTL time.Duration
	running  atomic.Bool
}

// New creates a Crawler checking every tick.
func New(store storage.Storage, lister Lister, log *slog.Logger, tick time.Duration) *Crawler {
	return &Crawler{
		store:    store,
		disk:     lister,
		log:      log,
		tick:     tick,
		cacheTTL: 2 * tick,
	}
}

// Run starts the crawl loop, blocking until ctx is cancelled.
func (c *Crawler) Run(ctx context.Context) {
	c.RunPass(ctx)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunPass(ctx)
		}
	}
}

// RunPass executes one crawl pass and returns the number of newly discovered
// files. Concurrent invocations are rejected; passes never overlap.
func (c *Crawler) RunPass(ctx context.Context) int {
	if !c.running.CompareAndSwap(false, true) {
		c.log.Warn("crawl pass already running, skipping")
		return 0
	}
	defer c.running.Store(false)

	passStart := time.Now()
	root := c.disk.Root()

	checkpoint, err := c.store.Checkpoint(ctx, root)
	if err != nil {
		// Degrade to a full scan; dedup downstream absorbs re-discovery.
		c.log.Error("read checkpoint", "error", err)
		checkpoint = nil
	}

	tasks, tally := c.collect(ctx, checkpoint)

	if len(tasks) > 0 {
		if err := c.store.PushTasks(ctx, tasks); err != nil {
			c.log.Error("push tasks", "count", len(tasks), "error", err)
			return 0
		}
		c.log.Info("discovered new files", "count", len(tasks))
	}

	// The checkpoint records the pass start, not the newest modification
	// time, so a file written mid-pass is re-scanned rather than missed.
	if checkpoint != nil || len(tasks) > 0 {
		if err := c.store.SetCheckpoint(ctx, root, passStart); err != nil {
			c.log.Error("set checkpoint", "error", err)
		}
	}

	tally.ComputedAt = passStart
	if err := c.store.SetGroupCounts(ctx, root, tally, c.cacheTTL); err != nil {
		c.log.Error("cache group counts", "error", err)
	}

	return len(tasks)
}

// collect traverses the tree breadth-first, building discovery tasks for
// files newer than the checkpoint and tallying every file by group.
func (c *Crawler) collect(ctx context.Context, checkpoint *time.Time) ([]model.DiscoveryTask, model.GroupCounts) {
	tally := model.GroupCounts{Groups: map[string]int{}}
	var tasks []model.DiscoveryTask

	dirs := []string{""}
	for len(dirs) > 0 {
		if ctx.Err() != nil {
			return tasks, tally
		}
		dir := dirs[0]
		dirs = dirs[1:]

		entries, err := c.disk.FetchDirectory(ctx, dir)
		if err != nil {
			// Drop this subtree for the pass; the next pass retries.
			c.log.Error("fetch directory", "path", dir, "error", err)
			continue
		}

		for i := range entries {
			entry := &entries[i]
			switch {
			case entry.IsDir():
				dirs = append(dirs, entry.Path)
			case entry.IsFile():
				if group := pathmeta.Group(entry.Path); group != "" {
					tally.Groups[group]++
				} else {
					tally.Common++
				}

				modified := pathmeta.ParseTime(entry.Modified)
				if checkpoint != nil && modified != nil && !modified.After(*checkpoint) {
					continue
				}
				tasks = append(tasks, c.buildTask(entry))
			}
		}
	}
	return tasks, tally
}

func (c *Crawler) buildTask(entry *disk.Entry) model.DiscoveryTask {
	created := pathmeta.ParseTime(entry.Created)
	modified := pathmeta.ParseTime(entry.Modified)

	return model.DiscoveryTask{
		SubjectCode: pathmeta.Subject(entry.Path),
		Topic:       pathmeta.Topic(entry.Path),
		Group:       pathmeta.Group(entry.Path),
		GroupRaw:    pathmeta.GroupRaw(entry.Path),
		Teacher:     pathmeta.Teacher(entry.Name),
		LessonDate:  pathmeta.LessonDate(entry.Name, entry.Path, created, modified),
		FileName:    entry.Name,
		FilePath:    entry.Path,
		PublicURL:   pathmeta.PublicURL(c.disk.Root(), entry.Path),
		DownloadURL: entry.DownloadURL,
		MD5:         entry.MD5,
		ResourceID:  entry.ResourceID,
		ModifiedRaw: entry.Modified,
		CreatedAt:   time.Now(),
	}
}
