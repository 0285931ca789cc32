package stats

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/AI-Stratov/yadi-lp-bot/internal/catalog"
	"github.com/AI-Stratov/yadi-lp-bot/internal/model"
	"github.com/AI-Stratov/yadi-lp-bot/internal/storage"
)

const testRoot = "https://disk.yandex.ru/d/AbC123"

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newService(store *storage.SQLite) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, testRoot, log)
}

func TestBuildEmptyStore(t *testing.T) {
	store := newTestStore(t)
	svc := newService(store)

	snap, err := svc.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if snap.UsersTotal != 0 || snap.UsersEnabled != 0 {
		t.Errorf("users = (%d, %d), want (0, 0)", snap.UsersTotal, snap.UsersEnabled)
	}
	if snap.QueueLen != 0 || snap.ScheduledTotal != 0 {
		t.Errorf("queue/schedule = (%d, %d), want (0, 0)", snap.QueueLen, snap.ScheduledTotal)
	}
	if snap.LastCheckpoint != nil {
		t.Errorf("checkpoint = %v, want nil", snap.LastCheckpoint)
	}
	if snap.DiskComputedAt != nil {
		t.Errorf("disk computed at = %v, want nil", snap.DiskComputedAt)
	}
}

func TestBuildAggregatesUsers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	users := []model.User{
		{
			TgID: 1, Course: catalog.Course1, Group: "БКНАД252",
			NotificationsEnabled: true,
			ExcludedSubjects:     map[string]struct{}{"БЖД": {}},
		},
		{
			TgID: 2, Course: catalog.Course1, Group: "БКНАД251",
			NotificationsEnabled: true,
			ExcludedSubjects:     map[string]struct{}{"БЖД": {}, "ДМ": {}},
		},
		{
			TgID: 3, Course: catalog.Course2,
			NotificationsEnabled: false,
		},
	}
	for i := range users {
		if err := store.UpsertUser(ctx, &users[i]); err != nil {
			t.Fatalf("upsert user %d: %v", users[i].TgID, err)
		}
	}

	svc := newService(store)
	snap, err := svc.Build(ctx)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if diff := cmp.Diff(3, snap.UsersTotal); diff != "" {
		t.Errorf("users total mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, snap.UsersEnabled); diff != "" {
		t.Errorf("users enabled mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{catalog.Course1: 2, catalog.Course2: 1}, snap.ByCourse); diff != "" {
		t.Errorf("by course mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"БКНАД252": 1, "БКНАД251": 1}, snap.ByGroup); diff != "" {
		t.Errorf("by group mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"БЖД": 2, "ДМ": 1}, snap.TopExcluded); diff != "" {
		t.Errorf("top excluded mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildIncludesPipelineState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.PushTasks(ctx, []model.DiscoveryTask{
		{FileName: "a.mp4", FilePath: "/a.mp4"},
		{FileName: "b.mp4", FilePath: "/b.mp4"},
	}); err != nil {
		t.Fatalf("push tasks: %v", err)
	}

	d := model.ScheduledDelivery{
		ID:          "d-1",
		UserID:      1,
		Task:        model.DiscoveryTask{FileName: "a.mp4", FilePath: "/a.mp4"},
		CreatedAt:   time.Now(),
		ScheduledAt: time.Now().Add(time.Hour),
		Status:      model.StatusPending,
	}
	if err := store.SaveDelivery(ctx, &d); err != nil {
		t.Fatalf("save delivery: %v", err)
	}

	cp := time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)
	if err := store.SetCheckpoint(ctx, testRoot, cp); err != nil {
		t.Fatalf("set checkpoint: %v", err)
	}
	gc := model.GroupCounts{
		Groups:     map[string]int{"БКНАД252": 4},
		Common:     2,
		ComputedAt: cp,
	}
	if err := store.SetGroupCounts(ctx, testRoot, gc, time.Hour); err != nil {
		t.Fatalf("set group counts: %v", err)
	}

	svc := newService(store)
	snap, err := svc.Build(ctx)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if diff := cmp.Diff(2, snap.QueueLen); diff != "" {
		t.Errorf("queue length mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, snap.ScheduledTotal); diff != "" {
		t.Errorf("scheduled total mismatch (-want +got):\n%s", diff)
	}
	if snap.LastCheckpoint == nil || !snap.LastCheckpoint.Equal(cp) {
		t.Errorf("checkpoint = %v, want %v", snap.LastCheckpoint, cp)
	}
	if diff := cmp.Diff(map[string]int{"БКНАД252": 4}, snap.DiskGroups); diff != "" {
		t.Errorf("disk groups mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, snap.DiskCommon); diff != "" {
		t.Errorf("disk common mismatch (-want +got):\n%s", diff)
	}
}

func TestTopNKeepsLargest(t *testing.T) {
	counts := map[string]int{"a": 5, "b": 3, "c": 8, "d": 1}
	got := topN(counts, 2)
	want := map[string]int{"c": 8, "a": 5}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("topN mismatch (-want +got):\n%s", diff)
	}
}
