package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/AI-Stratov/yadi-lp-bot/internal/model"
	"github.com/AI-Stratov/yadi-lp-bot/internal/storage"
)

type mockSender struct {
	sent    []sentMessage
	failFor map[int64]error
}

type sentMessage struct {
	userID int64
	text   string
}

func (m *mockSender) Send(userID int64, text string) error {
	if err := m.failFor[userID]; err != nil {
		return err
	}
	m.sent = append(m.sent, sentMessage{userID: userID, text: text})
	return nil
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newLoop(store *storage.SQLite, sender Sender) *Loop {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(store, sender, log, time.Minute)
	l.sendPause = 0
	return l
}

func saveDelivery(t *testing.T, store *storage.SQLite, id string, userID int64, at time.Time) {
	t.Helper()
	d := model.ScheduledDelivery{
		ID:     id,
		UserID: userID,
		Task: model.DiscoveryTask{
			SubjectCode: "МА",
			FileName:    "file.mp4",
			FilePath:    "/1 курс/МА/file.mp4",
		},
		CreatedAt:   at.Add(-time.Minute),
		ScheduledAt: at,
		Status:      model.StatusPending,
	}
	if err := store.SaveDelivery(context.Background(), &d); err != nil {
		t.Fatalf("save delivery %s: %v", id, err)
	}
}

func TestFlushDueSendsDueDeliveries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	past := time.Now().Add(-time.Minute)
	saveDelivery(t, store, "d-1", 100, past)
	saveDelivery(t, store, "d-2", 200, past)

	l := newLoop(store, sender)
	sent, failed := l.FlushDue(ctx)

	if diff := cmp.Diff(2, sent); diff != "" {
		t.Errorf("sent count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, failed); diff != "" {
		t.Errorf("failed count mismatch (-want +got):\n%s", diff)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sender got %d messages, want 2", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].text, "Математический анализ") {
		t.Errorf("message lacks subject display name: %q", sender.sent[0].text)
	}

	st, err := store.DeliveryStatus(ctx, "d-1")
	if err != nil {
		t.Fatalf("delivery status: %v", err)
	}
	if st == nil || st.Status != model.StatusSent {
		t.Errorf("status for d-1 = %+v, want sent", st)
	}
}

func TestFlushDueFutureEntriesStay(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	saveDelivery(t, store, "d-future", 100, time.Now().Add(time.Hour))

	l := newLoop(store, sender)
	sent, failed := l.FlushDue(ctx)
	if sent != 0 || failed != 0 {
		t.Errorf("FlushDue() = (%d, %d), want (0, 0)", sent, failed)
	}

	total, err := store.ScheduledTotal(ctx)
	if err != nil {
		t.Fatalf("scheduled total: %v", err)
	}
	if diff := cmp.Diff(1, total); diff != "" {
		t.Errorf("future entry should remain scheduled (-want +got):\n%s", diff)
	}
}

func TestFlushDueFailedSendIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{failFor: map[int64]error{200: errors.New("blocked by user")}}

	past := time.Now().Add(-time.Minute)
	saveDelivery(t, store, "d-ok", 100, past)
	saveDelivery(t, store, "d-bad", 200, past)

	l := newLoop(store, sender)
	sent, failed := l.FlushDue(ctx)

	if diff := cmp.Diff(1, sent); diff != "" {
		t.Errorf("sent count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, failed); diff != "" {
		t.Errorf("failed count mismatch (-want +got):\n%s", diff)
	}

	// The failed entry left the schedule; only the status records the outcome.
	total, err := store.ScheduledTotal(ctx)
	if err != nil {
		t.Fatalf("scheduled total: %v", err)
	}
	if diff := cmp.Diff(0, total); diff != "" {
		t.Errorf("schedule should be drained (-want +got):\n%s", diff)
	}

	st, err := store.DeliveryStatus(ctx, "d-bad")
	if err != nil {
		t.Fatalf("delivery status: %v", err)
	}
	if st == nil || st.Status != model.StatusFailed {
		t.Fatalf("status for d-bad = %+v, want failed", st)
	}
	if st.Error == "" {
		t.Error("expected the send error to be recorded")
	}

	// No retry on the next flush.
	sent, failed = l.FlushDue(ctx)
	if sent != 0 || failed != 0 {
		t.Errorf("second FlushDue() = (%d, %d), want (0, 0)", sent, failed)
	}
}

func TestFlushDueEmptySchedule(t *testing.T) {
	store := newTestStore(t)
	sender := &mockSender{}

	l := newLoop(store, sender)
	sent, failed := l.FlushDue(context.Background())
	if sent != 0 || failed != 0 {
		t.Errorf("FlushDue() = (%d, %d), want (0, 0)", sent, failed)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newTestStore(t)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(store, &mockSender{}, log, 10*time.Millisecond)
	l.sendPause = 0

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
