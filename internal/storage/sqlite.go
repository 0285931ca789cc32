package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/AI-Stratov/yadi-lp-bot/internal/model"
	"github.com/AI-Stratov/yadi-lp-bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Retention windows for dedup keys and status records.
const (
	dedupRetention  = 30 * 24 * time.Hour
	statusRetention = 7 * 24 * time.Hour
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// rootKey derives a short stable key for a watched root URL.
func rootKey(root string) string {
	h := sha256.Sum256([]byte(root))
	return fmt.Sprintf("%x", h[:6])
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseStoredTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// PushTasks appends discovery tasks to the FIFO queue in one transaction.
func (s *SQLite) PushTasks(ctx context.Context, tasks []model.DiscoveryTask) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	for i := range tasks {
		payload, err := json.Marshal(&tasks[i])
		if err != nil {
			return fmt.Errorf("marshal task: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queue (payload, enqueued_at) VALUES (?, ?)`,
			string(payload), now,
		); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
	}
	return tx.Commit()
}

// PopTasks removes and returns up to limit tasks from the head of the queue.
// The select and delete run in one transaction, so concurrent consumers
// never observe the same task.
func (s *SQLite) PopTasks(ctx context.Context, limit int) ([]model.DiscoveryTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, payload FROM queue ORDER BY id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}

	var ids []int64
	var tasks []model.DiscoveryTask
	for rows.Next() {
		var id int64
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		var task model.DiscoveryTask
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("unmarshal task: %w", err)
		}
		ids = append(ids, id)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate queue: %w", err)
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM queue WHERE id IN (`+placeholders(len(ids))+`)`, int64Args(ids)...,
	); err != nil {
		return nil, fmt.Errorf("delete queue rows: %w", err)
	}
	return tasks, tx.Commit()
}

// QueueLen returns the number of tasks waiting in the queue.
func (s *SQLite) QueueLen(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

// SaveDelivery writes a pending delivery into the user's schedule.
func (s *SQLite) SaveDelivery(ctx context.Context, d *model.ScheduledDelivery) error {
	payload, err := json.Marshal(&d.Task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedule (id, user_id, payload, scheduled_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.UserID, string(payload), formatTime(d.ScheduledAt), formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// PopDue removes and returns up to limit deliveries whose scheduled time is
// not after before. Atomic for the same reason as PopTasks.
func (s *SQLite) PopDue(ctx context.Context, before time.Time, limit int) ([]model.ScheduledDelivery, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, user_id, payload, scheduled_at, created_at
		 FROM schedule WHERE scheduled_at <= ? ORDER BY scheduled_at, id LIMIT ?`,
		formatTime(before), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due: %w", err)
	}

	var due []model.ScheduledDelivery
	for rows.Next() {
		var d model.ScheduledDelivery
		var payload, scheduledAt, createdAt string
		if err := rows.Scan(&d.ID, &d.UserID, &payload, &scheduledAt, &createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &d.Task); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("unmarshal task: %w", err)
		}
		d.ScheduledAt = parseStoredTime(scheduledAt)
		d.CreatedAt = parseStoredTime(createdAt)
		d.Status = model.StatusPending
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate due: %w", err)
	}
	_ = rows.Close()

	if len(due) == 0 {
		return nil, tx.Commit()
	}

	args := make([]any, len(due))
	for i := range due {
		args[i] = due[i].ID
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schedule WHERE id IN (`+placeholders(len(due))+`)`, args...,
	); err != nil {
		return nil, fmt.Errorf("delete due rows: %w", err)
	}
	return due, tx.Commit()
}

// ScheduledTotal returns the number of pending deliveries across all users.
func (s *SQLite) ScheduledTotal(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedule`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count schedule: %w", err)
	}
	return n, nil
}

// RecordDedupKey records the (user, key) pair if it is not already present
// within the retention window. Returns true when the key was newly recorded.
// An expired row is reclaimed in place, which makes the check-and-mark a
// single statement.
func (s *SQLite) RecordDedupKey(ctx context.Context, userID int64, key string, now time.Time) (bool, error) {
	cutoff := now.Add(-dedupRetention)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup_keys (user_id, dedup_key, recorded_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, dedup_key) DO UPDATE SET recorded_at = excluded.recorded_at
		 WHERE dedup_keys.recorded_at < ?`,
		userID, key, formatTime(now), formatTime(cutoff),
	)
	if err != nil {
		return false, fmt.Errorf("record dedup key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// SetDeliveryStatus records the terminal outcome of a delivery.
func (s *SQLite) SetDeliveryStatus(ctx context.Context, rec model.StatusRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_status (delivery_id, user_id, status, error, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(delivery_id) DO UPDATE SET
		   status = excluded.status, error = excluded.error, updated_at = excluded.updated_at`,
		rec.DeliveryID, rec.UserID, string(rec.Status), rec.Error, formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("set delivery status: %w", err)
	}
	return nil
}

// DeliveryStatus returns the retained status record, or nil if none exists.
func (s *SQLite) DeliveryStatus(ctx context.Context, deliveryID string) (*model.StatusRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT delivery_id, user_id, status, error, updated_at
		 FROM delivery_status WHERE delivery_id = ?`, deliveryID,
	)
	var rec model.StatusRecord
	var status, updatedAt string
	err := row.Scan(&rec.DeliveryID, &rec.UserID, &status, &rec.Error, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan status: %w", err)
	}
	rec.Status = model.DeliveryStatus(status)
	rec.UpdatedAt = parseStoredTime(updatedAt)
	return &rec, nil
}

// Checkpoint returns the last crawl-pass start time for the root, or nil on
// the first run.
func (s *SQLite) Checkpoint(ctx context.Context, root string) (*time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_pass_at FROM checkpoints WHERE root = ?`, rootKey(root),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	t := parseStoredTime(raw)
	return &t, nil
}

// SetCheckpoint stores the crawl-pass start time for the root.
func (s *SQLite) SetCheckpoint(ctx context.Context, root string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (root, last_pass_at) VALUES (?, ?)
		 ON CONFLICT(root) DO UPDATE SET last_pass_at = excluded.last_pass_at`,
		rootKey(root), formatTime(t),
	)
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

type groupCountsPayload struct {
	Groups     map[string]int `json:"groups"`
	Common     int            `json:"common"`
	ComputedAt string         `json:"computed_at"`
}

// SetGroupCounts caches the per-group file tally for the root with a TTL.
func (s *SQLite) SetGroupCounts(ctx context.Context, root string, gc model.GroupCounts, ttl time.Duration) error {
	payload, err := json.Marshal(groupCountsPayload{
		Groups:     gc.Groups,
		Common:     gc.Common,
		ComputedAt: formatTime(gc.ComputedAt),
	})
	if err != nil {
		return fmt.Errorf("marshal group counts: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO group_counts (root, payload, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(root) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		rootKey(root), string(payload), formatTime(time.Now().Add(ttl)),
	)
	if err != nil {
		return fmt.Errorf("set group counts: %w", err)
	}
	return nil
}

// GroupCounts returns the cached tally, or nil when absent or expired.
func (s *SQLite) GroupCounts(ctx context.Context, root string) (*model.GroupCounts, error) {
	var payload, expiresAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM group_counts WHERE root = ?`, rootKey(root),
	).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query group counts: %w", err)
	}
	if parseStoredTime(expiresAt).Before(time.Now().UTC()) {
		return nil, nil
	}
	var p groupCountsPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("unmarshal group counts: %w", err)
	}
	return &model.GroupCounts{
		Groups:     p.Groups,
		Common:     p.Common,
		ComputedAt: parseStoredTime(p.ComputedAt),
	}, nil
}

// ListUsers returns every registered user with notification preferences.
func (s *SQLite) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tg_id, username, first_name, last_name, course, study_group,
		        excluded_subjects, notifications_enabled, delivery_mode,
		        send_time, window_start, window_end, created_at
		 FROM users ORDER BY tg_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpsertUser inserts or replaces a user profile.
func (s *SQLite) UpsertUser(ctx context.Context, u *model.User) error {
	excluded, err := marshalExcluded(u.ExcludedSubjects)
	if err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (tg_id, username, first_name, last_name, course, study_group,
		                    excluded_subjects, notifications_enabled, delivery_mode,
		                    send_time, window_start, window_end, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tg_id) DO UPDATE SET
		   username = excluded.username, first_name = excluded.first_name,
		   last_name = excluded.last_name, course = excluded.course,
		   study_group = excluded.study_group, excluded_subjects = excluded.excluded_subjects,
		   notifications_enabled = excluded.notifications_enabled,
		   delivery_mode = excluded.delivery_mode, send_time = excluded.send_time,
		   window_start = excluded.window_start, window_end = excluded.window_end`,
		u.TgID, u.Username, u.FirstName, u.LastName, u.Course, u.Group,
		excluded, boolToInt(u.NotificationsEnabled), string(u.Mode),
		clockToString(u.SendTime), clockToString(u.WindowStart), clockToString(u.WindowEnd),
		formatTime(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// PruneExpired drops dedup keys and status records past their retention.
func (s *SQLite) PruneExpired(ctx context.Context, now time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM dedup_keys WHERE recorded_at < ?`, formatTime(now.Add(-dedupRetention)),
	); err != nil {
		return fmt.Errorf("prune dedup keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM delivery_status WHERE updated_at < ?`, formatTime(now.Add(-statusRetention)),
	); err != nil {
		return fmt.Errorf("prune statuses: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalExcluded(set map[string]struct{}) (string, error) {
	if len(set) == 0 {
		return "[]", nil
	}
	subjects := make([]string, 0, len(set))
	for s := range set {
		subjects = append(subjects, s)
	}
	raw, err := json.Marshal(subjects)
	if err != nil {
		return "", fmt.Errorf("marshal excluded subjects: %w", err)
	}
	return string(raw), nil
}

func unmarshalExcluded(raw string) (map[string]struct{}, error) {
	if raw == "" {
		return map[string]struct{}{}, nil
	}
	var subjects []string
	if err := json.Unmarshal([]byte(raw), &subjects); err != nil {
		return nil, fmt.Errorf("unmarshal excluded subjects: %w", err)
	}
	set := make(map[string]struct{}, len(subjects))
	for _, s := range subjects {
		set[s] = struct{}{}
	}
	return set, nil
}

func clockToString(c *model.ClockTime) any {
	if c == nil {
		return nil
	}
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func parseClock(s string) *model.ClockTime {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return nil
	}
	return &model.ClockTime{Hour: h, Minute: m}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (*model.User, error) {
	var u model.User
	var enabled int
	var excluded, createdAt string
	var mode, sendTime, windowStart, windowEnd sql.NullString
	err := row.Scan(&u.TgID, &u.Username, &u.FirstName, &u.LastName, &u.Course, &u.Group,
		&excluded, &enabled, &mode, &sendTime, &windowStart, &windowEnd, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.NotificationsEnabled = enabled == 1
	u.ExcludedSubjects, err = unmarshalExcluded(excluded)
	if err != nil {
		return nil, err
	}
	if mode.Valid {
		u.Mode = model.DeliveryMode(mode.String)
	}
	if sendTime.Valid {
		u.SendTime = parseClock(sendTime.String)
	}
	if windowStart.Valid {
		u.WindowStart = parseClock(windowStart.String)
	}
	if windowEnd.Valid {
		u.WindowEnd = parseClock(windowEnd.String)
	}
	u.CreatedAt = parseStoredTime(createdAt)
	return &u, nil
}
