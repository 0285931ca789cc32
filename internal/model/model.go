// Package model defines the domain types used across the application.
package model

import "time"

// DiscoveryTask is a newly observed file on the watched disk, with metadata
// extracted from its path and name. Created once by the crawler and never
// mutated afterwards.
type DiscoveryTask struct {
	SubjectCode string `json:"subject_code,omitempty"`
	Topic       string `json:"topic,omitempty"`

	// Group is the resolved study group, if the file sits in a known group
	// folder. GroupRaw is any group-shaped path segment, resolved or not;
	// a set GroupRaw with an empty Group marks an unrecognized group.
	Group    string `json:"group,omitempty"`
	GroupRaw string `json:"group_raw,omitempty"`

	Teacher    string     `json:"teacher,omitempty"`
	LessonDate *time.Time `json:"lesson_date,omitempty"`

	FileName    string `json:"file_name"`
	FilePath    string `json:"file_path"`
	PublicURL   string `json:"public_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`

	MD5         string `json:"md5,omitempty"`
	ResourceID  string `json:"resource_id,omitempty"`
	ModifiedRaw string `json:"modified_raw,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DedupKey returns the stable per-file identity used to suppress duplicate
// deliveries: content hash, else resource id, else path plus raw timestamp.
func (t *DiscoveryTask) DedupKey() string {
	if t.MD5 != "" {
		return t.MD5
	}
	if t.ResourceID != "" {
		return t.ResourceID
	}
	return t.FilePath + ":" + t.ModifiedRaw
}

// DeliveryStatus is the lifecycle state of a scheduled delivery.
type DeliveryStatus string

// Delivery states. Sent and failed are terminal.
const (
	StatusPending DeliveryStatus = "pending"
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
)

// ScheduledDelivery binds a DiscoveryTask to one user with a computed send
// time. Created by the matcher, dispatched (and removed) by the delivery loop.
type ScheduledDelivery struct {
	ID          string         `json:"id"`
	UserID      int64          `json:"user_id"`
	Task        DiscoveryTask  `json:"task"`
	CreatedAt   time.Time      `json:"created_at"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	Status      DeliveryStatus `json:"status"`
}

// DeliveryMode is the user's preferred notification timing policy.
type DeliveryMode string

// Supported delivery modes.
const (
	ModeASAP     DeliveryMode = "ASAP"
	ModeAtTime   DeliveryMode = "AT_TIME"
	ModeInWindow DeliveryMode = "IN_WINDOW"
)

// ClockTime is a time of day without a date, as stored in user preferences.
type ClockTime struct {
	Hour   int
	Minute int
}

// On anchors the clock time to the given day, keeping its location.
func (c ClockTime) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

// User is one subscriber with notification preferences. The core only reads
// these; profile administration lives outside this process.
type User struct {
	TgID      int64
	Username  string
	FirstName string
	LastName  string

	Course           string
	Group            string
	ExcludedSubjects map[string]struct{}

	NotificationsEnabled bool
	Mode                 DeliveryMode
	SendTime             *ClockTime
	WindowStart          *ClockTime
	WindowEnd            *ClockTime

	CreatedAt time.Time
}

// StatusRecord is the retained outcome of one dispatched delivery.
type StatusRecord struct {
	DeliveryID string
	UserID     int64
	Status     DeliveryStatus
	Error      string
	UpdatedAt  time.Time
}

// GroupCounts is the cached per-group tally of files discovered on the disk.
// Common counts files outside any group folder (course-wide material).
type GroupCounts struct {
	Groups     map[string]int
	Common     int
	ComputedAt time.Time
}
