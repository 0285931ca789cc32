// Package pathmeta extracts structured metadata from disk paths and file
// names. All functions are pure; unknown or ambiguous input yields the zero
// value rather than a guess.
package pathmeta

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AI-Stratov/yadi-lp-bot/internal/catalog"
)

var (
	groupShapeRe = regexp.MustCompile(`(?i)^БКНАД\d{3}$`)
	teacherRe    = regexp.MustCompile(`^([А-ЯЁа-яё]+\s+[А-ЯЁ]\.[А-ЯЁ]\.)`)

	// Date candidates, tried in order. Time-of-day components are optional.
	isoLikeRe = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})(?:[T _](\d{2})[:\-.](\d{2})(?:[:\-.](\d{2}))?Z?)?`)
	dmyRe     = regexp.MustCompile(`(\d{2})[.-](\d{2})[.-](\d{4})(?:[T _](\d{2})[.:\-](\d{2})(?:[.:\-](\d{2}))?)?`)
	ymdDotsRe = regexp.MustCompile(`(\d{4})[.-](\d{2})[.-](\d{2})(?:[T _](\d{2})[.:\-](\d{2})(?:[.:\-](\d{2}))?)?`)
)

func segments(path string) []string {
	var segs []string
	for _, s := range strings.Split(strings.ReplaceAll(path, `\`, "/"), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// Subject returns the subject folder code found in the path, scanning from
// the leaf upward so the most specific folder wins. Empty if none matches.
func Subject(path string) string {
	segs := segments(path)
	for i := len(segs) - 1; i >= 0; i-- {
		if catalog.IsKnownSubject(segs[i]) {
			return segs[i]
		}
	}
	return ""
}

// Topic returns the lesson topic (Лекция/Семинар) found in the path.
func Topic(path string) string {
	for _, s := range segments(path) {
		s = strings.TrimSpace(s)
		if catalog.IsTopic(s) {
			return s
		}
	}
	return ""
}

// Group returns the known study group found in the path. Course-wide
// material (e.g. lectures) usually has no group folder.
func Group(path string) string {
	for _, s := range segments(path) {
		if catalog.IsKnownGroup(s) {
			return s
		}
	}
	return ""
}

// GroupRaw returns any group-shaped segment, whether or not it is a known
// group. This surfaces new or non-standard group folders that must not be
// silently routed as course-wide material.
func GroupRaw(path string) string {
	for _, s := range segments(path) {
		if groupShapeRe.MatchString(s) {
			return s
		}
	}
	return ""
}

// Teacher extracts the teacher name from a file name of the form
// "Фамилия И.О. 2025-10-15T08-08-19Z.mp4".
func Teacher(filename string) string {
	m := teacherRe.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func buildDateTime(year, month, day, hour, minute, sec int) *time.Time {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.Local)
	// time.Date normalizes out-of-range days (e.g. 31.02 becomes 03.03);
	// reject anything that did not survive the round trip.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return nil
	}
	return &t
}

func dateTimeFromText(text string) *time.Time {
	if text == "" {
		return nil
	}
	if m := isoLikeRe.FindStringSubmatch(text); m != nil {
		if dt := buildDateTime(atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5]), atoi(m[6])); dt != nil {
			return dt
		}
	}
	if m := dmyRe.FindStringSubmatch(text); m != nil {
		if dt := buildDateTime(atoi(m[3]), atoi(m[2]), atoi(m[1]), atoi(m[4]), atoi(m[5]), atoi(m[6])); dt != nil {
			return dt
		}
	}
	if m := ymdDotsRe.FindStringSubmatch(text); m != nil {
		if dt := buildDateTime(atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5]), atoi(m[6])); dt != nil {
			return dt
		}
	}
	return nil
}

// DateFromFilename extracts a lesson date embedded in a file name, e.g.
// "2025-10-15T08-08-19Z", "15.10.2025 08:08" or "2025.10.15".
func DateFromFilename(filename string) *time.Time {
	return dateTimeFromText(filename)
}

// DateFromPath extracts a lesson date from path segments, scanning from the
// leaf upward (folders closest to the file win).
func DateFromPath(path string) *time.Time {
	segs := segments(path)
	for i := len(segs) - 1; i >= 0; i-- {
		if dt := dateTimeFromText(segs[i]); dt != nil {
			return dt
		}
	}
	return nil
}

// LessonDate resolves the lesson date with an ordered preference chain:
// filename, path segment, remote created time, remote modified time.
func LessonDate(filename, path string, created, modified *time.Time) *time.Time {
	if dt := DateFromFilename(filename); dt != nil {
		return dt
	}
	if dt := DateFromPath(path); dt != nil {
		return dt
	}
	if created != nil {
		return created
	}
	return modified
}

// ParseTime parses an ISO-8601 timestamp as reported by the disk API and
// returns it in local time. Nil on empty or malformed input.
func ParseTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	local := t.Local()
	return &local
}

// PublicURL builds the public view link for a file under the shared root,
// e.g. PublicURL("https://disk.example/d/abc?x=1", "/1 курс/МА/file.mp4").
func PublicURL(publicRootURL, filePath string) string {
	clean := strings.TrimPrefix(filePath, "/")
	base := strings.TrimSuffix(strings.SplitN(publicRootURL, "?", 2)[0], "/")
	escaped := (&url.URL{Path: clean}).EscapedPath()
	return base + "/" + escaped
}
