// Package catalog holds the static faculty data: study groups, courses,
// subject folders and lesson topics as they appear on the shared disk.
package catalog

// Subjects maps a disk folder name to the subject's display name.
var Subjects = map[string]string{
	"БЖД":                         "БЖД",
	"ДМ":                          "Дискретная математика",
	"История России":              "История России",
	"ЛА":                          "Линейная алгебра",
	"МА":                          "Математический анализ",
	"Программирование на Python":  "Программирование на Python",
	"АиСД2":                       "Алгоритмы и структуры данных 2",
	"Алгебра":                     "Алгебра",
	"МА2":                         "Математический анализ 2",
	"Теория вероятностей":         "Теория вероятностей",
	"Глубинное обучение 1":        "Глубинное обучение 1",
	"Мат статистика 2":            "Математическая статистика 2",
	"Математическая статистика 2": "Математическая статистика 2",
	"Машинное обучение 1":         "Машинное обучение 1",
	`НИС "Машинное обучение и приложение 1"`:  `НИС 'Машинное обучение и приложение 1'`,
	`НИС "Промышленное программирование 1"`:   `НИС 'Промышленное программирование 1'`,
	`НИС "Машинное обучение и приложение 2"`:  `НИС 'Машинное обучение и приложение 2'`,
	`НИС "Промышленное программирование 2"`:   `НИС 'Промышленное программирование 2'`,
	"Глубинное обучение 2": "Глубинное обучение 2",
	"ДОЦ Психология":       "ДОЦ Психология",
}

// Topics is the fixed lesson-topic vocabulary matched against path segments.
var Topics = map[string]struct{}{
	"Лекция":  {},
	"Семинар": {},
}

// Study course codes.
const (
	Course1 = "COURSE1"
	Course2 = "COURSE2"
	Course3 = "COURSE3"
	Course4 = "COURSE4"
)

// Groups lists every known study group folder name.
var Groups = map[string]struct{}{
	"БКНАД251": {},
	"БКНАД252": {},
	"БКНАД253": {},
	"БКНАД241": {},
	"БКНАД242": {},
	"БКНАД231": {},
	"БКНАД232": {},
	"БКНАД211": {},
	"БКНАД212": {},
}

// Course describes one study course with its title and groups.
type Course struct {
	Code   string
	Title  string
	Groups []string
}

// Courses maps course codes to course descriptions.
var Courses = map[string]Course{
	Course1: {Code: Course1, Title: "1 курс", Groups: []string{"БКНАД251", "БКНАД252", "БКНАД253"}},
	Course2: {Code: Course2, Title: "2 курс", Groups: []string{"БКНАД241", "БКНАД242"}},
	Course3: {Code: Course3, Title: "3 курс", Groups: []string{"БКНАД231", "БКНАД232"}},
	Course4: {Code: Course4, Title: "4 курс", Groups: []string{"БКНАД211", "БКНАД212"}},
}

// CourseSubjects maps a course code to the subject folder names registered
// for it. A file is routed to a course only through this table.
var CourseSubjects = map[string][]string{
	Course1: {"БЖД", "ДМ", "История России", "ЛА", "МА", "Программирование на Python"},
	Course2: {"АиСД2", "Алгебра", "МА2", "Теория вероятностей"},
	Course3: {
		"Глубинное обучение 1", "Мат статистика 2", "Математическая статистика 2",
		"Машинное обучение 1",
		`НИС "Машинное обучение и приложение 1"`, `НИС "Промышленное программирование 1"`,
	},
	Course4: {
		"Глубинное обучение 2", "ДОЦ Психология",
		`НИС "Машинное обучение и приложение 2"`, `НИС "Промышленное программирование 2"`,
	},
}

// SubjectDisplay returns the display name for a subject folder, falling back
// to the folder name itself.
func SubjectDisplay(code string) string {
	if d, ok := Subjects[code]; ok {
		return d
	}
	return code
}

// IsKnownSubject reports whether the segment is a known subject folder.
func IsKnownSubject(segment string) bool {
	_, ok := Subjects[segment]
	return ok
}

// IsKnownGroup reports whether the segment is a known study group.
func IsKnownGroup(segment string) bool {
	_, ok := Groups[segment]
	return ok
}

// IsTopic reports whether the segment is a lesson topic.
func IsTopic(segment string) bool {
	_, ok := Topics[segment]
	return ok
}

// SubjectsForCourse returns the subject folders registered for a course.
// An unknown course yields nil.
func SubjectsForCourse(course string) []string {
	return CourseSubjects[course]
}
