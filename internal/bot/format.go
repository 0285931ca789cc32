package bot

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/AI-Stratov/yadi-lp-bot/internal/catalog"
	"github.com/AI-Stratov/yadi-lp-bot/internal/model"
)

var (
	tagSpaceRe = regexp.MustCompile(`[\s.]+`)
	tagJunkRe  = regexp.MustCompile(`[^0-9A-Za-zА-Яа-яЁё_]+`)
	tagDupRe   = regexp.MustCompile(`_+`)
)

// sanitizeTag turns a free-form value into a hashtag body: whitespace and
// dots become underscores, everything outside letters/digits is dropped.
func sanitizeTag(v string) string {
	t := tagSpaceRe.ReplaceAllString(strings.TrimSpace(v), "_")
	t = tagJunkRe.ReplaceAllString(t, "")
	t = tagDupRe.ReplaceAllString(t, "_")
	return strings.Trim(t, "_")
}

// FormatNotification renders a discovery task as a Telegram HTML message.
func FormatNotification(task *model.DiscoveryTask) string {
	subject := "Неизвестно"
	if task.SubjectCode != "" {
		subject = catalog.SubjectDisplay(task.SubjectCode)
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("📚 <b>%s</b>", html.EscapeString(subject)))

	if task.LessonDate != nil {
		lines = append(lines, "📅 "+task.LessonDate.Format("02.01 15:04"))
	}
	if task.Teacher != "" {
		lines = append(lines, "👨‍🏫 "+html.EscapeString(task.Teacher))
	}

	if tag := sanitizeTag(strings.ToLower(task.Topic)); tag != "" {
		lines = append(lines, "💼 #"+tag)
	}
	if tag := sanitizeTag(task.Group); tag != "" {
		lines = append(lines, "👥 #"+tag)
	}
	if tag := sanitizeTag(task.SubjectCode); tag != "" {
		lines = append(lines, "📖 #"+tag)
	}
	if tag := sanitizeTag(task.Teacher); tag != "" {
		lines = append(lines, "🏷️ #"+tag)
	}

	link := task.DownloadURL
	if link == "" {
		link = task.PublicURL
	}
	if link != "" {
		lines = append(lines, fmt.Sprintf("\n🔗 <a href='%s'>Смотреть видео</a>", link))
	} else {
		lines = append(lines, "\n📄 Файл: "+html.EscapeString(task.FileName))
	}

	return strings.Join(lines, "\n")
}
