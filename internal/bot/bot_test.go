package bot

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeAPI struct {
	got []tgbotapi.MessageConfig
	err error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.got = append(f.got, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestSendSetsHTMLMode(t *testing.T) {
	api := &fakeAPI{}
	b := &Bot{api: api, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	if err := b.Send(42, "<b>hi</b>"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(api.got) != 1 {
		t.Fatalf("api got %d messages, want 1", len(api.got))
	}
	msg := api.got[0]
	if msg.ChatID != 42 {
		t.Errorf("chat id = %d, want 42", msg.ChatID)
	}
	if msg.Text != "<b>hi</b>" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("parse mode = %q, want HTML", msg.ParseMode)
	}
	if !msg.DisableWebPagePreview {
		t.Error("web page preview should be disabled")
	}
}

func TestSendWrapsError(t *testing.T) {
	api := &fakeAPI{err: errors.New("forbidden: bot was blocked")}
	b := &Bot{api: api, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := b.Send(42, "hi")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, api.err) {
		t.Errorf("error chain lost the cause: %v", err)
	}
}
