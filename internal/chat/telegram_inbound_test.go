package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMapTelegramInbound_TextMessage(t *testing.T) {
	msg, file, ok := mapTelegramInbound(tgUpdate{
		UpdateID: 1,
		Message: &tgMessage{
			Text: "hello",
			Chat: tgChat{ID: 123},
			From: tgUser{ID: 456, Username: "u1", FirstName: "Aina"},
		},
	})
	if !ok {
		t.Fatal("expected text update to map")
	}
	if msg.Text != "hello" {
		t.Fatalf("Text = %q, want hello", msg.Text)
	}
	if msg.UserID != "123" || msg.ExternalID != "456" {
		t.Fatalf("UserID/ExternalID = %q/%q, want 123/456", msg.UserID, msg.ExternalID)
	}
	if msg.FirstName != "Aina" {
		t.Fatalf("FirstName = %q, want Aina", msg.FirstName)
	}
	if file != nil {
		t.Fatalf("file = %+v, want nil", file)
	}
}

func TestMapTelegramInbound_DocumentWithCaption(t *testing.T) {
	msg, file, ok := mapTelegramInbound(tgUpdate{
		UpdateID: 2,
		Message: &tgMessage{
			Caption: "true/false",
			Document: &tgDocument{
				FileID:   "doc-1",
				FileName: "notes.txt",
				MimeType: "text/plain",
				FileSize: 120,
			},
			Chat: tgChat{ID: 123},
			From: tgUser{ID: 456},
		},
	})
	if !ok {
		t.Fatal("expected document update to map")
	}
	if msg.Caption != "true/false" {
		t.Fatalf("Caption = %q, want true/false", msg.Caption)
	}
	if file == nil {
		t.Fatal("file = nil, want document reference")
	}
	if file.FileID != "doc-1" || file.Name != "notes.txt" || file.MIMEType != "text/plain" || file.Size != 120 {
		t.Fatalf("file = %+v", file)
	}
}

func TestMapTelegramInbound_PhotoUsesLargest(t *testing.T) {
	msg, file, ok := mapTelegramInbound(tgUpdate{
		UpdateID: 3,
		Message: &tgMessage{
			Photo: []tgPhoto{
				{FileID: "small"},
				{FileID: "large"},
			},
			Chat: tgChat{ID: 789},
			From: tgUser{ID: 111},
		},
	})
	if !ok {
		t.Fatal("expected photo-only update to map")
	}
	if msg.Text != "" {
		t.Fatalf("Text = %q, want empty", msg.Text)
	}
	if file == nil || file.FileID != "large" {
		t.Fatalf("file = %+v, want large", file)
	}
	if file.MIMEType != "image/jpeg" {
		t.Fatalf("MIMEType = %q, want image/jpeg", file.MIMEType)
	}
}

func TestMapTelegramInbound_EmptyMessage(t *testing.T) {
	_, _, ok := mapTelegramInbound(tgUpdate{
		UpdateID: 4,
		Message: &tgMessage{
			Chat: tgChat{ID: 1},
			From: tgUser{ID: 2},
		},
	})
	if ok {
		t.Fatal("expected empty message to be ignored")
	}
}

func TestMapTelegramInbound_NoMessage(t *testing.T) {
	if _, _, ok := mapTelegramInbound(tgUpdate{UpdateID: 5}); ok {
		t.Fatal("expected update without message to be ignored")
	}
}

func TestMapTelegramInbound_ReplyCarriesQuotedText(t *testing.T) {
	msg, file, ok := mapTelegramInbound(tgUpdate{
		UpdateID: 6,
		Message: &tgMessage{
			Text: "Easy",
			Chat: tgChat{ID: 123},
			From: tgUser{ID: 456},
			ReplyToMessage: &tgMessage{
				Caption: "Card 1/3",
			},
		},
	})
	if !ok {
		t.Fatal("expected reply text update to map")
	}
	if msg.ReplyToText != "Card 1/3" {
		t.Fatalf("ReplyToText = %q, want Card 1/3", msg.ReplyToText)
	}
	if file != nil {
		t.Fatal("replies must not carry the quoted message's file")
	}
}

func newFileServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/getFile":
			if got := r.URL.Query().Get("file_id"); got != "doc-1" {
				t.Errorf("file_id = %q, want doc-1", got)
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":{"file_path":"documents/file_7.txt"}}`))
		case r.URL.Path == "/file/documents/file_7.txt":
			_, _ = w.Write([]byte(content))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestDownloadAttachment(t *testing.T) {
	server := newFileServer(t, "The mitochondria is the powerhouse of the cell.")
	defer server.Close()

	ch := &TelegramChannel{
		baseURL:     server.URL,
		fileBaseURL: server.URL + "/file",
		client:      server.Client(),
		stop:        make(chan struct{}),
	}

	att, err := ch.downloadAttachment(context.Background(), tgFileRef{FileID: "doc-1"})
	if err != nil {
		t.Fatalf("downloadAttachment() error = %v", err)
	}
	if att.Name != "file_7.txt" {
		t.Fatalf("Name = %q, want file_7.txt", att.Name)
	}
	if att.MIMEType != "text/plain" {
		t.Fatalf("MIMEType = %q, want text/plain", att.MIMEType)
	}
	if !strings.Contains(string(att.Data), "mitochondria") {
		t.Fatalf("Data = %q", att.Data)
	}
}

func TestDownloadAttachment_RejectsOversized(t *testing.T) {
	ch := &TelegramChannel{client: http.DefaultClient, stop: make(chan struct{})}

	_, err := ch.downloadAttachment(context.Background(), tgFileRef{FileID: "x", Size: telegramMaxFileSize + 1})
	if err == nil {
		t.Fatal("expected oversized file to be rejected")
	}
}

func TestDownloadAttachment_EmptyFile(t *testing.T) {
	server := newFileServer(t, "")
	defer server.Close()

	ch := &TelegramChannel{
		baseURL:     server.URL,
		fileBaseURL: server.URL + "/file",
		client:      server.Client(),
		stop:        make(chan struct{}),
	}

	if _, err := ch.downloadAttachment(context.Background(), tgFileRef{FileID: "doc-1"}); err == nil {
		t.Fatal("expected empty file to be rejected")
	}
}

func TestReplyMarkup(t *testing.T) {
	var withOptions tgReplyMarkup
	if err := json.Unmarshal([]byte(replyMarkup([]string{"Repeat", "Difficult", "Medium", "Easy", "Skip"})), &withOptions); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(withOptions.Keyboard) != 3 {
		t.Fatalf("rows = %d, want 3", len(withOptions.Keyboard))
	}
	if withOptions.Keyboard[2][0].Text != "Skip" || len(withOptions.Keyboard[2]) != 1 {
		t.Fatalf("last row = %+v", withOptions.Keyboard[2])
	}
	if !withOptions.OneTimeKeyboard || withOptions.RemoveKeyboard {
		t.Fatalf("markup = %+v", withOptions)
	}

	var none tgReplyMarkup
	if err := json.Unmarshal([]byte(replyMarkup(nil)), &none); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !none.RemoveKeyboard || len(none.Keyboard) != 0 {
		t.Fatalf("markup = %+v, want remove_keyboard", none)
	}
}

func TestDetectTelegramMIME(t *testing.T) {
	tests := map[string]string{
		"photos/a.JPG":    "image/jpeg",
		"photos/b.png":    "image/png",
		"documents/c.csv": "text/csv",
		"documents/e.pdf": "application/pdf",
		"photos/f.gif":    "image/gif",
		"photos/g.BMP":    "image/bmp",
		"documents/d.bin": "application/octet-stream",
	}
	for in, want := range tests {
		if got := detectTelegramMIME(in); got != want {
			t.Errorf("detectTelegramMIME(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPollLoop_HandlesChatInOrder(t *testing.T) {
	var served sync.Once
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/getUpdates":
			first := false
			served.Do(func() { first = true })
			if !first {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":[
				{"update_id":10,"message":{"document":{"file_id":"doc-1","file_name":"notes.txt"},"chat":{"id":123},"from":{"id":456}}},
				{"update_id":11,"message":{"text":"paris","chat":{"id":123},"from":{"id":456}}},
				{"update_id":12,"message":{"text":"easy","chat":{"id":123},"from":{"id":456}}}
			]}`))
		case "/getFile":
			time.Sleep(50 * time.Millisecond)
			_, _ = w.Write([]byte(`{"ok":true,"result":{"file_path":"documents/file_7.txt"}}`))
		case "/file/documents/file_7.txt":
			_, _ = w.Write([]byte("Paris is the capital of France."))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ch := &TelegramChannel{
		baseURL:     server.URL,
		fileBaseURL: server.URL + "/file",
		client:      server.Client(),
		stop:        make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		got  []string
		done = make(chan struct{})
	)
	go ch.pollLoop(ctx, func(msg InboundMessage) {
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		if msg.Document != nil {
			got = append(got, "document")
		} else {
			got = append(got, msg.Text)
		}
		if len(got) == 3 {
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for updates")
	}
	cancel()
	ch.queue.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"document", "paris", "easy"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("handled %v, want %v", got, want)
		}
	}
}
