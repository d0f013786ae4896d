package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	telegramMaxMessageLen = 4096
	telegramMaxFileSize   = 20 << 20 // getFile refuses anything larger
	telegramAPIBase       = "https://api.telegram.org"
)

// TelegramChannel implements the Channel interface for Telegram Bot API.
type TelegramChannel struct {
	token       string
	baseURL     string
	fileBaseURL string
	client      *http.Client
	offset      int
	stop        chan struct{}
	queue       userQueue
}

// NewTelegramChannel creates a Telegram channel adapter.
func NewTelegramChannel(token string) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required (RECALL_TELEGRAM_BOT_TOKEN)")
	}
	return &TelegramChannel{
		token:       token,
		baseURL:     telegramAPIBase + "/bot" + token,
		fileBaseURL: telegramAPIBase + "/file/bot" + token,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		stop: make(chan struct{}),
	}, nil
}

func (t *TelegramChannel) SendTyping(ctx context.Context, userID string) error {
	resp, err := t.postForm(ctx, "/sendChatAction", url.Values{
		"chat_id": {userID},
		"action":  {"typing"},
	})
	if err != nil {
		return fmt.Errorf("sending typing indicator: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

func (t *TelegramChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	parts := SplitMessage(msg.Text, telegramMaxMessageLen)

	for i, part := range parts {
		params := url.Values{
			"chat_id": {userID},
			"text":    {part},
		}
		if msg.ParseMode != "" {
			params.Set("parse_mode", msg.ParseMode)
		}
		// The keyboard belongs to the last part so it sits under the prompt.
		if i == len(parts)-1 {
			params.Set("reply_markup", replyMarkup(msg.Options))
		}

		resp, err := t.postForm(ctx, "/sendMessage", params)
		if err != nil {
			return fmt.Errorf("sending Telegram message: %w", err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			// If Markdown parsing fails, retry without parse mode
			if msg.ParseMode != "" && resp.StatusCode == http.StatusBadRequest {
				slog.Warn("Telegram markdown parse failed, retrying plain")
				params.Del("parse_mode")
				retryResp, retryErr := t.postForm(ctx, "/sendMessage", params)
				if retryErr != nil {
					return fmt.Errorf("sending Telegram message (retry): %w", retryErr)
				}
				_ = retryResp.Body.Close()
				if retryResp.StatusCode != http.StatusOK {
					return fmt.Errorf("telegram API error %d on retry", retryResp.StatusCode)
				}
				continue
			}
			return fmt.Errorf("telegram API error %d", resp.StatusCode)
		}
	}

	return nil
}

type tgKeyboardButton struct {
	Text string `json:"text"`
}

type tgReplyMarkup struct {
	Keyboard        [][]tgKeyboardButton `json:"keyboard,omitempty"`
	OneTimeKeyboard bool                 `json:"one_time_keyboard,omitempty"`
	ResizeKeyboard  bool                 `json:"resize_keyboard,omitempty"`
	RemoveKeyboard  bool                 `json:"remove_keyboard,omitempty"`
}

// replyMarkup renders options as a one-time keyboard, two buttons per row.
// No options removes any keyboard left from an earlier prompt.
func replyMarkup(options []string) string {
	markup := tgReplyMarkup{RemoveKeyboard: true}
	if len(options) > 0 {
		markup = tgReplyMarkup{OneTimeKeyboard: true, ResizeKeyboard: true}
		for i := 0; i < len(options); i += 2 {
			row := []tgKeyboardButton{{Text: options[i]}}
			if i+1 < len(options) {
				row = append(row, tgKeyboardButton{Text: options[i+1]})
			}
			markup.Keyboard = append(markup.Keyboard, row)
		}
	}
	data, _ := json.Marshal(markup)
	return string(data)
}

func (t *TelegramChannel) Start(ctx context.Context, handler func(InboundMessage)) error {
	if err := t.syncCommands(); err != nil {
		slog.Warn("failed to sync Telegram commands", "error", err)
	}
	go t.pollLoop(ctx, handler)
	return nil
}

func (t *TelegramChannel) Stop() error {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	return nil
}

type tgBotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

var telegramCommands = []tgBotCommand{
	{Command: "start", Description: "Start studying"},
	{Command: "help", Description: "How this bot works"},
	{Command: "type", Description: "Show or set the question type"},
	{Command: "decks", Description: "List ready-made decks"},
	{Command: "deck", Description: "Study a ready-made deck"},
	{Command: "next", Description: "Restart with the hardest cards first"},
	{Command: "progress", Description: "Show your progress"},
	{Command: "reset", Description: "Stop studying and clear your cards"},
}

// syncCommands publishes the command menu shown in Telegram clients.
func (t *TelegramChannel) syncCommands() error {
	data, err := json.Marshal(telegramCommands)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := t.postForm(ctx, "/setMyCommands", url.Values{"commands": {string(data)}})
	if err != nil {
		return fmt.Errorf("setMyCommands: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("setMyCommands: telegram API error %d", resp.StatusCode)
	}
	return nil
}

func (t *TelegramChannel) postForm(ctx context.Context, method string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+method, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.client.Do(req)
}

func (t *TelegramChannel) pollLoop(ctx context.Context, handler func(InboundMessage)) {
	slog.Info("Telegram long-polling started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		default:
			updates, err := t.getUpdates(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("Telegram getUpdates error", "error", err)
				time.Sleep(5 * time.Second)
				continue
			}

			for _, u := range updates {
				t.offset = u.UpdateID + 1
				msg, file, ok := mapTelegramInbound(u)
				if !ok {
					continue
				}
				// Updates from one chat are handled in arrival order.
				t.queue.Enqueue(msg.UserID, func() {
					if file != nil {
						att, err := t.downloadAttachment(ctx, *file)
						if err != nil {
							slog.Warn("failed to fetch telegram file", "user_id", msg.UserID, "error", err)
							msg.DocumentErr = err
						} else {
							msg.Document = att
						}
					}
					handler(msg)
				})
			}
		}
	}
}

func (t *TelegramChannel) getUpdates(ctx context.Context) ([]tgUpdate, error) {
	params := url.Values{
		"offset":  {strconv.Itoa(t.offset)},
		"timeout": {"30"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		OK     bool       `json:"ok"`
		Result []tgUpdate `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	if !result.OK {
		return nil, fmt.Errorf("telegram API returned ok=false")
	}

	return result.Result, nil
}

// Telegram API types (minimal)
type tgUpdate struct {
	UpdateID int        `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	Text           string      `json:"text"`
	Caption        string      `json:"caption"`
	Photo          []tgPhoto   `json:"photo,omitempty"`
	Document       *tgDocument `json:"document,omitempty"`
	Chat           tgChat      `json:"chat"`
	From           tgUser      `json:"from"`
	ReplyToMessage *tgMessage  `json:"reply_to_message,omitempty"`
}

type tgPhoto struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size"`
}

type tgDocument struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
}

// tgFileRef points at a file that still has to be downloaded.
type tgFileRef struct {
	FileID   string
	Name     string
	MIMEType string
	Size     int64
}

// SplitMessage splits text into chunks that fit Telegram's max message length.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		// Find last newline or space within limit
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > 0 {
			cutAt = idx + 1
		} else if idx := strings.LastIndex(text[:maxLen], " "); idx > 0 {
			cutAt = idx + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}

func mapTelegramInbound(u tgUpdate) (InboundMessage, *tgFileRef, bool) {
	if u.Message == nil {
		return InboundMessage{}, nil, false
	}

	text := strings.TrimSpace(u.Message.Text)
	caption := strings.TrimSpace(u.Message.Caption)
	if text == "" && caption != "" {
		text = caption
	}

	var file *tgFileRef
	switch {
	case u.Message.Document != nil:
		d := u.Message.Document
		file = &tgFileRef{FileID: d.FileID, Name: d.FileName, MIMEType: d.MimeType, Size: d.FileSize}
	case len(u.Message.Photo) > 0:
		// Telegram sends photos in ascending size order. Keep the largest (last).
		p := u.Message.Photo[len(u.Message.Photo)-1]
		file = &tgFileRef{FileID: p.FileID, MIMEType: "image/jpeg", Size: p.FileSize}
	}
	if text == "" && file == nil {
		return InboundMessage{}, nil, false
	}

	msg := InboundMessage{
		Channel:    "telegram",
		UserID:     strconv.FormatInt(u.Message.Chat.ID, 10),
		ExternalID: strconv.FormatInt(u.Message.From.ID, 10),
		Text:       text,
		Caption:    caption,
		Username:   u.Message.From.Username,
		FirstName:  u.Message.From.FirstName,
		LastName:   u.Message.From.LastName,
		Language:   u.Message.From.LanguageCode,
	}
	if u.Message.ReplyToMessage != nil {
		if u.Message.ReplyToMessage.Text != "" {
			msg.ReplyToText = u.Message.ReplyToMessage.Text
		} else if u.Message.ReplyToMessage.Caption != "" {
			msg.ReplyToText = u.Message.ReplyToMessage.Caption
		}
	}

	return msg, file, true
}

func (t *TelegramChannel) downloadAttachment(ctx context.Context, ref tgFileRef) (*Attachment, error) {
	if ref.Size > telegramMaxFileSize {
		return nil, fmt.Errorf("telegram file too large: %d bytes", ref.Size)
	}

	filePath, err := t.getFilePath(ctx, ref.FileID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.fileBaseURL+"/"+filePath, nil)
	if err != nil {
		return nil, fmt.Errorf("create file download request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("telegram file download error %d: %s", resp.StatusCode, string(body))
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, telegramMaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read telegram file: %w", err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("telegram file is empty")
	}
	if len(content) > telegramMaxFileSize {
		return nil, fmt.Errorf("telegram file too large")
	}

	name := ref.Name
	if name == "" {
		name = path.Base(filePath)
	}
	mimeType := ref.MIMEType
	if mimeType == "" {
		mimeType = detectTelegramMIME(filePath)
	}
	return &Attachment{Name: name, MIMEType: mimeType, Data: content}, nil
}

func (t *TelegramChannel) getFilePath(ctx context.Context, fileID string) (string, error) {
	params := url.Values{"file_id": {fileID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/getFile?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create getFile request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram getFile request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read getFile response: %w", err)
	}

	var result struct {
		OK     bool `json:"ok"`
		Result struct {
			FilePath string `json:"file_path"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse getFile response: %w", err)
	}
	if !result.OK || result.Result.FilePath == "" {
		return "", fmt.Errorf("telegram getFile failed")
	}
	return result.Result.FilePath, nil
}

func detectTelegramMIME(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
