package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier mirrors desk events into a Telegram chat and is the chat
// side of the command loop.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client

	// SendTimeout bounds a Present call, which has no caller context.
	SendTimeout time.Duration
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken:    botToken,
		ChatID:      chatID,
		APIBase:     telegramAPI,
		Client:      &http.Client{Timeout: 30 * time.Second, Transport: transport},
		SendTimeout: 10 * time.Second,
	}
}

func (t *TelegramNotifier) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.APIBase, t.BotToken, method)
}

// Send posts an HTML message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.ChatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sendMessage: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// SendWithRetry retries Send with exponential backoff (1s, 2s, 4s...).
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = t.Send(ctx, text); err == nil {
			return nil
		}
		if attempt == maxRetries {
			return fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}
		wait := time.Second << attempt
		log.Printf("[WARN] chat send failed (%d/%d), retry in %v: %v", attempt+1, maxRetries+1, wait, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Present renders the events a chat can show. View switches and display
// refreshes have no chat equivalent and are accepted silently.
func (t *TelegramNotifier) Present(evt Event) error {
	var text string
	switch evt.Type {
	case EventAlert:
		text = "⚠️ " + html.EscapeString(evt.Text)
	case EventNotify:
		text = "✅ " + html.EscapeString(evt.Text)
	case EventStatus:
		text = "ℹ️ " + html.EscapeString(evt.Text)
	case EventPopup:
		text = fmt.Sprintf("🔗 <b>Link Angel</b>\n\n<a href=\"%s\">Open the Angel login page</a> and finish authorization there.", html.EscapeString(evt.Text))
	case EventLogin:
		text = "🔒 Session expired. Log in again with /login &lt;token&gt;"
	default:
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.SendTimeout)
	defer cancel()
	return t.Send(ctx, text)
}
