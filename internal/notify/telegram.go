package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fimon/internal/fim"
)

// TelegramSink posts scan summaries to a Telegram chat via the bot API.
// Quiet scans are not posted.
type TelegramSink struct {
	botToken string
	chatID   string
	client   *http.Client
	baseURL  string // overridden in tests
}

var _ fim.NotificationSink = (*TelegramSink)(nil)

// NewTelegramSink creates a sink posting through the given bot.
func NewTelegramSink(botToken, chatID string) *TelegramSink {
	return &TelegramSink{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  "https://api.telegram.org",
	}
}

func (s *TelegramSink) Name() string {
	return "telegram"
}

func (s *TelegramSink) Notify(summary fim.NotifySummary) error {
	if summary.Quiet() {
		return nil
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	form := url.Values{
		"chat_id": {s.chatID},
		"text":    {Subject(summary) + "\n" + Body(summary)},
	}

	resp, err := s.client.PostForm(endpoint, form)
	if err != nil {
		return fmt.Errorf("posting to telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("decoding telegram response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram api rejected message: %s", apiResp.Description)
	}
	return nil
}
