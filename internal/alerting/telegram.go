package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramNotifier delivers alerts over the Telegram Bot API. Owners
// map to chat ids via the routing table; owners without an entry fall
// back to the default chat.
type TelegramNotifier struct {
	botToken    string
	defaultChat string
	chats       map[string]string
	baseURL     string
	client      *http.Client
	logger      zerolog.Logger
}

// NewTelegramNotifier constructs the Telegram sink.
func NewTelegramNotifier(botToken, defaultChat string, chats map[string]string, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken:    botToken,
		defaultChat: defaultChat,
		chats:       chats,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		logger:      logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify renders the alert and posts it via sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	chatID := n.chatFor(note.Owner)
	if chatID == "" {
		return fmt.Errorf("no telegram chat configured for owner %q", note.Owner)
	}

	payload := map[string]string{
		"chat_id": chatID,
		"text":    RenderMessage(note),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Info().
		Str("owner", note.Owner).
		Str("symbol", note.Symbol).
		Int64("rule_id", note.RuleID).
		Msg("alert delivered")
	return nil
}

func (n *TelegramNotifier) chatFor(owner string) string {
	if chat, ok := n.chats[owner]; ok && chat != "" {
		return chat
	}
	return n.defaultChat
}

var _ Notifier = (*TelegramNotifier)(nil)
