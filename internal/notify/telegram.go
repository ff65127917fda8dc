package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/web3-frozen/deposit-insights/internal/domain"
)

const telegramAPI = "https://api.telegram.org/bot"

// Telegram sends alerts to a single chat through the Bot API.
type Telegram struct {
	token   string
	chatID  int64
	baseURL string
	client  *http.Client
}

func NewTelegram(token string, chatID int64) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPI,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, a domain.AlertMessage) error {
	payload := map[string]interface{}{
		"chat_id": t.chatID,
		"text":    formatAlert(a),
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+t.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("telegram API %d: %s", resp.StatusCode, errResp.Description)
	}
	return nil
}

func formatAlert(a domain.AlertMessage) string {
	icon := "ℹ️"
	switch a.Severity {
	case domain.SeverityHigh:
		icon = "🚨"
	case domain.SeverityMedium:
		icon = "⚠️"
	}
	return fmt.Sprintf("%s %s ALERT\n\n%s\n\n%s",
		icon,
		strings.ToUpper(string(a.Severity)),
		a.Message,
		a.Timestamp.UTC().Format("2006-01-02 15:04 MST"))
}
