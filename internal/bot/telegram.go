package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const apiBase = "https://api.telegram.org"

// TelegramClient Bot API 的最小客户端，只用到 sendMessage
type TelegramClient struct {
	token  string
	client *http.Client
	logger *zap.SugaredLogger
}

// NewTelegramClient 创建客户端
func NewTelegramClient(token string, logger *zap.SugaredLogger) *TelegramClient {
	return &TelegramClient{
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.Named("telegram_client"),
	}
}

// SendMessage 发送一条文本消息。发送失败只记日志，
// webhook 响应不依赖消息是否送达。
func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warnf("发送消息失败 chat_id=%d: %v", chatID, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warnf("Bot API 返回 %d chat_id=%d", resp.StatusCode, chatID)
		return fmt.Errorf("telegram api status %d", resp.StatusCode)
	}
	return nil
}
