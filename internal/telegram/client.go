// Package telegram delivers sale alerts to the marketing team chats.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"trafficops_backend/platform/config"
	"trafficops_backend/platform/logger"
)

const apiBase = "https://api.telegram.org"

// Client sends messages through the Telegram Bot API. A send fans out to
// every configured chat; one failing chat does not stop the others.
type Client struct {
	token   string
	chatIDs []string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a Telegram client from config.
func NewClient(cfg config.TelegramConfig, log *logger.Logger) *Client {
	return &Client{
		token:   cfg.GetTelegramBotToken(),
		chatIDs: cfg.GetTelegramChatIDs(),
		http:    &http.Client{Timeout: cfg.GetTelegramTimeout()},
		log:     log,
	}
}

// Enabled reports whether the client has a token and at least one chat.
func (c *Client) Enabled() bool {
	return c.token != "" && len(c.chatIDs) > 0
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Broadcast sends text to every configured chat. All chats are attempted
// even when some fail; the first error is returned.
func (c *Client) Broadcast(ctx context.Context, text string) error {
	g := &errgroup.Group{}
	g.SetLimit(4)

	errs := make([]error, len(c.chatIDs))
	for i, chatID := range c.chatIDs {
		i, chatID := i, chatID
		g.Go(func() error {
			if err := c.send(ctx, chatID, text); err != nil {
				c.log.NotificationError("telegram", err)
				errs[i] = err
			}
			return nil
		})
	}
	g.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message to chat %s: %w", chatID, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed sendMessageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || !parsed.OK {
		return fmt.Errorf("telegram rejected message for chat %s: status %d: %s",
			chatID, resp.StatusCode, parsed.Description)
	}
	return nil
}
