package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"shortlink-engine/internal/service"
	"shortlink-engine/internal/store"

	"go.uber.org/zap"
)

var urlRe = regexp.MustCompile(`https?://[^\s]+`)

// Update Telegram webhook 推送的更新
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message 聊天消息
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// Chat 会话
type Chat struct {
	ID int64 `json:"id"`
}

// Sender 对外发消息的能力，测试时注入假实现
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Dispatcher 聊天命令分发器：/link 走配对流程，
// 带 URL 的消息创建短链接，其余回用法提示。
// 它只是核心服务的又一个调用方，不包含任何存储逻辑。
type Dispatcher struct {
	links   *service.LinkService
	pairing *service.PairingService
	sender  Sender
	baseURL string
	logger  *zap.SugaredLogger
}

// NewDispatcher 创建分发器
func NewDispatcher(links *service.LinkService, pairing *service.PairingService, sender Sender, baseURL string, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		links:   links,
		pairing: pairing,
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("bot_dispatcher"),
	}
}

// HandleUpdate 处理一条更新。回复发送失败只记日志，
// webhook 始终应答成功以免 Telegram 反复重推。
func (d *Dispatcher) HandleUpdate(ctx context.Context, update *Update) {
	if update == nil || update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		d.reply(ctx, msg.Chat.ID, "发送一个 URL 即可生成短链接。\n用 /link 配对码 绑定你的账号后，生成的链接会归属到你名下。")
	case strings.HasPrefix(text, "/link"):
		d.handlePair(ctx, msg, text)
	default:
		d.handleShorten(ctx, msg, text)
	}
}

func (d *Dispatcher) handlePair(ctx context.Context, msg *Message, text string) {
	args := strings.Fields(text)
	if len(args) < 2 {
		d.reply(ctx, msg.Chat.ID, "请提供配对码。\n示例: /link ABC123")
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if _, err := d.pairing.Pair(chatID, args[1]); err != nil {
		switch {
		case store.IsExpired(err):
			d.reply(ctx, msg.Chat.ID, "配对码已过期，请在网站上重新生成。")
		case store.IsNotFound(err):
			d.reply(ctx, msg.Chat.ID, "配对码无效，请检查后重试。")
		default:
			d.logger.Errorf("配对失败 chat_id=%s: %v", chatID, err)
			d.reply(ctx, msg.Chat.ID, "绑定失败，请稍后再试。")
		}
		return
	}
	d.reply(ctx, msg.Chat.ID, "✅ 账号绑定成功！现在可以直接发 URL 创建短链接了。")
}

func (d *Dispatcher) handleShorten(ctx context.Context, msg *Message, text string) {
	rawURL := urlRe.FindString(text)
	if rawURL == "" {
		d.reply(ctx, msg.Chat.ID, "请发送一个有效的 URL。示例: https://example.com")
		return
	}

	// 已绑定的聊天以绑定的所有者身份创建，未绑定则匿名创建
	var ownerID *uint
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if id, err := d.pairing.OwnerForChat(chatID); err == nil {
		ownerID = &id
	} else if !store.IsNotFound(err) {
		d.logger.Warnf("查询聊天绑定失败 chat_id=%s: %v", chatID, err)
	}

	link, err := d.links.Create(ctx, service.CreateInput{OriginalURL: rawURL, OwnerID: ownerID})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			d.reply(ctx, msg.Chat.ID, "URL 格式无效，请检查后重试。")
		case store.IsDuplicateCode(err):
			d.reply(ctx, msg.Chat.ID, "短码已被占用，请稍后再试。")
		default:
			d.logger.Errorf("创建短链接失败 chat_id=%s: %v", chatID, err)
			d.reply(ctx, msg.Chat.ID, "创建失败，请稍后再试。")
		}
		return
	}

	shortURL := fmt.Sprintf("%s/%s", d.baseURL, link.ShortCode)
	d.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ 短链接创建成功！\n\n原始: %s\n短链: %s", rawURL, shortURL))
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	if d.sender == nil {
		return
	}
	if err := d.sender.SendMessage(ctx, chatID, text); err != nil {
		d.logger.Warnf("回复失败 chat_id=%d: %v", chatID, err)
	}
}
