package handler

import (
	"net/http"

	"shortlink-engine/internal/bot"
	"shortlink-engine/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TelegramHandler 配对码签发与 webhook 入口
type TelegramHandler struct {
	pairing       *service.PairingService
	dispatcher    *bot.Dispatcher
	webhookSecret string
}

// NewTelegramHandler 创建处理器
func NewTelegramHandler(pairing *service.PairingService, dispatcher *bot.Dispatcher, webhookSecret string) *TelegramHandler {
	return &TelegramHandler{pairing: pairing, dispatcher: dispatcher, webhookSecret: webhookSecret}
}

// PairingCodeResponse 配对码响应
type PairingCodeResponse struct {
	Code      string `json:"code" example:"aB3dE9Fg"`
	ExpiresAt string `json:"expires_at"`
}

// IssuePairingCode godoc
// @Summary 签发 Telegram 配对码
// @Description 生成一次性配对码，在聊天里用 /link 配对码 绑定账号
// @Tags Telegram
// @Security ApiKeyAuth
// @Produce json
// @Success 201 {object} PairingCodeResponse
// @Router /api/telegram/pairing-code [post]
func (h *TelegramHandler) IssuePairingCode(c *gin.Context) {
	reqID, ok := requesterID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	pc, err := h.pairing.IssueCode(reqID)
	if err != nil {
		zap.S().Errorf("签发配对码失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务暂时不可用"})
		return
	}

	c.JSON(http.StatusCreated, PairingCodeResponse{
		Code:      pc.Code,
		ExpiresAt: pc.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// Webhook Telegram 更新入口。始终应答 200，
// 失败细节进日志，避免 Telegram 对同一条更新反复重推。
func (h *TelegramHandler) Webhook(c *gin.Context) {
	if h.webhookSecret != "" && c.Param("secret") != h.webhookSecret {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var update bot.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	h.dispatcher.HandleUpdate(c.Request.Context(), &update)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
