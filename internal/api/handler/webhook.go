package handler

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/payment"
	"github.com/pixelmuse/pixelmuse_go_server/internal/service"
)

// WebhookHandler Stripe webhook 入口。
// 响应码即重试协议：2xx 确认、4xx 拒收不重试、5xx 让 Stripe 重投。
// 这里不用统一响应封装，Stripe 只看状态码。
type WebhookHandler struct {
	gateway        payment.Gateway
	webhookService *service.WebhookService
}

func NewWebhookHandler(gateway payment.Gateway, webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		gateway:        gateway,
		webhookService: webhookService,
	}
}

// Handle POST /api/v1/webhooks/stripe
func (h *WebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	raw, err := h.gateway.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		log.Printf("webhook: signature verification failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	event, err := payment.ParseEvent(raw)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidMetadata) {
			// 元数据损坏重试也救不回来，拒收并记录
			log.Printf("webhook: event %s has invalid metadata: %v", raw.ID, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metadata"})
			return
		}
		log.Printf("webhook: parse event %s failed: %v", raw.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "parse failed"})
		return
	}

	if err := h.webhookService.Process(raw.Type, event); err != nil {
		log.Printf("webhook: process event %s (%s) failed: %v", raw.ID, raw.Type, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
