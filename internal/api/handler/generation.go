package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixelmuse/pixelmuse_go_server/internal/api/middleware"
	"github.com/pixelmuse/pixelmuse_go_server/internal/model/dto"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/pricing"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/provider"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/response"
	"github.com/pixelmuse/pixelmuse_go_server/internal/service"
)

type GenerationHandler struct {
	generationService *service.GenerationService
}

func NewGenerationHandler(generationService *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{generationService: generationService}
}

// CreateTextVideo 文生视频
// POST /api/v1/generations/text-video
func (h *GenerationHandler) CreateTextVideo(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.TextVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求参数错误")
		return
	}

	result, err := h.generationService.CreateTextVideo(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeGenerationError(c, err)
		return
	}
	response.Success(c, result)
}

// CreateImageVideo 图生视频
// POST /api/v1/generations/image-video
func (h *GenerationHandler) CreateImageVideo(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ImageVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求参数错误")
		return
	}

	result, err := h.generationService.CreateImageVideo(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeGenerationError(c, err)
		return
	}
	response.Success(c, result)
}

// CreateSoraVideo sora 文生视频
// POST /api/v1/generations/sora-video
func (h *GenerationHandler) CreateSoraVideo(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.SoraVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求参数错误")
		return
	}

	result, err := h.generationService.CreateSoraVideo(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeGenerationError(c, err)
		return
	}
	response.Success(c, result)
}

// CreateImage 文生图（同步等结果）
// POST /api/v1/generations/image
func (h *GenerationHandler) CreateImage(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求参数错误")
		return
	}

	result, err := h.generationService.CreateImage(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeGenerationError(c, err)
		return
	}
	response.Success(c, result)
}

// CreateMusic 文生音乐
// POST /api/v1/generations/music
func (h *GenerationHandler) CreateMusic(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.MusicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请求参数错误")
		return
	}

	result, err := h.generationService.CreateMusic(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeGenerationError(c, err)
		return
	}
	response.Success(c, result)
}

// TaskStatus 任务状态透传
// GET /api/v1/generations/tasks/:id
func (h *GenerationHandler) TaskStatus(c *gin.Context) {
	if _, ok := middleware.GetUserID(c); !ok {
		response.AuthError(c, "")
		return
	}

	taskID := c.Param("id")
	if taskID == "" {
		response.ParamError(c, "缺少任务 id")
		return
	}

	status, raw, err := h.generationService.TaskStatus(c.Request.Context(), taskID)
	if err != nil {
		response.UpstreamError(c, "查询任务状态失败")
		return
	}
	c.Data(status, "application/json", raw)
}

// PollMusic 音乐结果轮询
// GET /api/v1/generations/music/:id
func (h *GenerationHandler) PollMusic(c *gin.Context) {
	if _, ok := middleware.GetUserID(c); !ok {
		response.AuthError(c, "")
		return
	}

	taskID := c.Param("id")
	if taskID == "" {
		response.ParamError(c, "缺少任务 id")
		return
	}

	result, err := h.generationService.PollMusic(c.Request.Context(), taskID)
	if err != nil {
		response.ServerError(c, "查询音乐结果失败")
		return
	}
	response.Success(c, result)
}

// MusicCallback 服务商音乐生成回调（无需用户认证）
// POST /api/v1/callbacks/music
func (h *GenerationHandler) MusicCallback(c *gin.Context) {
	var payload struct {
		Data struct {
			CallbackType string          `json:"callbackType"`
			TaskID       string          `json:"task_id"`
			Data         json.RawMessage `json:"data"`
		} `json:"data"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.Data.TaskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing task_id"})
		return
	}

	if err := h.generationService.HandleMusicCallback(c.Request.Context(), payload.Data.TaskID, payload.Data.CallbackType, payload.Data.Data); err != nil {
		log.Printf("music callback: store result for %s failed: %v", payload.Data.TaskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *GenerationHandler) writeGenerationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPrompt),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, pricing.ErrUnknownPricing):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInsufficientCredits):
		response.CreditsError(c, "积分不足")
	case errors.Is(err, service.ErrAccountNotFound):
		response.CreditsError(c, "积分不足")
	case errors.Is(err, service.ErrResultUnavailable):
		// 任务已受理，扣费成立，不能宣称退款
		response.UpstreamError(c, "任务已受理但结果尚未就绪，可稍后查询任务状态")
	case errors.Is(err, provider.ErrTaskFailed), errors.Is(err, provider.ErrInvalidResponse):
		response.UpstreamError(c, "生成服务暂时不可用，积分已退回")
	default:
		response.UpstreamError(c, "生成服务暂时不可用，积分已退回")
	}
}
