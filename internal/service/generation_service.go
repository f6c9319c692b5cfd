package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pixelmuse/pixelmuse_go_server/internal/model/dto"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/pricing"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/provider"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/pubsub"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/taskcache"
)

var (
	ErrInvalidPrompt = errors.New("提示词不能为空")
	ErrInvalidInput  = errors.New("请求参数无效")
	// ErrResultUnavailable 任务已受理但结果没拿到，本次扣费成立
	ErrResultUnavailable = errors.New("生成结果暂不可用")
)

// 服务商模型标识
const (
	modelSeedance = "bytedance/seedance-1.5-pro"
	modelWan26    = "wan/2-6-image-to-video"
	modelSora     = "sora-2-pro-text-to-video"
	modelImage    = "nano-banana-pro"
	modelMusicV5  = "V5"
)

// 文生图同步轮询节奏
const (
	imagePollInterval = 2 * time.Second
	imagePollAttempts = 30
)

// GenerationService 生成任务网关：先扣积分，再调服务商，
// 拿到任务 id 前任何失败都退款（含超时）。拿到 id 后扣费即成立，
// 后续生成失败不自动退款。
type GenerationService struct {
	ledger    *LedgerService
	provider  *provider.Client
	taskCache *taskcache.Cache
	publisher *pubsub.Publisher
}

func NewGenerationService(
	ledger *LedgerService,
	providerClient *provider.Client,
	taskCache *taskcache.Cache,
	publisher *pubsub.Publisher,
) *GenerationService {
	return &GenerationService{
		ledger:    ledger,
		provider:  providerClient,
		taskCache: taskCache,
		publisher: publisher,
	}
}

// chargeThenCall 扣费-调用-失败退款的公共骨架。
// call 返回任务 id；返回错误时本次扣费整体回退。
func (s *GenerationService) chargeThenCall(userID string, cost int64, reason string, meta map[string]interface{}, call func() (string, error)) (string, error) {
	if _, err := s.ledger.Debit(userID, cost, reason, meta); err != nil {
		return "", err
	}

	taskID, err := call()
	if err != nil {
		refundMeta := map[string]interface{}{"original_reason": reason}
		for k, v := range meta {
			refundMeta[k] = v
		}
		s.ledger.RefundOrQueue(userID, cost, "refund_"+reason, refundMeta)
		return "", err
	}
	return taskID, nil
}

// CreateTextVideo seedance 文生视频
func (s *GenerationService) CreateTextVideo(ctx context.Context, userID string, req *dto.TextVideoRequest) (*dto.TaskResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrInvalidPrompt
	}

	// 档位白名单，非法值回落默认档
	duration := req.Duration
	switch duration {
	case "4", "8", "12":
	default:
		duration = "8"
	}
	resolution := req.Resolution
	if resolution != "480p" && resolution != "720p" {
		resolution = "720p"
	}
	aspectRatio := req.AspectRatio
	switch aspectRatio {
	case "1:1", "21:9", "4:3", "3:4", "16:9", "9:16":
	default:
		aspectRatio = "16:9"
	}

	cost, err := pricing.SeedanceCost(resolution, duration)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	taskID, err := s.chargeThenCall(userID, cost, "text_video",
		map[string]interface{}{"model": "seedance", "resolution": resolution, "duration": duration},
		func() (string, error) {
			return s.provider.CreateTask(ctx, modelSeedance, provider.TaskInput{
				"prompt":         prompt,
				"duration":       duration,
				"resolution":     resolution,
				"aspect_ratio":   aspectRatio,
				"fixed_lens":     req.FixedLens,
				"generate_audio": req.GenerateAudio,
			})
		})
	if err != nil {
		return nil, err
	}
	return &dto.TaskResponse{TaskID: taskID}, nil
}

// CreateImageVideo wan-2.6 图生视频
func (s *GenerationService) CreateImageVideo(ctx context.Context, userID string, req *dto.ImageVideoRequest) (*dto.TaskResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrInvalidPrompt
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		return nil, fmt.Errorf("%w: image_url 不能为空", ErrInvalidInput)
	}

	duration := req.Duration
	if duration == "" {
		duration = "5"
	}
	resolution := req.Resolution
	if resolution == "" {
		resolution = "720p"
	}

	cost, err := pricing.Wan26Cost(resolution, duration)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	taskID, err := s.chargeThenCall(userID, cost, "image_video",
		map[string]interface{}{"model": "wan-2.6", "resolution": resolution, "duration": duration},
		func() (string, error) {
			return s.provider.CreateTask(ctx, modelWan26, provider.TaskInput{
				"prompt":     prompt,
				"image_url":  req.ImageURL,
				"duration":   duration,
				"resolution": resolution,
			})
		})
	if err != nil {
		return nil, err
	}
	return &dto.TaskResponse{TaskID: taskID}, nil
}

// CreateSoraVideo sora 文生视频（固定计价）
func (s *GenerationService) CreateSoraVideo(ctx context.Context, userID string, req *dto.SoraVideoRequest) (*dto.TaskResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrInvalidPrompt
	}

	input := provider.TaskInput{"prompt": prompt}
	if req.AspectRatio != "" {
		input["aspect_ratio"] = req.AspectRatio
	}
	if req.NFrames != "" {
		input["n_frames"] = req.NFrames
	}
	if req.Size != "" {
		input["size"] = req.Size
	}
	// 默认去水印
	removeWatermark := true
	if req.RemoveWatermark != nil {
		removeWatermark = *req.RemoveWatermark
	}
	input["remove_watermark"] = removeWatermark

	taskID, err := s.chargeThenCall(userID, pricing.SoraCost, "sora_video",
		map[string]interface{}{"model": "sora"},
		func() (string, error) {
			return s.provider.CreateTask(ctx, modelSora, input)
		})
	if err != nil {
		return nil, err
	}
	return &dto.TaskResponse{TaskID: taskID}, nil
}

// CreateImage 文生图：创建后同步轮询直到拿到产物。
// 任务 id 已拿到后轮询失败不退款（产物可能稍后就绪，客户端可再查）。
func (s *GenerationService) CreateImage(ctx context.Context, userID string, req *dto.ImageRequest) (*dto.ImageResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrInvalidPrompt
	}

	input := provider.TaskInput{"prompt": prompt}
	if len(req.ImageInput) > 0 {
		input["image_input"] = req.ImageInput
	}
	if req.AspectRatio != "" {
		input["aspect_ratio"] = req.AspectRatio
	}
	if req.Resolution != "" {
		input["resolution"] = req.Resolution
	}
	if req.OutputFormat != "" {
		input["output_format"] = req.OutputFormat
	}

	taskID, err := s.chargeThenCall(userID, pricing.ImageCost, "image",
		map[string]interface{}{"model": "nano-banana"},
		func() (string, error) {
			return s.provider.CreateTask(ctx, modelImage, input)
		})
	if err != nil {
		return nil, err
	}

	urls, err := s.provider.PollTask(ctx, taskID, imagePollInterval, imagePollAttempts)
	if err != nil {
		log.Printf("generation: image task %s polling failed: %v", taskID, err)
		return nil, fmt.Errorf("%w: %v", ErrResultUnavailable, err)
	}
	return &dto.ImageResponse{TaskID: taskID, ResultURLs: urls}, nil
}

// CreateMusic 文生音乐（回调式）。instrumental 时 prompt 可空。
func (s *GenerationService) CreateMusic(ctx context.Context, userID string, req *dto.MusicRequest) (*dto.TaskResponse, error) {
	title := strings.TrimSpace(req.Title)
	style := strings.TrimSpace(req.Style)
	if title == "" || style == "" {
		return nil, fmt.Errorf("%w: title 和 style 不能为空", ErrInvalidInput)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if !req.Instrumental && prompt == "" {
		return nil, ErrInvalidPrompt
	}

	musicModel := req.Model
	if musicModel == "" {
		musicModel = modelMusicV5
	}

	taskID, err := s.chargeThenCall(userID, pricing.MusicCost, "music",
		map[string]interface{}{"model": musicModel},
		func() (string, error) {
			return s.provider.CreateMusicTask(ctx, musicModel, title, style, prompt, req.Instrumental)
		})
	if err != nil {
		return nil, err
	}

	// 记录归属，回调到达时好定位推送目标
	if err := s.taskCache.PutOwner(ctx, taskID, userID); err != nil {
		log.Printf("generation: record owner for music task %s failed: %v", taskID, err)
	}
	return &dto.TaskResponse{TaskID: taskID}, nil
}

// TaskStatus 查询任务状态，响应体原样透传
func (s *GenerationService) TaskStatus(ctx context.Context, taskID string) (int, json.RawMessage, error) {
	return s.provider.TaskStatus(ctx, taskID)
}

// HandleMusicCallback 服务商回调：complete 态结果落 Redis，再广播给持有该用户连接的实例。
// 中间态回调（text/first）数据不完整，确认收到但不落库。
func (s *GenerationService) HandleMusicCallback(ctx context.Context, taskID, callbackType string, result json.RawMessage) error {
	if callbackType != "complete" {
		log.Printf("generation: skip %s callback for music task %s", callbackType, taskID)
		return nil
	}

	if err := s.taskCache.Put(ctx, taskID, result); err != nil {
		return err
	}

	userID, _, err := s.taskCache.GetOwner(ctx, taskID)
	if err != nil {
		log.Printf("generation: lookup owner for task %s failed: %v", taskID, err)
	}

	if err := s.publisher.PublishTaskComplete(ctx, &pubsub.TaskMessage{
		UserID: userID,
		TaskID: taskID,
		Kind:   "music",
		Result: result,
	}); err != nil {
		// 推送失败不影响结果已落库，客户端轮询兜底
		log.Printf("generation: publish music callback for %s failed: %v", taskID, err)
	}
	return nil
}

// PollMusic 读取回调结果，未就绪返回 generating
func (s *GenerationService) PollMusic(ctx context.Context, taskID string) (*dto.MusicPollResponse, error) {
	data, ok, err := s.taskCache.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &dto.MusicPollResponse{Status: "generating"}, nil
	}

	var tracks interface{}
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, err
	}
	return &dto.MusicPollResponse{Status: "complete", Tracks: tracks}, nil
}
