// Package pricing 集中的积分计价表。
// 所有生成动作的积分成本只允许在这里计算。
package pricing

import (
	"errors"
	"fmt"
)

var ErrUnknownPricing = errors.New("未知的计价组合")

// 固定单价的动作
const (
	MusicCost = 35
	ImageCost = 10
	SoraCost  = 120
)

// seedance-1.5-pro：分辨率 × 时长（秒）
var seedancePricing = map[string]map[string]int64{
	"480p": {"4": 40, "8": 80, "12": 120},
	"720p": {"4": 80, "8": 160, "12": 240},
}

// wan/2-6-image-to-video：分辨率 × 时长（秒）
var wan26Pricing = map[string]map[string]int64{
	"720p":  {"5": 70, "10": 140, "15": 210},
	"1080p": {"5": 105, "10": 210, "15": 315},
}

// SeedanceCost 计算 seedance 文生视频成本
func SeedanceCost(resolution, duration string) (int64, error) {
	byDuration, ok := seedancePricing[resolution]
	if !ok {
		return 0, fmt.Errorf("%w: seedance %s/%ss", ErrUnknownPricing, resolution, duration)
	}
	cost, ok := byDuration[duration]
	if !ok {
		return 0, fmt.Errorf("%w: seedance %s/%ss", ErrUnknownPricing, resolution, duration)
	}
	return cost, nil
}

// Wan26Cost 计算 wan-2.6 图生视频成本
func Wan26Cost(resolution, duration string) (int64, error) {
	byDuration, ok := wan26Pricing[resolution]
	if !ok {
		return 0, fmt.Errorf("%w: wan-2.6 %s/%ss", ErrUnknownPricing, resolution, duration)
	}
	cost, ok := byDuration[duration]
	if !ok {
		return 0, fmt.Errorf("%w: wan-2.6 %s/%ss", ErrUnknownPricing, resolution, duration)
	}
	return cost, nil
}

// VideoCost 按模型分发的通用入口
func VideoCost(model, resolution, duration string) (int64, error) {
	switch model {
	case "seedance":
		return SeedanceCost(resolution, duration)
	case "wan-2.6":
		return Wan26Cost(resolution, duration)
	default:
		return 0, fmt.Errorf("%w: model %s", ErrUnknownPricing, model)
	}
}
