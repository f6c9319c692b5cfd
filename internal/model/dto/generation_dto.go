package dto

// TextVideoRequest 文生视频（seedance-1.5-pro）
type TextVideoRequest struct {
	Prompt        string `json:"prompt"`
	Duration      string `json:"duration"`
	Resolution    string `json:"resolution"`
	AspectRatio   string `json:"aspect_ratio"`
	FixedLens     bool   `json:"fixed_lens"`
	GenerateAudio bool   `json:"generate_audio"`
}

// ImageVideoRequest 图生视频（wan/2-6-image-to-video）
type ImageVideoRequest struct {
	Prompt     string `json:"prompt"`
	ImageURL   string `json:"image_url"`
	Duration   string `json:"duration"`
	Resolution string `json:"resolution"`
}

// SoraVideoRequest 文生视频（sora-2-pro-text-to-video）
type SoraVideoRequest struct {
	Prompt          string `json:"prompt"`
	AspectRatio     string `json:"aspect_ratio"`
	NFrames         string `json:"n_frames"`
	Size            string `json:"size"`
	RemoveWatermark *bool  `json:"remove_watermark"`
}

// ImageRequest 文生图（nano-banana-pro）
type ImageRequest struct {
	Prompt       string   `json:"prompt"`
	ImageInput   []string `json:"image_input"`
	AspectRatio  string   `json:"aspect_ratio"`
	Resolution   string   `json:"resolution"`
	OutputFormat string   `json:"output_format"`
}

// MusicRequest 文生音乐（suno 风格）
type MusicRequest struct {
	Model        string `json:"model"`
	Instrumental bool   `json:"instrumental"`
	Title        string `json:"title"`
	Style        string `json:"style"`
	Prompt       string `json:"prompt"`
}

// TaskResponse 任务创建结果
type TaskResponse struct {
	TaskID string `json:"task_id"`
}

// ImageResponse 文生图结果（同步轮询拿到产物）
type ImageResponse struct {
	TaskID     string   `json:"task_id"`
	ResultURLs []string `json:"result_urls"`
}

// MusicPollResponse 音乐轮询结果
type MusicPollResponse struct {
	Status string      `json:"status"` // generating | complete
	Tracks interface{} `json:"tracks,omitempty"`
}
