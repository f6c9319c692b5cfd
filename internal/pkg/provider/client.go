// Package provider 生成服务商（KIE 异步任务队列）HTTP 客户端。
// 所有请求带硬超时，超时与网络错误同等对待（由上层退款）。
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pixelmuse/pixelmuse_go_server/config"
)

var (
	// ErrInvalidResponse 服务商返回了无法解析的响应体
	ErrInvalidResponse = errors.New("provider: invalid response")
	// ErrTaskFailed 服务商明确拒绝了任务
	ErrTaskFailed = errors.New("provider: task failed")
)

type Client struct {
	baseURL          string
	apiKey           string
	musicCallbackURL string
	httpClient       *http.Client
}

func NewClient(cfg *config.ProviderConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:          cfg.BaseURL,
		apiKey:           cfg.APIKey,
		musicCallbackURL: cfg.MusicCallbackURL,
		httpClient:       &http.Client{Timeout: timeout},
	}
}

// TaskInput createTask 的模型入参
type TaskInput map[string]interface{}

// createTask / recordInfo 的响应外壳
type taskEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type taskData struct {
	TaskID     string `json:"taskId"`
	TaskIDAlt  string `json:"task_id"`
	State      string `json:"state"`
	FailMsg    string `json:"failMsg"`
	ResultJSON string `json:"resultJson"`
}

func (d *taskData) id() string {
	if d.TaskID != "" {
		return d.TaskID
	}
	return d.TaskIDAlt
}

// CreateTask 提交异步生成任务，成功返回任务 id。
// 任何失败路径（网络、非 2xx、非 JSON、缺 taskId）都返回错误。
func (c *Client) CreateTask(ctx context.Context, model string, input TaskInput) (string, error) {
	payload := map[string]interface{}{
		"model": model,
		"input": input,
	}

	status, raw, err := c.post(ctx, c.baseURL+"/jobs/createTask", payload)
	if err != nil {
		return "", err
	}

	var env taskEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidResponse, truncate(raw))
	}

	var data taskData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidResponse, truncate(raw))
		}
	}

	taskID := data.id()
	if status < 200 || status >= 300 || taskID == "" {
		msg := env.Msg
		if msg == "" {
			msg = "create task failed"
		}
		return "", fmt.Errorf("%w: %s", ErrTaskFailed, msg)
	}

	return taskID, nil
}

// TaskStatus recordInfo 原样透传（只读，不触碰账务）
func (c *Client) TaskStatus(ctx context.Context, taskID string) (int, json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/jobs/recordInfo?taskId=%s", c.baseURL, taskID), nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

// TaskResult 轮询单次结果
type TaskResult struct {
	Done       bool
	ResultURLs []string
}

// PollTask 固定间隔轮询直到任务成功/失败/超出次数。
// 轮询无副作用，可随时重来。
func (c *Client) PollTask(ctx context.Context, taskID string, interval time.Duration, maxAttempts int) ([]string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		status, raw, err := c.TaskStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}

		var env taskEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, truncate(raw))
		}
		var data taskData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, truncate(raw))
			}
		}
		_ = status

		switch data.State {
		case "success":
			var result struct {
				ResultURLs []string `json:"resultUrls"`
			}
			if data.ResultJSON != "" {
				if err := json.Unmarshal([]byte(data.ResultJSON), &result); err != nil {
					return nil, fmt.Errorf("%w: resultJson", ErrInvalidResponse)
				}
			}
			return result.ResultURLs, nil
		case "fail":
			msg := data.FailMsg
			if msg == "" {
				msg = "task failed"
			}
			return nil, fmt.Errorf("%w: %s", ErrTaskFailed, msg)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	return nil, fmt.Errorf("%w: polling timeout", ErrTaskFailed)
}

// CreateMusicTask 提交音乐生成任务（回调式，结果走 /callbacks/music）
func (c *Client) CreateMusicTask(ctx context.Context, model, title, style, prompt string, instrumental bool) (string, error) {
	payload := map[string]interface{}{
		"model":        model,
		"customMode":   true,
		"instrumental": instrumental,
		"title":        title,
		"style":        style,
		"callBackUrl":  c.musicCallbackURL,
	}
	if !instrumental {
		payload["prompt"] = prompt
	}

	status, raw, err := c.post(ctx, c.baseURL+"/generate", payload)
	if err != nil {
		return "", err
	}

	var env taskEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidResponse, truncate(raw))
	}
	var data taskData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidResponse, truncate(raw))
		}
	}

	taskID := data.id()
	if status < 200 || status >= 300 || taskID == "" {
		msg := env.Msg
		if msg == "" {
			msg = "music generation failed"
		}
		return "", fmt.Errorf("%w: %s", ErrTaskFailed, msg)
	}

	return taskID, nil
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

func truncate(raw []byte) string {
	const max = 200
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
