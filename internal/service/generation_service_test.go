package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pixelmuse/pixelmuse_go_server/config"
	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
	"github.com/pixelmuse/pixelmuse_go_server/internal/model/dto"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/provider"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/pubsub"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/taskcache"
	"github.com/pixelmuse/pixelmuse_go_server/internal/repository"
	"github.com/pixelmuse/pixelmuse_go_server/internal/testutil"
)

// fakeProvider 可编程的服务商假实现
type fakeProvider struct {
	server      *httptest.Server
	createCalls int
	failCreate  bool
	hangCreate  bool
	failPoll    bool
	lastInput   map[string]interface{}
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	fp := &fakeProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/createTask", func(w http.ResponseWriter, r *http.Request) {
		fp.createCalls++
		var body struct {
			Input map[string]interface{} `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		fp.lastInput = body.Input
		if fp.hangCreate {
			time.Sleep(3 * time.Second)
		}
		if fp.failCreate {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"code":500,"msg":"upstream exploded"}`)
			return
		}
		fmt.Fprint(w, `{"code":200,"msg":"success","data":{"taskId":"task_123"}}`)
	})
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		fp.createCalls++
		if fp.failCreate {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"code":500,"msg":"upstream exploded"}`)
			return
		}
		fmt.Fprint(w, `{"code":200,"msg":"success","data":{"taskId":"task_music_1"}}`)
	})
	mux.HandleFunc("/jobs/recordInfo", func(w http.ResponseWriter, r *http.Request) {
		if fp.failPoll {
			fmt.Fprint(w, `{"code":200,"msg":"success","data":{"taskId":"task_123","state":"fail","failMsg":"content rejected"}}`)
			return
		}
		fmt.Fprint(w, `{"code":200,"msg":"success","data":{"taskId":"task_123","state":"success","resultJson":"{\"resultUrls\":[\"https://cdn.example/img.png\"]}"}}`)
	})

	fp.server = httptest.NewServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func setupGenerationService(t *testing.T, fp *fakeProvider, timeoutSeconds int) (*GenerationService, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ledger := NewLedgerService(db, repository.NewPendingRefundRepository(db))
	client := provider.NewClient(&config.ProviderConfig{
		BaseURL:          fp.server.URL,
		APIKey:           "test-key",
		TimeoutSeconds:   timeoutSeconds,
		MusicCallbackURL: "https://api.example/callbacks/music",
	})

	service := NewGenerationService(ledger, client,
		taskcache.NewCache(rdb, time.Hour), pubsub.NewPublisher(rdb))
	return service, db
}

func TestGenerationService_TextVideo_DebitsAndReturnsTask(t *testing.T) {
	fp := newFakeProvider(t)
	service, db := setupGenerationService(t, fp, 5)

	account := testutil.TestAccount(t, db, testutil.WithCredits(100))

	result, err := service.CreateTextVideo(context.Background(), account.UserID, &dto.TextVideoRequest{
		Prompt:     "a cat surfing at sunset",
		Duration:   "4",
		Resolution: "480p",
	})
	require.NoError(t, err)
	assert.Equal(t, "task_123", result.TaskID)
	assert.Equal(t, int64(60), creditsOf(t, db, account.UserID)) // 480p/4s = 40
}

func TestGenerationService_TextVideo_InsufficientNoProviderCall(t *testing.T) {
	fp := newFakeProvider(t)
	service, db := setupGenerationService(t, fp, 5)

	account := testutil.TestAccount(t, db, testutil.WithCredits(10))

	_, err := service.CreateTextVideo(context.Background(), account.UserID, &dto.TextVideoRequest{
		Prompt: "a cat", Duration: "4", Resolution: "480p",
	})
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 0, fp.createCalls)
	assert.Equal(t, int64(10), creditsOf(t, db, account.UserID))
}

// 服务商失败：扣费全额退回，流水留痕（一扣一退）
func TestGenerationService_TextVideo_RefundOnProviderFailure(t *testing.T) {
	fp := newFakeProvider(t)
	fp.failCreate = true
	service, db := setupGenerationService(t, fp, 5)

	account := testutil.TestAccount(t, db, testutil.WithCredits(100))

	_, err := service.CreateTextVideo(context.Background(), account.UserID, &dto.TextVideoRequest{
		Prompt: "a cat", Duration: "4", Resolution: "480p",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrTaskFailed)
	assert.Equal(t, int64(100), creditsOf(t, db, account.UserID))

	var entries []model.LedgerEntry
	require.NoError(t, db.Where("user_id = ?", account.UserID).Find(&entries).Error)
	require.Len(t, entries, 2)
	amounts := map[string]int64{}
	for _, e := range entries {
		amounts[e.Reason] = e.Amount
	}
	assert.Equal(t, int64(-40), amounts["text_video"])
	assert.Equal(t, int64(40), amounts["refund_text_video"])
}

// 超时与失败同等对待：退款
func TestGenerationService_TextVideo_RefundOnTimeout(t *testing.T) {
	fp := newFakeProvider(t)
	fp.hangCreate = true
	service, db := setupGenerationService(t, fp, 1)

	account := testutil.TestAccount(t, db, testutil.WithCredits(100))

	_, err := service.CreateTextVideo(context.Background(), account.UserID, &dto.TextVideoRequest{
		Prompt: "a cat", Duration: "4", Resolution: "480p",
	})
	require.Error(t, err)
	assert.Equal(t, int64(100), creditsOf(t, db, account.UserID))
}

// 省略档位按最高默认档计费（720p/8s = 160），不能因缺省少扣
func TestGenerationService_TextVideo_DefaultsTo720p8s(t *testing.T) {
	fp := newFakeProvider(t)
	service, db := setupGenerationService(t, fp, 5)

	account := testutil.TestAccount(t, db, testutil.WithCredits(1000))

	result, err := service.CreateTextVideo(context.Background(), account.UserID, &dto.TextVideoRequest{
		Prompt: "a cat surfing at sunset",
	})
	require.NoError(t, err)
	assert.Equal(t, "task_123", result.TaskID)
	assert.Equal(t, int64(840), creditsOf(t, db, account.UserID))
	assert.Equal(t, "8", fp.lastInput["duration"])
	assert.Equal(t, "720p", fp.lastInput["resolution"])
}

// 非法档位不报错，回落默认档后再计费
func TestGenerationService_TextVideo_NormalizesInvalidInput(t *testing.T) {
	fp := newFakeProvider(t)
	service, db := setupGenerationService(t, fp, 5)

	account := testutil.TestAccount(t, db, testutil.WithCredits(500))

	result, err := service.CreateTextVideo(context.Background(), account.UserID, &dto.TextVideoRequest{
		Prompt: "a cat", Duration: "99", Resolution: "4k", AspectRatio: "7:3",
	})
	require.NoError(t, err)
	assert.Equal(t, "task_123", result.TaskID)
	assert.Equal(t, int64(340), creditsOf(t, db, account.UserID)) // 720p/8s = 160
	assert.Equal(t, "8", fp.lastInput["duration"])
	assert.Equal(t, "720p", fp.lastInput["resolution"])
	assert.Equal(t, "16:9", fp.lastInput["aspect_ratio"])
}

func TestGenerationService_ImageVideo_RequiresImageURL(t *testing.T) {
	fp := newFakeProvider(t)
	service, db := setupGenerationService(t, fp, 5)

	account := testutil.TestAccount(t, db, testutil.WithCredits(500))

	_, err := service.CreateImageVideo(context.Background(), account.UserID, &dto.ImageVideoRequest{
		Prompt: "animate this",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	result, err := service.CreateImageVideo(context.Background(), account.UserID, &dto.ImageVideoRequest{
		Prompt:   "animate this",
		ImageURL: "https://cdn.example/src.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "task_123", result.TaskID)
	assert.Equal(t, int64(430), creditsOf(t, db, account.UserID)) // 720p/5s = 70
}

func TestGenerationService_SoraVideo_FlatPrice(t *testing.T) {
	fp := newFakeProvider(t)
	service, db := setupGenerationService(t, fp, 5)

	account := testutil.TestAccount(t, db, testutil.WithCredits(200))

	result, err := service.CreateSoraVideo(context.Background(), account.UserID, &dto.SoraVideoRequest{
		Prompt: "city timelapse",
	})
	require.NoError(t, err)
	assert.Equal(t, "task_123", result.TaskID)
	assert.Equal(t, int64(80), creditsOf(t, db, account.UserID))
}

// 文生图：拿到任务 id 后同步轮询，产物直接返回
func TestGenerationService_Image_PollsResult(t *testing.T) {
	fp := newFakeProvider(t)
	service, db := setupGenerationService(t, fp, 5)

	account := testutil.TestAccount(t, db, testutil.WithCredits(50))

	result, err := service.CreateImage(context.Background(), account.UserID, &dto.ImageRequest{
		Prompt: "a watercolor fox",
	})
	require.NoError(t, err)
	assert.Equal(t, "task_123", result.TaskID)
	assert.Equal(t, []string{"https://cdn.example/img.png"}, result.ResultURLs)
	assert.Equal(t, int64(40), creditsOf(t, db, account.UserID))
}

// 任务 id 已拿到后生成失败：扣费成立，不产生退款流水
func TestGenerationService_Image_NoRefundAfterTaskAccepted(t *testing.T) {
	fp := newFakeProvider(t)
	fp.failPoll = true
	service, db := setupGenerationService(t, fp, 5)

	account := testutil.TestAccount(t, db, testutil.WithCredits(50))

	_, err := service.CreateImage(context.Background(), account.UserID, &dto.ImageRequest{
		Prompt: "a watercolor fox",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResultUnavailable)
	assert.Equal(t, int64(40), creditsOf(t, db, account.UserID))

	var entries []model.LedgerEntry
	require.NoError(t, db.Where("user_id = ?", account.UserID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "image", entries[0].Reason)
}

func TestGenerationService_Music_Validation(t *testing.T) {
	fp := newFakeProvider(t)
	service, db := setupGenerationService(t, fp, 5)

	account := testutil.TestAccount(t, db, testutil.WithCredits(100))
	ctx := context.Background()

	_, err := service.CreateMusic(ctx, account.UserID, &dto.MusicRequest{Style: "jazz", Prompt: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = service.CreateMusic(ctx, account.UserID, &dto.MusicRequest{Title: "Rain", Style: "jazz"})
	assert.ErrorIs(t, err, ErrInvalidPrompt)

	// 纯音乐不需要歌词
	result, err := service.CreateMusic(ctx, account.UserID, &dto.MusicRequest{
		Title: "Rain", Style: "jazz", Instrumental: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "task_music_1", result.TaskID)
	assert.Equal(t, int64(65), creditsOf(t, db, account.UserID))
}

func TestGenerationService_MusicCallbackAndPoll(t *testing.T) {
	fp := newFakeProvider(t)
	service, db := setupGenerationService(t, fp, 5)
	ctx := context.Background()

	account := testutil.TestAccount(t, db, testutil.WithCredits(100))
	created, err := service.CreateMusic(ctx, account.UserID, &dto.MusicRequest{
		Title: "Rain", Style: "jazz", Instrumental: true,
	})
	require.NoError(t, err)

	// 回调前轮询：generating
	poll, err := service.PollMusic(ctx, created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "generating", poll.Status)

	// 中间态回调（text/first）数据不完整，确认收到但不落库
	interim := json.RawMessage(`[{"title":"Rain"}]`)
	require.NoError(t, service.HandleMusicCallback(ctx, created.TaskID, "text", interim))

	poll, err = service.PollMusic(ctx, created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "generating", poll.Status)

	// complete 回调才落库
	tracks := json.RawMessage(`[{"audio_url":"https://cdn.example/a.mp3","title":"Rain"}]`)
	require.NoError(t, service.HandleMusicCallback(ctx, created.TaskID, "complete", tracks))

	poll, err = service.PollMusic(ctx, created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "complete", poll.Status)
	assert.NotNil(t, poll.Tracks)
}
